package tui

import (
	"context"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rusq/sweepmychat/internal/sweep"
)

func (app *App) initFind(ctx context.Context) {
	app.pages.AddPage(stSearching, modal(app.view.fmSearch, 60, 5), true, false)
	input := tview.NewInputField().SetLabel("Title or ID")
	app.view.fmSearch.
		AddFormItem(input).
		SetBorder(true).
		SetTitle("[ Find Chat ]").
		SetBackgroundColor(tcell.ColorDarkCyan).
		SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			switch event.Key() {
			case tcell.KeyCR:
				app.findChat(ctx, input.GetText())
				input.SetText("")
				return nil
			case tcell.KeyESC:
				app.cancel(ctx)
				return nil
			}
			return event
		})
}

// findChat moves the chat list selection to the first chat after the current
// one whose title contains term (case insensitive) or whose id matches term
// exactly, wrapping around.
func (app *App) findChat(ctx context.Context, term string) {
	if term == "" {
		app.logf("search input is empty")
		app.cancel(ctx)
		return
	}

	loc := locate(app.chats, app.view.lvChats.GetCurrentItem(), term)
	if loc == -1 {
		app.logf("no chat matches: %q", term)
		app.cancel(ctx)
		return
	}

	app.view.lvChats.SetCurrentItem(loc)
	app.event(ctx, evLocate)
}

func locate(chats []sweep.Chat, current int, term string) int {
	if len(chats) == 0 {
		return -1
	}
	id, idErr := strconv.ParseInt(term, 10, 64)
	term = strings.ToLower(term)
	for i := 1; i <= len(chats); i++ {
		idx := (current + i) % len(chats)
		if idErr == nil && chats[idx].ID == id {
			return idx
		}
		if strings.Contains(strings.ToLower(chats[idx].Title), term) {
			return idx
		}
	}
	return -1
}
