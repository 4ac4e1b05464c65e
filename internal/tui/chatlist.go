package tui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rusq/sweepmychat/internal/sweep"
)

const infoText = "Press [Ctrl+Q] or [F10] to quit, [Ctrl+F] or [/] to search chats"

func (app *App) initMain(_ context.Context) {
	app.view.lvChats.
		SetHighlightFullLine(true).
		SetSelectedBackgroundColor(tcell.Color190).
		SetSelectedTextColor(tcell.ColorBlack).
		SetMainTextColor(tcell.Color190).
		ShowSecondaryText(true).
		SetBorder(true).
		SetInputCapture(app.chatInputCapture).
		SetTitle("[ Chats ]")

	app.view.tvLog.
		SetWordWrap(true).
		SetScrollable(true).
		SetChangedFunc(func() { app.tva.Draw() }).
		SetBorder(true).
		SetTitle("[ Information ]")

	workspace := tview.NewFlex().
		AddItem(app.view.lvChats, 0, 25, true).
		AddItem(app.view.tvLog, 0, 75, false)

	info := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignCenter).
		SetTextColor(tcell.ColorRed).
		SetText(infoText)

	mainScreen := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(workspace, 0, 1, true).
		AddItem(info, 1, 1, false)

	app.pages.AddPage(stSelecting, mainScreen, true, true)
}

func (app *App) populateChatList(ctx context.Context, chats []sweep.Chat) {
	app.chats = chats
	for _, chat := range chats {
		app.view.lvChats.AddItem(
			chat.String(),
			fmt.Sprintf("  %s (%d)", chat.Type, chat.ID),
			0,
			func() { app.handleChats(ctx) },
		)
	}
}

func (app *App) handleChats(ctx context.Context) {
	if !app.event(ctx, evSelected) {
		return
	}

	selected := app.chats[app.view.lvChats.GetCurrentItem()]
	// async scan is needed so that the tvLog will keep updating.
	go app.runScan(ctx, selected)
}

func (app *App) runScan(ctx context.Context, selected sweep.Chat) {
	// disable input on lvChats for the duration of the scan.
	app.view.lvChats.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey { return nil })
	defer func() {
		app.view.lvChats.SetInputCapture(app.chatInputCapture)
	}()
	app.view.tvLog.Clear()

	app.logf("Scanning chat: %s, please wait...", selected)
	total := 0
	cands, err := app.eng.Scan(ctx, selected, func(n int) {
		total += n
		if total > 0 && total%100 == 0 {
			app.printf("...%d", total)
		}
	})
	if total > 0 {
		app.printf("...%d\n", total)
	}
	if err != nil {
		app.error(err)
		app.cancel(ctx)
		return
	}
	app.logf("Scan complete, %d messages match the filter (%s)", len(cands), app.eng.FilterDescription())

	if len(cands) == 0 {
		if !app.event(ctx, evNothingToDo) {
			app.cancel(ctx)
		}
		return
	}

	app.fsm.SetMetadata(metaChat, selected)
	app.fsm.SetMetadata(metaCandidates, cands)
	verb := "Delete"
	if app.eng.DryRun() {
		verb = "Simulate deleting"
	}
	app.view.mbConfirm.SetText(fmt.Sprintf("Found %d matching messages in %q.  %s?", len(cands), selected.String(), verb))

	if !app.event(ctx, evScanned) {
		app.cancel(ctx)
		return
	}
}

func (app *App) chatInputCapture(event *tcell.EventKey) *tcell.EventKey {
	ctx := context.TODO()
	switch event.Key() {
	case tcell.KeyCtrlF:
		if !app.event(ctx, evSearch) {
			return event
		}
	case tcell.KeyRune:
		switch event.Rune() {
		case '/':
			if !app.event(ctx, evSearch) {
				return event
			}
		}
	}
	return event
}
