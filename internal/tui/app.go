// Package tui implements the interactive mode: pick a chat, scan it for
// candidates matching the configured filter, confirm, delete, see the
// summary.
package tui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/looplab/fsm"
	"github.com/rivo/tview"
	"github.com/rusq/dlog"
	"github.com/rusq/osenv/v2"

	"github.com/rusq/sweepmychat/internal/sweep"
)

const (
	btnYes = "Yes"
	btnNo  = "No"
	btnOK  = "OK"
)

// Sweeper is the engine as the UI sees it.
type Sweeper interface {
	// Scan collects candidates in the chat matching the configured filter,
	// calling progress for every scanned message.
	Scan(ctx context.Context, chat sweep.Chat, progress func(n int)) ([]sweep.Candidate, error)
	// Delete runs the batch deleter over the candidates.
	Delete(ctx context.Context, cands []sweep.Candidate) *sweep.Summary
	// FilterDescription describes the active filter for prompts.
	FilterDescription() string
	// DryRun reports whether deletion is simulated.
	DryRun() bool
}

type App struct {
	tva *tview.Application
	eng Sweeper
	log *dlog.Logger
	fsm *fsm.FSM

	chats []sweep.Chat

	pages *tview.Pages
	view  views
}

type views struct {
	main      *tview.Flex
	mbConfirm *tview.Modal
	mbNothing *tview.Modal
	fmSearch  *tview.Form

	lvChats *tview.List
	tvLog   *tview.TextView
}

func New(ctx context.Context, eng Sweeper) *App {
	app := &App{
		tva: tview.NewApplication(),
		eng: eng,

		pages: tview.NewPages(),
		view: views{
			main:      tview.NewFlex(),
			mbConfirm: tview.NewModal(),
			mbNothing: tview.NewModal(),
			fmSearch:  tview.NewForm(),

			lvChats: tview.NewList(),
			tvLog:   tview.NewTextView(),
		},
	}

	app.initMain(ctx)
	app.initFind(ctx)
	app.initConfirm(ctx)
	app.initNothing(ctx)

	app.tva.SetInputCapture(app.handleKeystrokes)

	app.log = dlog.New(app.view.tvLog, "", dlog.Flags(), osenv.Value("DEBUG", "") != "")

	app.fsm = initFSM(app)

	return app
}

// Run populates the chat list and enters the UI main loop.
func (app *App) Run(ctx context.Context, chats []sweep.Chat) error {
	app.populateChatList(ctx, chats)
	app.logf("Filter: %s", app.eng.FilterDescription())
	if app.eng.DryRun() {
		app.logf("DRY RUN mode: nothing will actually be deleted")
	}

	if err := app.tva.SetRoot(app.pages, true).EnableMouse(false).Run(); err != nil {
		return err
	}
	return nil
}

func (app *App) logf(format string, a ...any) {
	app.log.Printf(format, a...)
}

func (app *App) error(err error) {
	app.log.Printf("ERROR: %s", err)
}

func (app *App) handleKeystrokes(event *tcell.EventKey) *tcell.EventKey {
	if app.fsm.Current() == stDeleting {
		// no keystrokes until deletion is finished.
		return event
	}

	switch event.Key() {
	case tcell.KeyCtrlQ, tcell.KeyF10:
		app.tva.Stop()
	default:
		return event
	}
	return nil
}

// cancel sends an evCancelled event.
func (app *App) cancel(ctx context.Context) {
	app.event(ctx, evCancelled)
}

// event sends an event to FSM, returns true if there were no errors.
func (app *App) event(ctx context.Context, event string) bool {
	if err := app.fsm.Event(ctx, event); err != nil {
		app.error(err)
		return false
	}
	return true
}

func (app *App) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(app.view.tvLog, format, a...)
}

// modal wraps a primitive in a modal box.
func modal(p tview.Primitive, width int, height int) tview.Primitive {
	return tview.NewGrid().
		SetColumns(0, width, 0).
		SetRows(0, height, 0).
		AddItem(p, 1, 1, 1, 1, 0, 0, true)
}
