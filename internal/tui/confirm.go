package tui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/rusq/sweepmychat/internal/sweep"
)

func (app *App) initConfirm(ctx context.Context) {
	app.pages.AddPage(stConfirming, app.view.mbConfirm, false, false)
	app.view.mbConfirm.
		AddButtons([]string{btnYes, btnNo}).
		SetDoneFunc(func(i int, label string) { app.handleConfirm(ctx, i, label) }).
		SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			if event.Key() == tcell.KeyESC {
				app.cancel(ctx)
				return nil
			}
			return event
		})
}

func (app *App) handleConfirm(ctx context.Context, _ int, buttonLabel string) {
	var err error
	switch buttonLabel {
	case btnYes:
		if !app.event(ctx, evConfirmed) {
			return
		}
		err = app.handleDelete(ctx)
	case btnNo:
		app.cancel(ctx)
	}
	if err != nil {
		app.error(err)
	}
}

// handleDelete runs the deleter over the candidates stored in the FSM
// metadata and logs the resulting summary.
func (app *App) handleDelete(ctx context.Context) error {
	defer app.event(ctx, evDeleted)
	chat, err := metadata[sweep.Chat](app.fsm, metaChat)
	if err != nil {
		return fmt.Errorf("chat missing: %s", err)
	}
	cands, err := metadata[[]sweep.Candidate](app.fsm, metaCandidates)
	if err != nil {
		return fmt.Errorf("candidates missing: %s", err)
	}

	app.logf("Deleting %d messages from %s, please wait . . .", len(cands), chat)
	sum := app.eng.Delete(ctx, cands)
	app.logf("%q: %d deleted, %d skipped, %d failed", chat.String(), sum.Deleted, sum.Skipped, sum.Failed)
	if sum.Retries > 0 {
		app.logf("(%d rate-limited retries)", sum.Retries)
	}
	for i, e := range sum.Errors {
		if i == 5 {
			app.logf("... and %d more errors", len(sum.Errors)-5)
			break
		}
		app.logf("msg %d: %s", e.MessageID, e.Err)
	}

	return nil
}
