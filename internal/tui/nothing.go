package tui

import "context"

func (app *App) initNothing(ctx context.Context) {
	app.pages.AddPage(stNothing, app.view.mbNothing, false, false)
	app.view.mbNothing.
		SetDoneFunc(func(_ int, _ string) {
			app.cancel(ctx)
		}).
		SetText("No messages match the filter").
		AddButtons([]string{btnOK})
}
