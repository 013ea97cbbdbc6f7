package app

import (
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//
//	It's designed to run in a separate go function to not block the main go function.
//	e.g.: go runWebServer()
//	See app.Run()
func (app *App) runWebServer() {
	if err := app.web.Listen(app.urlParsed.Host); err != nil {
		debug.ErrorLog.Print(err)
	}
}
