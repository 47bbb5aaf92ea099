package middleware

import (
	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/validate"

	"github.com/labstack/echo/v4"
)

// App carries the long-lived dependencies every handler may use.
type App struct {
	Queue      queue.Publisher
	Checkpoint checkpoint.Backend
	Validator  *validate.Validator
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
