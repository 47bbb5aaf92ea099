package server

import (
	"net/http"

	"github.com/OFFIS-RIT/newsgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	e.POST("/articles", routes.CreateArticlesHandler)
	e.GET("/checkpoint", routes.GetCheckpointHandler)
}
