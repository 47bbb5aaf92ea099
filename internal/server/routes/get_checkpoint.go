package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetCheckpointHandler reports the durable checkpoint without its id list.
func GetCheckpointHandler(c echo.Context) error {
	type getCheckpointResponse struct {
		Message   string            `json:"message"`
		Processed int               `json:"processed"`
		Stats     *checkpoint.Stats `json:"stats,omitempty"`
		LastFlush *time.Time        `json:"last_flush,omitempty"`
	}

	app := c.(*middleware.AppContext).App
	rec, err := app.Checkpoint.Load(c.Request().Context())
	if errors.Is(err, checkpoint.ErrNotFound) {
		return c.JSON(http.StatusNotFound, getCheckpointResponse{
			Message: "No checkpoint yet",
		})
	}
	if err != nil {
		logger.Error("[Server] Failed to load checkpoint", "err", err)
		return c.JSON(http.StatusInternalServerError, getCheckpointResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCheckpointResponse{
		Message:   "OK",
		Processed: len(rec.ProcessedIDs),
		Stats:     &rec.Stats,
		LastFlush: &rec.LastFlush,
	})
}
