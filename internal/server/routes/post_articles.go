package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateArticlesHandler validates the submitted articles and enqueues the
// valid ones for ingestion. Invalid articles are reported, not enqueued.
func CreateArticlesHandler(c echo.Context) error {
	type createArticlesBody struct {
		Articles []common.Article `json:"articles" validate:"required,min=1"`
	}

	type rejectedArticle struct {
		ID      string   `json:"id"`
		Reasons []string `json:"reasons"`
	}

	type createArticlesResponse struct {
		Message  string            `json:"message"`
		Accepted []string          `json:"accepted,omitempty"`
		Rejected []rejectedArticle `json:"rejected,omitempty"`
	}

	data := new(createArticlesBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createArticlesResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createArticlesResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	res := createArticlesResponse{
		Accepted: make([]string, 0, len(data.Articles)),
		Rejected: make([]rejectedArticle, 0),
	}
	for _, a := range data.Articles {
		if ok, reasons := app.Validator.ValidateArticle(a); !ok {
			res.Rejected = append(res.Rejected, rejectedArticle{ID: a.ID, Reasons: reasons})
			continue
		}
		if err := queue.PublishArticle(ctx, app.Queue, a); err != nil {
			logger.Error("[Server] Failed to enqueue article", "article_id", a.ID, "err", err)
			return c.JSON(http.StatusInternalServerError, createArticlesResponse{
				Message:  "Internal server error",
				Accepted: res.Accepted,
			})
		}
		res.Accepted = append(res.Accepted, a.ID)
	}

	if len(res.Accepted) == 0 {
		res.Message = "No valid articles"
		return c.JSON(http.StatusBadRequest, res)
	}
	res.Message = "Articles queued"
	return c.JSON(http.StatusAccepted, res)
}
