package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	mid "github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/validate"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// New builds the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	if app.Validator == nil {
		app.Validator = validate.New()
	}
	e.Validator = app.Validator

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("32M"))

	RegisterRoutes(e)
	return e
}

// Init runs the intake server until SIGINT or SIGTERM.
func Init(cfg setup.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.CheckpointBackend == "postgres" {
		p, err := setup.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer p.Close()
		pool = p
	}
	backend, err := setup.NewCheckpointBackend(ctx, cfg, pool)
	if err != nil {
		logger.Fatal("Failed to open checkpoint backend", "err", err)
	}

	que, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, []string{queue.ArticleQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	e := New(&mid.App{
		Queue:      ch,
		Checkpoint: backend,
		Validator:  validate.New(validate.WithMinBodyLength(cfg.MinBodyLength)),
	})

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
