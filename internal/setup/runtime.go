package setup

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/normalize"
	"github.com/OFFIS-RIT/newsgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
	"github.com/OFFIS-RIT/newsgraph/pkg/validate"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runtime holds a fully wired pipeline and everything it must close.
type Runtime struct {
	Pool         *pgxpool.Pool
	AI           ai.GraphAIClient
	Store        store.GraphStore
	Engine       *graph.Engine
	Checkpoint   *checkpoint.Store
	Tracker      *progress.Tracker
	Orchestrator *pipeline.Orchestrator
}

// Build wires the pipeline described by cfg. On error everything opened so
// far is closed again.
func Build(ctx context.Context, cfg Config) (rt *Runtime, err error) {
	rt = &Runtime{}
	defer func() {
		if err != nil {
			rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	if cfg.NeedsPool() {
		if rt.Pool, err = NewPool(ctx, cfg); err != nil {
			return rt, err
		}
	}

	if rt.AI, err = NewAIClient(cfg); err != nil {
		return rt, fmt.Errorf("create ai client: %w", err)
	}
	extractor, err := NewExtractor(cfg, rt.AI)
	if err != nil {
		return rt, fmt.Errorf("create extractor: %w", err)
	}

	if rt.Store, err = NewGraphStore(ctx, cfg, rt.Pool); err != nil {
		return rt, fmt.Errorf("open graph store: %w", err)
	}
	rt.Engine, err = graph.NewEngine(graph.NewEngineParams{
		Store:           rt.Store,
		ParallelUpserts: cfg.ParallelUpserts,
	})
	if err != nil {
		return rt, err
	}

	backend, err := NewCheckpointBackend(ctx, cfg, rt.Pool)
	if err != nil {
		return rt, fmt.Errorf("open checkpoint backend: %w", err)
	}
	if rt.Checkpoint, err = checkpoint.Open(ctx, backend); err != nil {
		return rt, err
	}

	rt.Tracker = progress.NewTracker()
	rt.Orchestrator, err = pipeline.New(pipeline.Params{
		Validator:  validate.New(validate.WithMinBodyLength(cfg.MinBodyLength)),
		Extractor:  extractor,
		Resolver:   normalize.NewResolver(cfg.DedupeThreshold),
		Engine:     rt.Engine,
		Checkpoint: rt.Checkpoint,
		Tracker:    rt.Tracker,
		Policy:     cfg.Retry,
		BatchSize:  cfg.BatchSize,
		Parallel:   cfg.Parallel,
	})
	if err != nil {
		return rt, err
	}
	return rt, nil
}

func (rt *Runtime) Close(ctx context.Context) {
	if rt.Store != nil {
		if err := rt.Store.Close(ctx); err != nil {
			logger.Warn("[Setup] Failed to close graph store", "err", err)
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
