package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/internal/timing"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

type StatusOptions struct {
	*RootOptions
	Pending int64
}

type statusOutput struct {
	Processed int              `json:"processed"`
	Stats     checkpoint.Stats `json:"stats"`
	LastFlush *time.Time       `json:"last_flush,omitempty"`
	Graph     *store.Stats     `json:"graph,omitempty"`
	Estimate  string           `json:"estimate,omitempty"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint and graph size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.Pending, "pending", 0, "estimate the duration of a run over this many articles")
	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	ctx := cmd.Context()
	cfg := opts.Config

	var pool *pgxpool.Pool
	if cfg.NeedsPool() {
		var err error
		if pool, err = setup.NewPool(ctx, cfg); err != nil {
			return WrapExitError(ExitCommandError, "connect database", err)
		}
		defer pool.Close()
	}

	out := statusOutput{}
	backend, err := setup.NewCheckpointBackend(ctx, cfg, pool)
	if err != nil {
		return WrapExitError(ExitCommandError, "open checkpoint backend", err)
	}
	rec, err := backend.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
	case err != nil:
		return WrapExitError(ExitCommandError, "load checkpoint", err)
	default:
		out.Processed = len(rec.ProcessedIDs)
		out.Stats = rec.Stats
		if !rec.LastFlush.IsZero() {
			out.LastFlush = &rec.LastFlush
		}
	}

	if cfg.GraphStore != "memory" {
		if gs, err := graphStats(ctx, cfg, pool); err != nil {
			logger.Warn("[Status] Graph store unavailable", "err", err)
		} else {
			out.Graph = &gs
		}
	}

	if opts.Pending > 0 && pool != nil {
		d, err := timing.PredictRunDuration(ctx, pool, opts.Pending)
		if err != nil {
			logger.Warn("[Status] Failed to estimate run duration", "err", err)
		} else if d > 0 {
			out.Estimate = d.Round(time.Second).String()
		}
	}

	if err := output(cmd.OutOrStdout(), opts.Format, out, func(w io.Writer) {
		writeStatusText(w, out)
	}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}

func graphStats(ctx context.Context, cfg setup.Config, pool *pgxpool.Pool) (store.Stats, error) {
	gs, err := setup.NewGraphStore(ctx, cfg, pool)
	if err != nil {
		return store.Stats{}, err
	}
	defer gs.Close(context.WithoutCancel(ctx))
	return gs.Stats(ctx)
}

func writeStatusText(w io.Writer, out statusOutput) {
	if out.LastFlush == nil && out.Processed == 0 {
		fmt.Fprintln(w, "no checkpoint yet")
	} else {
		fmt.Fprintf(w, "processed:     %d\n", out.Processed)
		if out.Stats.RunID != "" {
			fmt.Fprintf(w, "last run:      %s (succeeded %d, skipped %d, failed %d)\n",
				out.Stats.RunID, out.Stats.Processed, out.Stats.Skipped, out.Stats.Failed)
		}
		if out.LastFlush != nil {
			fmt.Fprintf(w, "last flush:    %s\n", out.LastFlush.Format(time.RFC3339))
		}
	}
	if out.Graph != nil {
		fmt.Fprintf(w, "entities:      %d\n", out.Graph.Entities)
		fmt.Fprintf(w, "relationships: %d\n", out.Graph.Relationships)
	}
	if out.Estimate != "" {
		fmt.Fprintf(w, "estimate:      %s\n", out.Estimate)
	}
}
