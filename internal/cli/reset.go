package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/leaselock"

	"github.com/spf13/cobra"
)

type ResetOptions struct {
	*RootOptions
	Yes bool
}

func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset-checkpoint",
		Short: "Forget every processed article so the next run starts over",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm the reset")
	return cmd
}

func runReset(cmd *cobra.Command, opts *ResetOptions) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to reset the checkpoint without --yes")
	}
	ctx := cmd.Context()
	cfg := opts.Config

	if cfg.NeedsPool() {
		pool, err := setup.NewPool(ctx, cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "connect database", err)
		}
		defer pool.Close()

		backend, err := setup.NewCheckpointBackend(ctx, cfg, pool)
		if err != nil {
			return WrapExitError(ExitCommandError, "open checkpoint backend", err)
		}
		host, _ := os.Hostname()
		err = leaselock.New(pool).WithLease(ctx, leaselock.CheckpointKey(cfg.CheckpointName), leaselock.Options{Owner: host}, func(ctx context.Context) error {
			return resetBackend(ctx, backend)
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "reset checkpoint", err)
		}
	} else {
		backend, err := setup.NewCheckpointBackend(ctx, cfg, nil)
		if err != nil {
			return WrapExitError(ExitCommandError, "open checkpoint backend", err)
		}
		if err := resetBackend(ctx, backend); err != nil {
			return WrapExitError(ExitCommandError, "reset checkpoint", err)
		}
	}

	return output(cmd.OutOrStdout(), opts.Format, map[string]string{"checkpoint": cfg.CheckpointName}, func(w io.Writer) {
		fmt.Fprintf(w, "checkpoint %q reset\n", cfg.CheckpointName)
	})
}

func resetBackend(ctx context.Context, backend checkpoint.Backend) error {
	cp, err := checkpoint.Open(ctx, backend)
	if err != nil {
		return err
	}
	return cp.Reset(ctx)
}
