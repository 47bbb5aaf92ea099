package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/internal/storage"
	"github.com/OFFIS-RIT/newsgraph/internal/timing"
	"github.com/OFFIS-RIT/newsgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"
	"github.com/OFFIS-RIT/newsgraph/pkg/source"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/spf13/cobra"
)

type RunOptions struct {
	*RootOptions
	Input     string
	HTML      bool
	BatchSize int
	Parallel  int
	DryRun    bool
	NoLock    bool
}

type runOutput struct {
	RunID       string           `json:"run_id"`
	Summary     progress.Summary `json:"summary"`
	Malformed   int              `json:"malformed_lines"`
	Interrupted bool             `json:"interrupted"`
	Graph       *store.Stats     `json:"graph,omitempty"`
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest a JSON Lines file of articles into the graph",
		Long: `Reads one article per line, extracts entities and relationships and merges
them into the graph. Articles recorded in the checkpoint are skipped, so an
interrupted run can simply be started again.`,
		Example: `  ingest run --input articles.jsonl
  cat articles.jsonl | ingest run --input - --parallel 8
  ingest run --input pages.jsonl --html --dry-run
  ingest run --input s3://news/2026-10/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "JSON Lines input: file, - for stdin, or s3://bucket/key")
	cmd.Flags().BoolVar(&opts.HTML, "html", false, "extract readable text from HTML article bodies")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", rootOpts.Config.BatchSize, "articles per checkpoint flush")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", rootOpts.Config.Parallel, "concurrent extractions")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "use in-memory graph and checkpoint")
	cmd.Flags().BoolVar(&opts.NoLock, "no-lock", false, "do not take the checkpoint lease")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *RunOptions) error {
	cfg := opts.Config
	cfg.BatchSize = opts.BatchSize
	cfg.Parallel = opts.Parallel
	if opts.DryRun {
		cfg.GraphStore = "memory"
		cfg.CheckpointBackend = "memory"
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input, err := openInput(ctx, cfg, opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "open input", err)
	}
	defer input.Close()
	var src source.ArticleSource = input
	if opts.HTML {
		src = source.WithHTMLBodies(src)
	}

	var summary progress.Summary
	var rt *setup.Runtime
	work := func(ctx context.Context) error {
		var err error
		rt, err = setup.Build(ctx, cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "setup", err)
		}

		snapCtx, stopSnap := context.WithCancel(ctx)
		defer stopSnap()
		go rt.Tracker.Snapshot(snapCtx, cfg.ProgressInterval, func(s progress.Summary) {
			logger.Info("[Progress] Snapshot", s.KeyVals()...)
		})

		summary, err = rt.Orchestrator.Run(ctx, src)
		return err
	}

	var runErr error
	if cfg.NeedsPool() && !opts.NoLock {
		pool, err := setup.NewPool(ctx, cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "connect database", err)
		}
		defer pool.Close()
		host, _ := os.Hostname()
		runErr = leaselock.New(pool).WithLease(ctx, leaselock.CheckpointKey(cfg.CheckpointName), leaselock.Options{Owner: host}, work)
	} else {
		runErr = work(ctx)
	}
	if rt != nil {
		defer rt.Close(context.WithoutCancel(ctx))
	}

	interrupted := errors.Is(runErr, context.Canceled) || errors.Is(runErr, leaselock.ErrLost)
	if runErr != nil && !interrupted {
		var exitErr *ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr
		}
		if errors.Is(runErr, leaselock.ErrBusy) {
			return WrapExitError(ExitCommandError, "checkpoint is held by another run", runErr)
		}
		return WrapExitError(ExitCommandError, "run", runErr)
	}

	if rt != nil && rt.Pool != nil {
		if err := timing.RecordRun(context.WithoutCancel(ctx), rt.Pool, rt.Orchestrator.RunID(), summary); err != nil {
			logger.Warn("[Run] Failed to record run timing", "err", err)
		}
	}

	out := runOutput{Summary: summary, Malformed: input.Malformed(), Interrupted: interrupted}
	if rt != nil {
		out.RunID = rt.Orchestrator.RunID()
		if gs, err := rt.Engine.Stats(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[Run] Failed to read graph stats", "err", err)
		} else {
			out.Graph = &gs
		}
	}
	if err := output(cmd.OutOrStdout(), opts.Format, out, func(w io.Writer) {
		writeRunText(w, out)
	}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}

	switch {
	case interrupted:
		return NewExitError(ExitInterrupted, "run interrupted")
	case summary.Failed > 0:
		return NewExitError(ExitFailure, "some articles failed")
	}
	return nil
}

// inputSource is an article stream that counts its undecodable lines.
type inputSource interface {
	source.ArticleSource
	Malformed() int
	Close() error
}

// openInput opens a local file, stdin ("-") or s3://bucket/key. A key
// ending in "/" reads every .jsonl object under that prefix in key order.
func openInput(ctx context.Context, cfg setup.Config, input string) (inputSource, error) {
	if !strings.HasPrefix(input, "s3://") {
		src, err := source.OpenJSONL(input)
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return nil, err
	}
	params := cfg.S3
	params.Bucket = u.Host
	params.Prefix = ""
	bucket, err := storage.NewBucket(ctx, params)
	if err != nil {
		return nil, err
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key != "" && !strings.HasSuffix(key, "/") {
		return source.NewObjectSource(bucket, []string{key}), nil
	}
	all, err := bucket.List(ctx, key)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasSuffix(k, ".jsonl") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no .jsonl objects under %s", input)
	}
	sort.Strings(keys)
	logger.Info("[Run] Reading objects", "bucket", u.Host, "prefix", key, "objects", len(keys))
	return source.NewObjectSource(bucket, keys), nil
}

func writeRunText(w io.Writer, out runOutput) {
	if out.Interrupted {
		io.WriteString(w, "run interrupted, progress is checkpointed\n")
	}
	if out.RunID != "" {
		io.WriteString(w, "run:           "+out.RunID+"\n")
	}
	writeSummary(w, out.Summary)
	if out.Graph != nil {
		fmt.Fprintf(w, "graph:         %d entities, %d relationships\n", out.Graph.Entities, out.Graph.Relationships)
	}
	if out.Malformed > 0 {
		io.WriteString(w, "malformed input lines were skipped, see log\n")
	}
}
