// Package cli implements the ingest command line.
package cli

import (
	"fmt"

	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/internal/util"

	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Debug  bool
	Format string // "text" | "json"
	Config setup.Config
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	util.LoadEnv()
	opts := &RootOptions{Config: setup.LoadConfig()}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Incremental news article to knowledge graph ingestion",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			if opts.Debug {
				opts.Config.Debug = true
			}
			setup.InitLogger(opts.Config)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", opts.Config.Debug, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.Config.CheckpointBackend, "checkpoint-backend", opts.Config.CheckpointBackend, "checkpoint backend (file|postgres|s3|redis|memory)")
	cmd.PersistentFlags().StringVar(&opts.Config.CheckpointPath, "checkpoint-path", opts.Config.CheckpointPath, "checkpoint file for the file backend")
	cmd.PersistentFlags().StringVar(&opts.Config.CheckpointName, "checkpoint-name", opts.Config.CheckpointName, "checkpoint name")
	cmd.PersistentFlags().StringVar(&opts.Config.GraphStore, "graph-store", opts.Config.GraphStore, "graph store (postgres|neo4j|memory)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
