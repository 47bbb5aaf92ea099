package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/newsgraph/internal/migrations"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabase(rootOpts); err != nil {
				return err
			}
			if err := migrations.Up(rootOpts.Config.DatabaseURL); err != nil {
				return WrapExitError(ExitCommandError, "migrate up", err)
			}
			return output(cmd.OutOrStdout(), rootOpts.Format, map[string]string{"migrate": "up"}, func(w io.Writer) {
				fmt.Fprintln(w, "schema up to date")
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return NewExitError(ExitCommandError, "--steps must be positive")
			}
			if err := requireDatabase(rootOpts); err != nil {
				return err
			}
			if err := migrations.Down(rootOpts.Config.DatabaseURL, steps); err != nil {
				return WrapExitError(ExitCommandError, "migrate down", err)
			}
			return output(cmd.OutOrStdout(), rootOpts.Format, map[string]int{"rolled_back": steps}, func(w io.Writer) {
				fmt.Fprintf(w, "rolled back %d migration(s)\n", steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func requireDatabase(opts *RootOptions) error {
	if opts.Config.DatabaseURL == "" {
		return WrapExitError(ExitCommandError, "migrate", errors.New("DATABASE_URL is not set"))
	}
	return nil
}
