// Command sparsync runs spar maintenance from a shell or an external cron.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"buildinpublic-hub/bootstrap"
	"buildinpublic-hub/config"
	"buildinpublic-hub/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sparsync",
		Short:         "Sync spars and leaderboard stats outside the HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSweepCmd(), newSyncCmd(), newStatsCmd(), newTrackCmd())
	return root
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Start due spars, sync every active spar and complete the finished ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				report, err := app.Spars.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <spar-id>",
		Short: "Sync one spar's commit counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.Spars.Sync(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Record commit stats and refresh the score of every tracked developer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				report, err := app.Stats.SyncAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <github-handle>...",
		Short: "Add developers to the leaderboard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				for _, handle := range args {
					dev, err := app.Stats.Track(cmd.Context(), handle)
					if err != nil {
						return fmt.Errorf("track %s: %w", handle, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "tracking %s (%s)\n", dev.Username, dev.ID)
				}
				return nil
			})
		},
	}
}

func withApp(cmd *cobra.Command, fn func(*bootstrap.App) error) error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.NewWithOutput("sparsync", cfg.LogLevel, cmd.ErrOrStderr())

	app, err := bootstrap.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("close database")
		}
	}()
	return fn(app)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
