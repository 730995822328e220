package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"holoport-stats/internal/agent"
	"holoport-stats/internal/archive"
	"holoport-stats/internal/delivery"
	"holoport-stats/internal/inventory"
	"holoport-stats/internal/server"

	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCmd(a *app) *cobra.Command {
	var (
		dryRun  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect, sign and deliver one report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !dryRun && a.cfg.Delivery.Endpoint == "" {
				return delivery.ErrNoEndpoint
			}

			id, err := a.loadIdentity()
			if err != nil {
				return err
			}
			defer id.Close()

			var sender agent.Sender
			if !dryRun {
				sender = a.sender()
			}
			runner, err := a.newRunner(id, sender, nil, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "sign the report and print it without sending")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "bound on the whole run")
	return cmd
}

type healthOutput struct {
	HposAppList inventory.HealthMap `json:"hposAppList"`
	RunningApps inventory.Buckets   `json:"runningApps"`
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the conductor's app health map and running app buckets, unsigned",
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, err := a.dialAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer admin.Close()

			health, err := inventory.Health(cmd.Context(), admin)
			if err != nil {
				return err
			}
			buckets, err := inventory.RunningApps(cmd.Context(), admin)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), healthOutput{HposAppList: health, RunningApps: buckets})
		},
	}
}

func newIdentityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the host's public id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.loadIdentity()
			if err != nil {
				return err
			}
			defer id.Close()

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nfingerprint: %s\n", id.PublicID(), id.Fingerprint())
			return err
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Report on a schedule and serve local status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			id, err := a.loadIdentity()
			if err != nil {
				return err
			}
			defer id.Close()

			var (
				history agent.Recorder
				runs    server.History
			)
			store, pool, err := archive.Open(ctx, a.cfg.Archive.DSN)
			switch {
			case err == nil:
				defer pool.Close()
				if err := store.EnsureSchema(ctx); err != nil {
					return err
				}
				history, runs = store, store
			case errors.Is(err, archive.ErrDisabled):
				a.logger.Printf("archive: disabled (no dsn)")
			default:
				return err
			}

			var sender agent.Sender
			if a.cfg.Delivery.Endpoint != "" {
				sender = a.sender()
			} else {
				a.logger.Printf("delivery: no endpoint configured, runs are dry")
			}

			status := &agent.Status{}
			runner, err := a.newRunner(id, sender, history, status)
			if err != nil {
				return err
			}
			scheduler, err := agent.NewScheduler(runner, a.cfg.Schedule, 0)
			if err != nil {
				return err
			}
			scheduler.Start(ctx)
			defer scheduler.Stop()
			scheduler.Trigger()

			return server.New(a.cfg.Server, status, scheduler, runs, a.logger).Run(ctx)
		},
	}
}
