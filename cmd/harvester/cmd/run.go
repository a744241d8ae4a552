package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hltvharvest/lib/relay"
	"hltvharvest/lib/serviceutil"
	"hltvharvest/lib/telemetry"
	"hltvharvest/services/harvest"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "executes one harvest pass: fetch listings, merge, enrich up to budget, persist.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}

		ctx := serviceutil.SignalContext()

		tel, err := telemetry.SetupFromEnv(ctx, "harvester")
		if err == nil {
			defer func() {
				err := tel.Shutdown(context.Background())
				if err != nil {
					slog.Warn("failed to shut down telemetry", "err", err)
				}
			}()
		}

		ctx, cancel := context.WithTimeout(
			ctx,
			time.Duration(config.Run.TimeoutMinutes)*time.Minute,
		)
		defer cancel()

		client := relay.NewClient(relay.Options{
			Endpoint:       config.Relay.Endpoint,
			MaxRetries:     config.Relay.MaxRetries,
			InitialBackoff: time.Duration(config.Relay.InitialBackoffSeconds) * time.Second,
			ListingTimeout: time.Duration(config.Relay.ListingTimeoutSeconds) * time.Second,
			DetailTimeout:  time.Duration(config.Relay.DetailTimeoutSeconds) * time.Second,
		})

		runner := harvest.NewRunner(
			harvest.NewStore(config.DataDir),
			client,
			harvest.Options{
				BackfillPagesPerRun: config.Run.BackfillPagesPerRun,
				MaxBackfillOffset:   config.Run.MaxBackfillOffset,
				EnrichmentBudget:    config.Run.EnrichmentBudget,
				Concurrency:         config.Run.Concurrency,
			},
		)

		report, err := runner.Run(ctx)
		if err != nil {
			serviceutil.Fatal("run failed", err)
		}

		fmt.Printf(
			"run %s: %d upcoming, %d results, %d enriched, %d tombstoned, %d failed, %d pending\n",
			report.RunID,
			report.Upcoming,
			report.Results,
			report.Enriched,
			report.Tombstoned,
			report.Failed,
			report.PendingEnrichment,
		)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
