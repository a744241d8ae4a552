package cmd

import (
	"hltvharvest/cmd/harvester/utils"
	"hltvharvest/lib/serviceutil"
	"hltvharvest/services/harvest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "prints the persisted scrape state.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}

		store := harvest.NewStore(config.DataDir)
		state, err := store.LoadState()
		if err != nil {
			serviceutil.Fatal("failed to load scrape state", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"results offset", "last run", "pending enrichment"})
		lastRun := "never"
		if !state.LastRun.IsZero() {
			lastRun = state.LastRun.Format("2006-01-02 15:04:05 MST")
		}
		t.AppendRow(table.Row{state.ResultsOffset, lastRun, state.PendingEnrichment})
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}
