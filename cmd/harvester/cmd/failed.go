package cmd

import (
	"hltvharvest/cmd/harvester/utils"
	"hltvharvest/lib/serviceutil"
	"hltvharvest/services/harvest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "lists urls whose fetches exhausted their retry budget.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}

		store := harvest.NewStore(config.DataDir)
		entries, err := store.LoadLedger()
		if err != nil {
			serviceutil.Fatal("failed to load the failed-url ledger", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"url", "kind", "attempts", "last attempt", "reason"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.Url,
				e.Kind,
				e.Attempts,
				e.LastAttempt.Format("2006-01-02 15:04:05 MST"),
				e.Reason,
			})
		}
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(failedCmd)
}
