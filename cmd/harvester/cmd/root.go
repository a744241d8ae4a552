package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ConfigPath string

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "harvester incrementally scrapes hltv match/odds data into durable json datasets.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&ConfigPath, "config", "config.json5",
		"path to the configuration file",
	)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
