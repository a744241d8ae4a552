package cmd

import (
	"os"

	"hltvharvest/lib/configuration"
	"hltvharvest/lib/relay"
)

type RelayConfig struct {
	// fetch pages directly through the bypass transport instead of a
	// FlareSolverr endpoint
	Direct                bool   `json:"direct"`
	Endpoint              string `json:"endpoint"`
	MaxRetries            uint64 `json:"max_retries"`
	InitialBackoffSeconds int    `json:"initial_backoff_seconds"`
	ListingTimeoutSeconds int    `json:"listing_timeout_seconds"`
	DetailTimeoutSeconds  int    `json:"detail_timeout_seconds"`
}

type RunConfig struct {
	BackfillPagesPerRun int `json:"backfill_pages_per_run"`
	MaxBackfillOffset   int `json:"max_backfill_offset"`
	EnrichmentBudget    int `json:"enrichment_budget"`
	Concurrency         int `json:"concurrency"`
	// the scheduler invokes a run every few hours, a run must always
	// finish (and persist) well before the next one starts
	TimeoutMinutes int `json:"timeout_minutes"`
}

type Config struct {
	DataDir string      `json:"data_dir"`
	Relay   RelayConfig `json:"relay"`
	Run     RunConfig   `json:"run"`
}

// a missing config file is fine, everything has a workable default.
func loadConfig() (Config, error) {
	config, err := configuration.ReadConfig[Config](ConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}
	if config.DataDir == "" {
		config.DataDir = "."
	}
	if config.Run.TimeoutMinutes == 0 {
		config.Run.TimeoutMinutes = 180
	}
	if config.Relay.Direct {
		config.Relay.Endpoint = ""
	} else if config.Relay.Endpoint == "" {
		config.Relay.Endpoint = relay.DefaultEndpoint
	}
	return config, nil
}
