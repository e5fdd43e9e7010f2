package main

import (
	"fmt"

	"github.com/o9nn/otterengine/internal/config"
	"github.com/o9nn/otterengine/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cliConfig reads the persistent --threads/--verbose flags shared by
// every subcommand and builds the Config and Logger they configure.
func cliConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	threads, _ := cmd.Flags().GetInt("threads")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := config.DefaultConfig()
	cfg.Threads = threads
	cfg.Verbose = verbose

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return cfg, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}
