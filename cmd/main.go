package main

import (
	"os"

	"github.com/spf13/cobra"

	"site-gateway/internal/config"
	"site-gateway/pkg/logger"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "site-gateway",
		Short:         "Chat relay and runtime configuration endpoints for the marketing site",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "config file path")

	root.AddCommand(
		newServeCommand(),
		newConfigCommand(),
		newChatCommand(),
		newHealthCommand(),
		newSubscribeCommand(),
	)
	return root
}

// setup loads configuration and initializes logging.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}
