package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/telos-app/telos-offline/internal/config"
	"github.com/telos-app/telos-offline/internal/logging"
)

var (
	configPath string
	dataDir    string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "telos-offline",
	Short: "Telos offline cache and sync daemon",
	Long: `telos-offline keeps Telos usable without a network connection.

It maintains a local cache of items and highlights, queues mutations made
while offline, replays them when connectivity returns, and fronts the web
UI with a caching gateway so the application shell still loads offline.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data directory")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "override listen address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig layers the config file, environment, and command-line flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))
	return cfg, nil
}
