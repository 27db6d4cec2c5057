package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/telos-app/telos-offline/internal/db"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print local store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(database.DB); err != nil {
			return err
		}

		stats, err := db.NewRepository(database.DB).Stats()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}
