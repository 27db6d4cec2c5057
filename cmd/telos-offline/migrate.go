package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telos-app/telos-offline/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the local store schema up to date",
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

		version, err := db.CurrentVersion(database.DB)
		if err != nil {
			return err
		}
		fmt.Printf("schema at version %d\n", version)
		return nil
	},
}
