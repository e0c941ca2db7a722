package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediagatehq/mediagate/internal/config"
	"github.com/mediagatehq/mediagate/internal/db"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "mediagate",
		Short: "WhatsApp media ingestion and approval-gated republish service",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and dispatch scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				runServe()
				return nil
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := db.RunMigrations(cfg.Postgres); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
				fmt.Println("migrations applied")
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	path := cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
