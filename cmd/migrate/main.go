package main

import (
	"context"
	"fmt"
	"os"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the analysis_reports table",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := config.InitLogger(&cfg.Log, nil)

			// InitDB 连接后自动迁移
			db, err := repository.InitDB(context.Background(), &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Migration completed successfully")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
