package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"facebot-go/internal/backup"
	"facebot-go/internal/config"
	"facebot-go/internal/db"
	"facebot-go/internal/logger"
	"facebot-go/internal/util/timezone"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent snapshot of the database to the backup directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}
			timezone.Initialize()

			gormDB, err := db.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}

			path, err := backup.NewManager(gormDB, cfg.Backup).Create()
			if err != nil {
				return err
			}
			cmd.Printf("Backup written to %s\n", path)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the database with a backup (run while the service is stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}

			if err := backup.Restore(cfg.DB.File, args[0]); err != nil {
				return err
			}
			cmd.Printf("Database restored from %s\n", args[0])
			return nil
		},
	}
}
