package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmlock/bmlock/internal/settings"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup [output_path]",
	Short: "Back up folder settings",
	Long: `Write the settings of every protected folder to a JSON file. Private keys
stay wrapped under their passphrases, so the backup reveals no bookmarks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ss, err := openSettings(ctx)
		if err != nil {
			return err
		}

		// Determine output path
		var outputPath string
		if len(args) > 0 {
			outputPath = args[0]
		} else {
			outputPath, err = defaultBackupPath("settings")
			if err != nil {
				return err
			}
		}

		n, err := writeBackup(cmd, ss, outputPath)
		if err != nil {
			return err
		}
		fmt.Printf("Backup of %d folder(s) created at: %s\n", n, outputPath)
		return nil
	},
}

// defaultBackupPath returns a timestamped path in the backup directory.
func defaultBackupPath(kind string) (string, error) {
	backupDir := cfg.BackupDir()
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	timestamp := time.Now().Format("2006-01-02T15-04-05Z")
	return filepath.Join(backupDir, fmt.Sprintf("%s-%s.json", kind, timestamp)), nil
}

func writeBackup(cmd *cobra.Command, ss settings.ListingStore, path string) (int, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create backup: %w", err)
	}
	n, err := settings.Export(cmd.Context(), ss, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write backup: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	log.Debugf("Exported %d record(s) to %s", n, path)
	return n, nil
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
