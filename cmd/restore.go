package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmlock/bmlock/internal/settings"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [backup_path]",
	Short: "Restore folder settings from a backup",
	Long: `Restore folder settings from a backup file written by 'bmlock backup' or
exported from the browser extension. Records in the backup replace the current
settings of the same folders; other folders are left alone.
If no backup path is provided, lists available backups for selection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var backupPath string

		if len(args) > 0 {
			// Backup path provided directly
			backupPath = args[0]
		} else {
			// List and select from available backups
			backupDir := cfg.BackupDir()
			if _, err := os.Stat(backupDir); os.IsNotExist(err) {
				return fmt.Errorf("no backup directory found at %s. Create a backup first with 'bmlock backup'", backupDir)
			}

			backups, err := findBackups(backupDir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}
			if len(backups) == 0 {
				return fmt.Errorf("no backup files found in %s", backupDir)
			}

			fmt.Println("Available backups:")
			fmt.Println()
			for i, backup := range backups {
				fmt.Printf("  %d. %s\n", i+1, filepath.Base(backup.Path))
				fmt.Printf("     Created: %s\n", backup.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("     Size: %s\n", formatFileSize(backup.Size))
				fmt.Println()
			}

			fmt.Print("Select backup to restore (enter number): ")
			input, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			input = strings.TrimSpace(input)
			selection, err := strconv.Atoi(input)
			if err != nil || selection < 1 || selection > len(backups) {
				return fmt.Errorf("invalid selection: %s", input)
			}
			backupPath = backups[selection-1].Path
			fmt.Printf("Selected: %s\n", filepath.Base(backupPath))
		}

		f, err := os.Open(backupPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("backup file not found: %s", backupPath)
			}
			return fmt.Errorf("failed to read backup file: %w", err)
		}
		defer f.Close()

		ss, err := openSettings(ctx)
		if err != nil {
			return err
		}

		// Offer to save what is about to be replaced.
		if ids, err := ss.List(ctx); err == nil && len(ids) > 0 {
			fmt.Printf("%d protected folder(s) exist. Create a backup before restoring? (y/n): ", len(ids))
			response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))

			if response == "y" || response == "yes" {
				currentBackupPath, err := defaultBackupPath("settings-before-restore")
				if err != nil {
					return err
				}
				if _, err := writeBackup(cmd, ss, currentBackupPath); err != nil {
					return err
				}
				fmt.Printf("Current settings backed up to: %s\n", currentBackupPath)
			}
		}

		n, err := settings.Import(ctx, ss, f)
		if err != nil {
			return fmt.Errorf("backup file appears to be invalid or corrupted: %w", err)
		}

		fmt.Printf("Restored settings for %d folder(s) from: %s\n", n, filepath.Base(backupPath))
		fmt.Println("Check folder states with: bmlock status")
		return nil
	},
}

// BackupInfo holds information about a backup file
type BackupInfo struct {
	Path      string
	CreatedAt time.Time
	Size      int64
}

// findBackups finds all backup files in the backup directory, newest first.
func findBackups(backupDir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(backupDir, entry.Name()),
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// formatFileSize formats file size in human-readable format
func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
