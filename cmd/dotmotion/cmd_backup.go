package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/dotmotion/internal/backup"
	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/pathutil"
	"github.com/nvandessel/dotmotion/internal/store"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot all stored responses to a compressed file",
		Long: `Write every stored response to a gzip snapshot with a checksummed header.

Default location: .dotmotion/backups/ (or ~/.dotmotion/backups/ with --global,
or backup.dir from config.yaml). Old snapshots are pruned according to
backup.max_count, backup.max_age and backup.max_size.

Examples:
  dotmotion backup
  dotmotion backup --output my-backup.json.gz
  dotmotion backup list
  dotmotion backup verify <file>
  dotmotion backup restore <file> --mode replace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			dir, err := backupDir(cmd, a.cfg)
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = backup.GenerateBackupPath(dir)
			} else if outputPath, err = guardBackupPath(cmd, a.cfg, outputPath); err != nil {
				return fmt.Errorf("backup path rejected: %w", err)
			}

			snap, err := backup.Backup(commandContext(cmd), a.store, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			policy, err := backup.PolicyFromConfig(a.cfg.Backup)
			if err != nil {
				return err
			}
			deleted, err := backup.ApplyRetention(filepath.Dir(outputPath), policy)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			if jsonOut {
				var sizeBytes int64
				if info, err := os.Stat(outputPath); err == nil {
					sizeBytes = info.Size()
				}
				return printJSON(cmd, map[string]interface{}{
					"path":       outputPath,
					"records":    len(snap.Records),
					"version":    snap.Version,
					"size_bytes": sizeBytes,
					"pruned":     len(deleted),
					"message":    fmt.Sprintf("Backup created: %d records", len(snap.Records)),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Backup created: %d records\n", len(snap.Records))
			fmt.Fprintf(w, "  Path: %s\n", outputPath)
			if len(deleted) > 0 {
				fmt.Fprintf(w, "  Pruned %d old backup(s)\n", len(deleted))
			}
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in the backup directory)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)

	return cmd
}

// backupDir picks backup.dir, ~/.dotmotion/backups for --global, or the
// backups directory inside the project's data directory.
func backupDir(cmd *cobra.Command, cfg *config.DotmotionConfig) (string, error) {
	if cfg.Backup.Dir != "" {
		return cfg.Backup.Dir, nil
	}
	if global, _ := cmd.Flags().GetBool("global"); global {
		dir, err := backup.DefaultBackupDir()
		if err != nil {
			return "", fmt.Errorf("failed to get backup directory: %w", err)
		}
		return dir, nil
	}
	dir, err := dataDir(cmd)
	if err != nil {
		return "", err
	}
	return store.BackupPath(dir), nil
}

// guardBackupPath confines user-supplied snapshot paths to the backup
// directories.
func guardBackupPath(cmd *cobra.Command, cfg *config.DotmotionConfig, path string) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	roots, err := pathutil.BackupRoots(root, cfg.Backup.Dir)
	if err != nil {
		return "", err
	}
	return pathutil.NewGuard(roots...).Check(path)
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups with their record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := backupDir(cmd, cfg)
			if err != nil {
				return err
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			if jsonOut {
				if backups == nil {
					backups = []backup.BackupInfo{}
				}
				return printJSON(cmd, map[string]interface{}{
					"backups":     backups,
					"total_count": len(backups),
					"directory":   dir,
				})
			}

			w := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintf(w, "No backups found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(w, "Backups in %s:\n", dir)
			var totalSize int64
			for _, b := range backups {
				totalSize += b.Size
				records := "?"
				if b.Records >= 0 {
					records = fmt.Sprintf("%d", b.Records)
				}
				fmt.Fprintf(w, "  %s  %s  %s records  %s\n",
					b.CreatedAt.Local().Format(time.DateTime), filepath.Base(b.Path), records, formatBytes(b.Size))
			}
			fmt.Fprintf(w, "Total: %d backup(s), %s\n", len(backups), formatBytes(totalSize))
			return nil
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a backup's checksum",
		Long: `Check the SHA-256 checksum stored in a compressed backup's header.
Plain results.json copies carry no checksum and are reported as such.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")

			version, err := backup.DetectFormat(filePath)
			if err != nil {
				return fmt.Errorf("failed to detect format: %w", err)
			}

			result := map[string]interface{}{"file": filePath, "version": version}
			var verifyErr error
			switch version {
			case backup.FormatPlain:
				result["valid"] = true
				result["message"] = "Plain format: no checksum to verify"
			default:
				verifyErr = backup.VerifyChecksum(filePath)
				result["valid"] = verifyErr == nil
				if verifyErr != nil {
					result["error"] = verifyErr.Error()
					result["message"] = "Checksum mismatch"
				} else {
					result["message"] = "Checksum OK"
				}
			}

			if jsonOut {
				return printJSON(cmd, result)
			}
			if verifyErr != nil {
				return fmt.Errorf("verification failed: %w", verifyErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n  File: %s\n", result["message"], filePath)
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Load a backup into the record store",
		Long: `Restore responses from a compressed backup or a plain results.json copy.

--mode replace (default) discards the current records first.
--mode append adds the backup's records after the existing ones.

The file must live in one of the backup directories: ~/.dotmotion/backups,
.dotmotion/backups under --root, or backup.dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeStr, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeStr)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			inputPath, err := guardBackupPath(cmd, a.cfg, args[0])
			if err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			result, err := backup.Restore(commandContext(cmd), a.store, inputPath, mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return printJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d records (%s): %d before, %d after\n",
				result.RecordsRestored, result.Mode, result.RecordsBefore, result.RecordsAfter)
			return nil
		},
	}
	cmd.Flags().String("mode", string(backup.RestoreReplace), "Restore mode: replace or append")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
