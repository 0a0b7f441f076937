// Package cmd defines the command-line interface.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"pitrctl/internal/config"
	"pitrctl/internal/logger"
)

var (
	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pitrctl",
	Short: "MySQL point-in-time recovery orchestration",
	Long: `pitrctl restores a MySQL server to an exact second by combining
xtrabackup full and incremental backups with binlog replay.

A restore runs while the server is stopped. Changes between the last
applied backup and the target are extracted from the binary logs into
a replay script, which is applied automatically on the next start via
the apply-binlog command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI with the given configuration and logger.
func Execute(ctx context.Context, c *config.Config, l logger.Logger) error {
	cfg = c
	log = l
	return rootCmd.ExecuteContext(ctx)
}
