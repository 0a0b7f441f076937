package cmd

import (
	"github.com/spf13/cobra"

	"pitrctl/internal/apply"
	"pitrctl/internal/runner"
)

var applyBinlogCmd = &cobra.Command{
	Use:   "apply-binlog",
	Short: "Apply a pending deferred binlog replay",
	Long: `Checks for a restore marker left by "restore pitr" and, if one
exists, waits for the server to accept connections and replays the
extracted binlog SQL. Exits successfully when nothing is pending.

Intended to run automatically after the server starts, for example
from an init script or container entrypoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine := apply.NewEngine(cfg, runner.System(), log)
		return engine.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(applyBinlogCmd)
}
