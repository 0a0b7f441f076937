package cmd

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"pitrctl/internal/cloud"
	"pitrctl/internal/pitr"
	"pitrctl/internal/runner"
	"pitrctl/internal/stamp"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the database from backups",
}

var restorePitrCmd = &cobra.Command{
	Use:   `pitr "<YYYY-MM-DD HH:MM:SS>" [full_stamp] [incremental_stamp...]`,
	Short: "Restore to an exact point in time",
	Long: `Restores the database to the given target time, interpreted in
RESTORE_TZ (default Asia/Shanghai).

Without extra arguments the backup chain is resolved automatically
from the backups on disk and in remote storage. Extra arguments
override resolution: a first argument of the form YYYYMMDD_HHMMSS
names the full backup, any following arguments name incrementals to
apply. If the first argument is not a full stamp, all arguments are
treated as incrementals on top of the auto-resolved full.

MySQL must be stopped before running this command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRestorePitr,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.AddCommand(restorePitrCmd)
}

func runRestorePitr(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target, err := stamp.ParseTarget(args[0], cfg.RestoreTZ)
	if err != nil {
		return fmt.Errorf("invalid target time %q: %w (expected YYYY-MM-DD HH:MM:SS)", args[0], err)
	}

	var opts pitr.Options
	rest := args[1:]
	if len(rest) > 0 && stamp.IsStampString(rest[0]) {
		opts.Full, err = stamp.Parse(rest[0])
		if err != nil {
			return err
		}
		rest = rest[1:]
	}
	for _, arg := range rest {
		inc, err := stamp.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid incremental stamp %q: %w", arg, err)
		}
		opts.Incrementals = append(opts.Incrementals, inc)
	}

	store, err := remoteStore(ctx)
	if err != nil {
		return err
	}
	return pitr.New(cfg, store, runner.System(), log).Restore(ctx, target, opts)
}

// remoteStore builds the S3 store, or returns a nil Store when remote
// backup storage is disabled.
func remoteStore(ctx context.Context) (cloud.Store, error) {
	s3, err := cloud.NewS3Store(ctx, cfg.S3, log)
	if err != nil {
		if stderrors.Is(err, cloud.ErrDisabled) {
			return nil, nil
		}
		return nil, err
	}
	return s3, nil
}
