package restore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"pitrctl/internal/binlog"
	"pitrctl/internal/catalog"
	"pitrctl/internal/cloud"
	"pitrctl/internal/config"
	"pitrctl/internal/errors"
	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
	"pitrctl/internal/runner"
	"pitrctl/internal/stamp"
)

// Pipeline restores a resolved backup chain into the MySQL data
// directory. The server must be stopped while it runs.
type Pipeline struct {
	cfg   *config.Config
	store cloud.Store
	run   runner.Runner
	log   logger.Logger
	now   func() time.Time
}

// NewPipeline creates a Pipeline. store may be nil when remote
// storage is disabled.
func NewPipeline(cfg *config.Config, store cloud.Store, run runner.Runner, log logger.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, run: run, log: log, now: time.Now}
}

// Result reports what a pipeline run actually applied.
type Result struct {
	Chain   catalog.Chain
	Applied []catalog.Entry

	// LastStamp is the newest applied backup stamp, the point binlog
	// replay starts from.
	LastStamp stamp.Stamp

	SavedBinlogs int
}

// Run executes the restore: preserve live binlogs, materialize and
// prepare the chain, replace the data directory, and put the live
// binlogs back so replay can read them.
func (p *Pipeline) Run(ctx context.Context, chain catalog.Chain) (*Result, error) {
	if _, err := p.run.LookPath("xtrabackup"); err != nil {
		return nil, errors.Wrap(err, errors.CodeToolMissing, errors.CategoryEnvironment,
			"xtrabackup not found in PATH")
	}

	res := &Result{Chain: chain, LastStamp: chain.Base.Stamp}

	// The data directory is about to be wiped; the binlogs inside it
	// are the only record of changes after the last backup.
	tempDir, saved, err := p.preserveBinlogs()
	if err != nil {
		return nil, err
	}
	res.SavedBinlogs = saved

	if err := p.materialize(ctx, chain.Base); err != nil {
		return nil, err
	}
	if err := p.prepareBase(ctx, chain.Base); err != nil {
		return nil, err
	}

	for _, inc := range chain.Incrementals {
		if err := p.materialize(ctx, inc); err != nil {
			p.log.Warn("incremental backup unavailable, skipping",
				"stamp", inc.Stamp, "error", err)
			continue
		}
		if err := p.mergeIncremental(ctx, chain.Base, inc); err != nil {
			return nil, err
		}
		res.Applied = append(res.Applied, inc)
		res.LastStamp = stamp.Max(res.LastStamp, inc.Stamp)
	}

	if err := p.finalPrepare(ctx, chain.Base); err != nil {
		return nil, err
	}

	if err := p.replaceDataDir(ctx, chain.Base); err != nil {
		return nil, err
	}

	p.deleteStaleBinlogs()
	p.restoreBinlogs(tempDir)

	p.log.Info("restore pipeline complete",
		"base", chain.Base.Stamp,
		"incrementals", len(res.Applied),
		"last", res.LastStamp)
	return res, nil
}

// preserveBinlogs copies the live binlogs out of the data directory
// before it is purged. Missing binlogs degrade to a warning: the
// restore itself can proceed, only replay loses its source.
func (p *Pipeline) preserveBinlogs() (string, int, error) {
	tempDir := filepath.Join(p.cfg.BackupBaseDir,
		"binlog_temp_pitr_"+stamp.FromTime(p.now()).String())
	if err := fs.FS.MkdirAll(tempDir, 0o755); err != nil {
		return "", 0, errors.Wrap(err, errors.CodeExtractFailed, errors.CategoryPipeline,
			"creating binlog staging directory")
	}

	indexPath := p.cfg.BinlogIndexPath()
	if !fs.Exists(indexPath) {
		p.log.Warn("binlog index not found, replay source will be incomplete",
			"path", indexPath)
		return tempDir, 0, nil
	}

	if err := fs.CopyFile(indexPath, filepath.Join(tempDir, "mysql-bin.index")); err != nil {
		p.log.Warn("failed to save binlog index", "error", err)
	}

	files, err := binlog.ReadIndex(indexPath, p.cfg.MySQLDataDir, p.log)
	if err != nil {
		p.log.Warn("failed to read binlog index", "error", err)
		return tempDir, 0, nil
	}

	saved := 0
	for _, file := range files {
		name := filepath.Base(file)
		if !strings.HasPrefix(name, "mysql-bin.") {
			continue
		}
		if err := fs.CopyFile(file, filepath.Join(tempDir, name)); err != nil {
			p.log.Warn("failed to save binlog file", "file", name, "error", err)
			continue
		}
		saved++
	}
	p.log.Info("saved live binlogs before purge", "count", saved, "dir", tempDir)
	return tempDir, saved, nil
}

// materialize makes a backup directory usable: a prepared xtrabackup
// directory has an xtrabackup_checkpoints file. Compressed archives
// are unpacked, remote-only backups downloaded first.
func (p *Pipeline) materialize(ctx context.Context, e catalog.Entry) error {
	checkpoints := filepath.Join(e.Dir, "xtrabackup_checkpoints")
	if fs.Exists(checkpoints) {
		return nil
	}

	archive := filepath.Join(e.Dir, "backup.tar.gz")
	if !fs.Exists(archive) && e.Key != "" && p.store != nil {
		p.log.Info("backup not present locally, downloading",
			"stamp", e.Stamp, "key", e.Key)
		if _, err := cloud.EnsureLocal(ctx, p.store, e.Key, e.Dir); err != nil {
			return errors.Wrap(err, errors.CodeCloudUnavailable, errors.CategoryCloud,
				fmt.Sprintf("downloading backup %s", e.Stamp))
		}
		archive = filepath.Join(e.Dir, filepath.Base(e.Key))
	}

	if fs.Exists(archive) {
		p.log.Info("unpacking backup archive", "stamp", e.Stamp)
		if err := extractTarGz(archive, e.Dir); err != nil {
			return errors.Wrap(err, errors.CodeExtractFailed, errors.CategoryPipeline,
				fmt.Sprintf("unpacking backup %s", e.Stamp))
		}
		fs.FS.Remove(archive)
	}

	// xtrabackup's own qpress/zstd compression leaves .zst files that
	// its --decompress mode removes in place.
	if zst, _ := afero.Glob(fs.FS, filepath.Join(e.Dir, "*.zst")); len(zst) > 0 {
		p.log.Info("decompressing xtrabackup files", "stamp", e.Stamp, "files", len(zst))
		if _, err := p.run.Run(ctx, "xtrabackup", "--decompress", "--target-dir="+e.Dir); err != nil {
			return errors.Wrap(err, errors.CodeExtractFailed, errors.CategoryPipeline,
				fmt.Sprintf("decompressing backup %s", e.Stamp))
		}
	}

	if !fs.Exists(checkpoints) {
		return errors.New(errors.CodeExtractFailed, errors.CategoryPipeline,
			fmt.Sprintf("backup %s is incomplete: no xtrabackup_checkpoints", e.Stamp))
	}
	return nil
}

// prepareBase replays the base backup's redo log without rolling back
// uncommitted transactions, leaving it open for incremental merges.
func (p *Pipeline) prepareBase(ctx context.Context, base catalog.Entry) error {
	p.log.Info("preparing base backup", "stamp", base.Stamp)
	res, err := p.run.Run(ctx, "xtrabackup",
		"--prepare", "--apply-log-only", "--target-dir="+base.Dir)
	if err != nil {
		return errors.Wrap(err, errors.CodePrepareFailed, errors.CategoryPipeline,
			"running xtrabackup --prepare")
	}
	if res.ExitCode != 0 {
		return errors.New(errors.CodePrepareFailed, errors.CategoryPipeline,
			fmt.Sprintf("preparing base backup %s failed (exit %d): %s",
				base.Stamp, res.ExitCode, firstLine(res.Stderr)))
	}
	return nil
}

func (p *Pipeline) mergeIncremental(ctx context.Context, base, inc catalog.Entry) error {
	p.log.Info("merging incremental backup", "stamp", inc.Stamp)
	res, err := p.run.Run(ctx, "xtrabackup",
		"--prepare", "--apply-log-only",
		"--target-dir="+base.Dir, "--incremental-dir="+inc.Dir)
	if err != nil {
		return errors.Wrap(err, errors.CodePrepareFailed, errors.CategoryPipeline,
			"running xtrabackup incremental merge")
	}
	if res.ExitCode != 0 {
		return errors.New(errors.CodePrepareFailed, errors.CategoryPipeline,
			fmt.Sprintf("merging incremental %s failed (exit %d): %s",
				inc.Stamp, res.ExitCode, firstLine(res.Stderr)))
	}
	return nil
}

// finalPrepare completes crash recovery: a final prepare without
// --apply-log-only rolls back uncommitted transactions. No further
// incrementals can be merged after this.
func (p *Pipeline) finalPrepare(ctx context.Context, base catalog.Entry) error {
	p.log.Info("finalizing backup preparation", "stamp", base.Stamp)
	res, err := p.run.Run(ctx, "xtrabackup", "--prepare", "--target-dir="+base.Dir)
	if err != nil {
		return errors.Wrap(err, errors.CodePrepareFailed, errors.CategoryPipeline,
			"running final xtrabackup --prepare")
	}
	if res.ExitCode != 0 {
		return errors.New(errors.CodePrepareFailed, errors.CategoryPipeline,
			fmt.Sprintf("final prepare failed (exit %d): %s",
				res.ExitCode, firstLine(res.Stderr)))
	}
	return nil
}

// replaceDataDir purges the data directory and copies the prepared
// backup in. Existing data is copied aside first, minus the binlogs
// that were already staged.
func (p *Pipeline) replaceDataDir(ctx context.Context, base catalog.Entry) error {
	dataDir := p.cfg.MySQLDataDir

	entries, err := afero.ReadDir(fs.FS, dataDir)
	if err == nil && len(entries) > 0 {
		aside := filepath.Join(p.cfg.BackupBaseDir,
			"existing_data_backup_"+stamp.FromTime(p.now()).String())
		p.log.Warn("data directory is not empty, copying existing data aside", "dir", aside)
		if err := copyAside(dataDir, aside); err != nil {
			p.log.Warn("failed to copy existing data aside", "error", err)
		}
		// xtrabackup --copy-back requires a completely empty datadir.
		for _, entry := range entries {
			if err := fs.FS.RemoveAll(filepath.Join(dataDir, entry.Name())); err != nil {
				p.log.Warn("failed to remove from data directory",
					"name", entry.Name(), "error", err)
			}
		}
	}

	p.log.Info("copying prepared backup into data directory", "stamp", base.Stamp)
	res, err := p.run.Run(ctx, "xtrabackup",
		"--copy-back", "--target-dir="+base.Dir, "--datadir="+dataDir)
	if err != nil {
		return errors.Wrap(err, errors.CodeCopyBackFailed, errors.CategoryPipeline,
			"running xtrabackup --copy-back")
	}
	if res.ExitCode != 0 {
		return errors.New(errors.CodeCopyBackFailed, errors.CategoryPipeline,
			fmt.Sprintf("copy-back failed (exit %d): %s", res.ExitCode, firstLine(res.Stderr)))
	}

	p.fixPermissions(ctx, dataDir)
	return nil
}

// fixPermissions hands the restored files to the mysql user.
// Best effort: inside a container this may be unnecessary or
// impossible, and the server will complain if it actually matters.
func (p *Pipeline) fixPermissions(ctx context.Context, dataDir string) {
	if res, err := p.run.Run(ctx, "chown", "-R", "mysql:mysql", dataDir); err != nil || res.ExitCode != 0 {
		p.log.Warn("failed to chown data directory", "error", err, "stderr", res.Stderr)
	}
	if res, err := p.run.Run(ctx, "chmod", "700", dataDir); err != nil || res.ExitCode != 0 {
		p.log.Warn("failed to chmod data directory", "error", err, "stderr", res.Stderr)
	}
}

// deleteStaleBinlogs removes binlogs that came back with the copied
// backup. They describe the time of the backup, not the live history
// staged earlier, and replaying from them would be wrong.
func (p *Pipeline) deleteStaleBinlogs() {
	matches, _ := afero.Glob(fs.FS, filepath.Join(p.cfg.MySQLDataDir, "mysql-bin.*"))
	for _, m := range matches {
		if err := fs.FS.Remove(m); err != nil {
			p.log.Warn("failed to remove stale binlog", "file", m, "error", err)
			continue
		}
		p.log.Debug("removed stale binlog from backup", "file", filepath.Base(m))
	}
}

// restoreBinlogs moves the staged live binlogs back into the data
// directory and removes the staging directory.
func (p *Pipeline) restoreBinlogs(tempDir string) {
	index := filepath.Join(tempDir, "mysql-bin.index")
	if !fs.Exists(index) {
		p.log.Debug("no staged binlogs to restore")
		fs.FS.RemoveAll(tempDir)
		return
	}

	if err := fs.CopyFile(index, p.cfg.BinlogIndexPath()); err != nil {
		p.log.Warn("failed to restore binlog index", "error", err)
	}

	restored := 0
	matches, _ := afero.Glob(fs.FS, filepath.Join(tempDir, "mysql-bin.[0-9]*"))
	for _, m := range matches {
		dst := filepath.Join(p.cfg.MySQLDataDir, filepath.Base(m))
		if err := fs.CopyFile(m, dst); err != nil {
			p.log.Warn("failed to restore binlog file",
				"file", filepath.Base(m), "error", err)
			continue
		}
		restored++
	}
	p.log.Info("restored live binlogs into data directory", "count", restored)

	if err := fs.FS.RemoveAll(tempDir); err != nil {
		p.log.Warn("failed to remove binlog staging directory", "dir", tempDir, "error", err)
	}
}

// copyAside recursively copies everything under src except binlog
// files into dst.
func copyAside(src, dst string) error {
	if err := fs.FS.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := afero.ReadDir(fs.FS, src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "mysql-bin.") {
			continue
		}
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(from, to); err != nil {
				return err
			}
			continue
		}
		if err := fs.CopyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	if err := fs.FS.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := afero.ReadDir(fs.FS, src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(from, to); err != nil {
				return err
			}
			continue
		}
		if err := fs.CopyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "unknown error"
	}
	return s
}
