package apply

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	_ "github.com/go-sql-driver/mysql"

	"pitrctl/internal/config"
	"pitrctl/internal/errors"
	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
	"pitrctl/internal/runner"
)

const (
	// How long to wait for the restored server to accept connections.
	readyPollInterval = 2 * time.Second
	readyMaxAttempts  = 30

	// Large replay scripts can take a while; the original data may be
	// hours of binlog.
	replayTimeout = time.Hour
)

// Engine applies the deferred binlog replay recorded by a restore.
type Engine struct {
	cfg *config.Config
	run runner.Runner
	log logger.Logger

	// ping checks server readiness. Overridable in tests.
	ping func(ctx context.Context) error
}

func NewEngine(cfg *config.Config, run runner.Runner, log logger.Logger) *Engine {
	e := &Engine{cfg: cfg, run: run, log: log}
	e.ping = e.pingServer
	return e
}

// Run consumes the restore marker if one exists. Returns nil when
// there is nothing to do.
func (e *Engine) Run(ctx context.Context) error {
	markerPath := e.cfg.MarkerPath()
	sqlPath, ok, err := ReadMarker(markerPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeMarkerCorrupt, errors.CategoryReplay,
			"reading restore marker")
	}
	if !ok {
		e.log.Debug("no restore marker, nothing to replay")
		return nil
	}

	if sqlPath == "" || !fs.Exists(sqlPath) {
		// The marker points nowhere. Consume it so the server does
		// not retry a replay that can never succeed.
		RemoveMarker(markerPath)
		return errors.New(errors.CodeMarkerCorrupt, errors.CategoryReplay,
			fmt.Sprintf("restore marker references missing replay script %q", sqlPath))
	}

	if info, err := fs.FS.Stat(sqlPath); err == nil {
		e.log.Info("found deferred binlog replay",
			"script", sqlPath, "size", humanize.Bytes(uint64(info.Size())))
	}

	if err := e.waitForServer(ctx); err != nil {
		return errors.Wrap(err, errors.CodeServerNotReady, errors.CategoryEnvironment,
			"server did not become ready for replay")
	}

	if err := e.replay(ctx, sqlPath); err != nil {
		return err
	}

	if err := RemoveMarker(markerPath); err != nil {
		e.log.Warn("replay succeeded but the marker could not be removed", "error", err)
	}
	e.log.Info("deferred binlog replay complete", "script", sqlPath)
	return nil
}

func (e *Engine) waitForServer(ctx context.Context) error {
	e.log.Info("waiting for server to accept connections",
		"host", e.cfg.MySQLHost, "port", e.cfg.MySQLPort)

	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(readyPollInterval), readyMaxAttempts)
	return backoff.Retry(func() error {
		return e.ping(ctx)
	}, backoff.WithContext(policy, ctx))
}

func (e *Engine) pingServer(ctx context.Context) error {
	db, err := sql.Open("mysql", e.cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	return db.QueryRowContext(pingCtx, "SELECT 1").Scan(&one)
}

// replay feeds the script through mysql --force so statement errors
// do not stop execution, then judges the combined output.
func (e *Engine) replay(ctx context.Context, sqlPath string) error {
	runCtx, cancel := context.WithTimeout(ctx, replayTimeout)
	defer cancel()

	started := time.Now()
	res, err := e.run.RunStdinFile(runCtx, sqlPath, "mysql",
		"-h", e.cfg.MySQLHost,
		"-P", strconv.Itoa(e.cfg.MySQLPort),
		"-u", e.cfg.MySQLUser,
		"-p"+e.cfg.MySQLPassword,
		"--force")
	if err != nil {
		return errors.Wrap(err, errors.CodeReplayFailed, errors.CategoryReplay,
			"running mysql for replay")
	}

	// A negative exit means mysql was killed by a signal, typically
	// the replay timeout. The output is from a partial run and must
	// not be classified as success.
	if runCtx.Err() != nil || res.ExitCode < 0 {
		return errors.New(errors.CodeReplayFailed, errors.CategoryReplay,
			fmt.Sprintf("mysql was killed before the replay finished (exit %d), script kept at %s",
				res.ExitCode, sqlPath)).
			WithRemediation(fmt.Sprintf("inspect and re-apply manually: mysql -h %s -P %d -u %s -p < %s",
				e.cfg.MySQLHost, e.cfg.MySQLPort, e.cfg.MySQLUser, sqlPath))
	}

	output := res.Stdout + res.Stderr
	stats := ErrorStats(output)
	critical := CriticalLines(output)
	e.log.Info("replay finished",
		"duration", time.Since(started).Round(time.Second),
		"exit", res.ExitCode,
		"errors", stats["total"],
		"critical", len(critical))

	if res.ExitCode == 0 || len(critical) == 0 {
		if stats["total"] > 0 {
			e.log.Info("non-critical errors were ignored",
				"table_exists", stats["table_exists"],
				"duplicate_key", stats["duplicate_key"],
				"no_record", stats["no_record"])
		}
		return nil
	}

	for i, line := range critical {
		if i == 10 {
			e.log.Error("further critical errors omitted", "remaining", len(critical)-10)
			break
		}
		e.log.Error("critical replay error", "line", line)
	}
	return errors.New(errors.CodeReplayFailed, errors.CategoryReplay,
		fmt.Sprintf("replay produced %d critical errors (exit %d), script kept at %s",
			len(critical), res.ExitCode, sqlPath)).
		WithRemediation(fmt.Sprintf("inspect and re-apply manually: mysql -h %s -P %d -u %s -p < %s",
			e.cfg.MySQLHost, e.cfg.MySQLPort, e.cfg.MySQLUser, sqlPath))
}
