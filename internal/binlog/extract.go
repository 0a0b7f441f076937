package binlog

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
	"pitrctl/internal/runner"
	"pitrctl/internal/stamp"
)

// ReplayPath returns a unique path for an extracted replay script.
func ReplayPath(baseDir string, now time.Time) string {
	name := fmt.Sprintf("pitr_replay_%s_%d.sql",
		stamp.FromTime(now).String(), 1000+rand.Intn(9000))
	return filepath.Join(baseDir, name)
}

// Extractor turns binlog segments into a replayable SQL script via
// mysqlbinlog.
type Extractor struct {
	run runner.Runner
	log logger.Logger
}

func NewExtractor(run runner.Runner, log logger.Logger) *Extractor {
	return &Extractor{run: run, log: log}
}

// Extract writes the events inside w from files into outPath. GTIDs
// are stripped so the script replays on a restored server whose
// executed-GTID set no longer matches.
//
// All segments are passed to a single mysqlbinlog invocation first;
// if that fails, each segment is retried individually and the
// successful ones are concatenated. Extract reports whether outPath
// holds anything to replay: an empty result is removed and reported
// as (false, nil).
func (e *Extractor) Extract(ctx context.Context, files []string, w Window, outPath string) (bool, error) {
	if len(files) == 0 {
		return false, nil
	}
	if _, err := e.run.LookPath("mysqlbinlog"); err != nil {
		return false, fmt.Errorf("mysqlbinlog not available: %w", err)
	}

	args := windowArgs(w)
	args = append(args, files...)

	e.log.Info("extracting binlog events",
		"segments", len(files), "start", orEarliest(w.StartArg()), "stop", w.StopArg())

	res, err := e.run.RunStdoutFile(ctx, outPath, "mysqlbinlog", args...)
	if err != nil {
		fs.FS.Remove(outPath)
		return false, fmt.Errorf("running mysqlbinlog: %w", err)
	}
	if res.ExitCode != 0 {
		e.log.Warn("batched binlog extraction failed, retrying per segment",
			"exit", res.ExitCode, "stderr", res.Stderr)
		if err := e.extractPerSegment(ctx, files, w, outPath); err != nil {
			fs.FS.Remove(outPath)
			return false, err
		}
	}

	info, err := fs.FS.Stat(outPath)
	if err != nil || info.Size() == 0 {
		fs.FS.Remove(outPath)
		e.log.Info("no binlog events in the extraction window")
		return false, nil
	}

	e.log.Info("binlog events extracted",
		"path", outPath, "size", humanize.Bytes(uint64(info.Size())))
	return true, nil
}

// extractPerSegment retries one segment at a time, appending whatever
// extracts cleanly. A corrupt segment is reported but does not abort
// the rest.
func (e *Extractor) extractPerSegment(ctx context.Context, files []string, w Window, outPath string) error {
	out, err := fs.FS.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	out.Close()

	var errs *multierror.Error
	processed := 0
	for _, file := range files {
		part := outPath + ".part"
		res, err := e.run.RunStdoutFile(ctx, part, "mysqlbinlog", append(windowArgs(w), file)...)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		if res.ExitCode != 0 {
			errs = multierror.Append(errs,
				fmt.Errorf("%s: mysqlbinlog exited %d", filepath.Base(file), res.ExitCode))
			fs.FS.Remove(part)
			continue
		}

		content, err := afero.ReadFile(fs.FS, part)
		fs.FS.Remove(part)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		if len(content) > 0 {
			if err := appendFile(outPath, content); err != nil {
				return err
			}
			processed++
			e.log.Info("extracted binlog segment", "file", filepath.Base(file))
		}
	}

	if processed == 0 {
		return fmt.Errorf("all binlog segments failed to extract: %w", errs.ErrorOrNil())
	}
	if errs.ErrorOrNil() != nil {
		e.log.Warn("some binlog segments failed to extract", "error", errs)
	}
	return nil
}

func windowArgs(w Window) []string {
	args := []string{"--skip-gtids"}
	if start := w.StartArg(); start != "" {
		args = append(args, "--start-datetime", start)
	}
	args = append(args, "--stop-datetime", w.StopArg())
	return args
}

func appendFile(path string, data []byte) error {
	f, err := fs.FS.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

func orEarliest(start string) string {
	if start == "" {
		return "earliest"
	}
	return start
}
