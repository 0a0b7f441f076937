package pitr

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"pitrctl/internal/apply"
	"pitrctl/internal/config"
	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
	"pitrctl/internal/runner"
	"pitrctl/internal/stamp"
)

// fakeRunner succeeds at every tool invocation and emits SQL from
// mysqlbinlog.
type fakeRunner struct {
	sql   string
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (runner.Result, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return runner.Result{}, nil
}

func (f *fakeRunner) RunStdoutFile(_ context.Context, outPath, name string, args ...string) (runner.Result, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return runner.Result{}, afero.WriteFile(fs.FS, outPath, []byte(f.sql), 0o644)
}

func (f *fakeRunner) RunStdinFile(_ context.Context, _, name string, args ...string) (runner.Result, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return runner.Result{}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func setup(t *testing.T) *config.Config {
	t.Helper()
	restoreFS := fs.SetFS(afero.NewMemMapFs())
	t.Cleanup(restoreFS)

	cfg := &config.Config{
		BackupBaseDir: "/backup",
		MySQLDataDir:  "/var/lib/mysql",
		MySQLHost:     "127.0.0.1",
		MySQLPort:     3306,
		MySQLUser:     "root",
	}

	afero.WriteFile(fs.FS, "/backup/full/20250101_000000/xtrabackup_checkpoints",
		[]byte("backup_type = full-backuped"), 0o644)
	afero.WriteFile(fs.FS, "/var/lib/mysql/mysql-bin.000001", []byte("events"), 0o644)
	afero.WriteFile(fs.FS, "/var/lib/mysql/mysql-bin.index", []byte("./mysql-bin.000001\n"), 0o644)
	return cfg
}

func target(t *testing.T, raw string) stamp.Target {
	t.Helper()
	tgt, err := stamp.ParseTarget(raw, "UTC")
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

func TestRestoreLeavesReplayMarker(t *testing.T) {
	cfg := setup(t)
	run := &fakeRunner{sql: "INSERT INTO t VALUES (1);\n"}
	o := New(cfg, nil, run, logger.NewSilent())

	err := o.Restore(context.Background(), target(t, "2025-01-02 00:00:00"), Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	sqlPath, ok, err := apply.ReadMarker(cfg.MarkerPath())
	if err != nil || !ok {
		t.Fatalf("marker missing: ok=%v err=%v", ok, err)
	}
	if !fs.Exists(sqlPath) {
		t.Errorf("replay script %s does not exist", sqlPath)
	}

	// Extraction window starts at the base backup stamp.
	var sawExtraction bool
	for _, call := range run.calls {
		if strings.HasPrefix(call, "mysqlbinlog") {
			sawExtraction = true
			if !strings.Contains(call, "--start-datetime 2025-01-01 00:00:00") {
				t.Errorf("extraction start wrong: %q", call)
			}
			if !strings.Contains(call, "--stop-datetime 2025-01-02 00:00:01") {
				t.Errorf("extraction stop wrong: %q", call)
			}
		}
	}
	if !sawExtraction {
		t.Error("mysqlbinlog was never invoked")
	}
}

func TestRestoreSkipsReplayWhenBackupCoversTarget(t *testing.T) {
	cfg := setup(t)
	run := &fakeRunner{}
	o := New(cfg, nil, run, logger.NewSilent())

	// Target exactly at the backup stamp.
	err := o.Restore(context.Background(), target(t, "2025-01-01 00:00:00"), Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if _, ok, _ := apply.ReadMarker(cfg.MarkerPath()); ok {
		t.Error("no marker should be written when the backup covers the target")
	}
	for _, call := range run.calls {
		if strings.HasPrefix(call, "mysqlbinlog") {
			t.Errorf("mysqlbinlog should not run: %q", call)
		}
	}
}

func TestRestoreNoBackup(t *testing.T) {
	cfg := setup(t)
	o := New(cfg, nil, &fakeRunner{}, logger.NewSilent())

	err := o.Restore(context.Background(), target(t, "2024-01-01 00:00:00"), Options{})
	if err == nil {
		t.Fatal("expected error when no backup precedes the target")
	}
}

func TestRestoreExplicitChain(t *testing.T) {
	cfg := setup(t)
	afero.WriteFile(fs.FS, "/backup/incremental/20250101_120000/xtrabackup_checkpoints",
		[]byte("backup_type = incremental"), 0o644)

	run := &fakeRunner{sql: "INSERT INTO t VALUES (1);\n"}
	o := New(cfg, nil, run, logger.NewSilent())

	full, _ := stamp.Parse("20250101_000000")
	inc, _ := stamp.Parse("20250101_120000")
	err := o.Restore(context.Background(), target(t, "2025-01-02 00:00:00"),
		Options{Full: full, Incrementals: []stamp.Stamp{inc}})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	var sawMerge bool
	for _, call := range run.calls {
		if strings.Contains(call, "--incremental-dir=/backup/incremental/20250101_120000") {
			sawMerge = true
		}
	}
	if !sawMerge {
		t.Error("explicit incremental was not merged")
	}
}

func TestRestoreExplicitFullMergesDiscoveredIncrementals(t *testing.T) {
	cfg := setup(t)
	afero.WriteFile(fs.FS, "/backup/incremental/20250101_120000/xtrabackup_checkpoints",
		[]byte("backup_type = incremental"), 0o644)

	run := &fakeRunner{sql: "INSERT INTO t VALUES (1);\n"}
	o := New(cfg, nil, run, logger.NewSilent())

	// Only the full is named; the incremental between it and the
	// target still gets merged.
	full, _ := stamp.Parse("20250101_000000")
	err := o.Restore(context.Background(), target(t, "2025-01-02 00:00:00"),
		Options{Full: full})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	var sawMerge bool
	for _, call := range run.calls {
		if strings.Contains(call, "--incremental-dir=/backup/incremental/20250101_120000") {
			sawMerge = true
		}
	}
	if !sawMerge {
		t.Error("discovered incremental was not merged")
	}
}
