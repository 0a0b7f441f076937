package apply

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"pitrctl/internal/config"
	"pitrctl/internal/errors"
	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
	"pitrctl/internal/runner"
)

func TestMarkerRoundTrip(t *testing.T) {
	restore := fs.SetFS(afero.NewMemMapFs())
	t.Cleanup(restore)
	fs.FS.MkdirAll("/backup", 0o755)

	marker := "/backup/.pitr_restore_marker"
	if err := WriteMarker(marker, "/backup/pitr_replay_20250101_000000_1234.sql"); err != nil {
		t.Fatalf("WriteMarker: %v", err)
	}

	sqlPath, ok, err := ReadMarker(marker)
	if err != nil {
		t.Fatalf("ReadMarker: %v", err)
	}
	if !ok {
		t.Fatal("marker should exist")
	}
	if sqlPath != "/backup/pitr_replay_20250101_000000_1234.sql" {
		t.Errorf("sqlPath = %q", sqlPath)
	}

	if err := RemoveMarker(marker); err != nil {
		t.Fatalf("RemoveMarker: %v", err)
	}
	if _, ok, _ := ReadMarker(marker); ok {
		t.Error("marker should be gone")
	}
}

func TestReadMarkerMissing(t *testing.T) {
	restore := fs.SetFS(afero.NewMemMapFs())
	t.Cleanup(restore)

	_, ok, err := ReadMarker("/backup/.pitr_restore_marker")
	if err != nil {
		t.Fatalf("ReadMarker: %v", err)
	}
	if ok {
		t.Error("missing marker should report ok=false")
	}
}

func TestCriticalLines(t *testing.T) {
	cases := []struct {
		name     string
		output   string
		critical int
	}{
		{"clean", "Query OK\n", 0},
		{"duplicate entry", "ERROR 1062 (23000) at line 5: Duplicate entry '1' for key 'PRIMARY'\n", 0},
		{"table exists", "ERROR 1050 (42S01): Table 't' already exists\n", 0},
		{"cant find record", "error 1032 (HY000): Can't find record in 't'\n", 0},
		{"missing table", "ERROR 1146 (42S02): Table 'db.t' doesn't exist\n", 0},
		{"password warning", "mysql: [Warning] Using a password on the command line interface can be insecure.\n", 0},
		{"syntax error", "ERROR 1064 (42000) at line 3: You have an error in your SQL syntax\n", 1},
		{"mixed", "ERROR 1062: dup\nERROR 1064: syntax\nERROR 2002: can't connect\n", 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CriticalLines(tc.output)
			if len(got) != tc.critical {
				t.Errorf("CriticalLines(%q) = %v, want %d lines", tc.output, got, tc.critical)
			}
		})
	}
}

func TestErrorStats(t *testing.T) {
	output := "ERROR 1050: a\nERROR 1062: b\nERROR 1062: c\nERROR 1064: d\n"
	stats := ErrorStats(output)
	if stats["total"] != 4 {
		t.Errorf("total = %d", stats["total"])
	}
	if stats["table_exists"] != 1 || stats["duplicate_key"] != 2 {
		t.Errorf("stats = %v", stats)
	}
}

// scriptedRunner returns a fixed result for the mysql invocation.
type scriptedRunner struct {
	result runner.Result
	calls  [][]string
}

func (s *scriptedRunner) Run(_ context.Context, name string, args ...string) (runner.Result, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	return s.result, nil
}

func (s *scriptedRunner) RunStdoutFile(_ context.Context, _, name string, args ...string) (runner.Result, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	return s.result, nil
}

func (s *scriptedRunner) RunStdinFile(_ context.Context, inPath, name string, args ...string) (runner.Result, error) {
	s.calls = append(s.calls, append([]string{name, inPath}, args...))
	return s.result, nil
}

func (s *scriptedRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func engineFixture(t *testing.T, res runner.Result) (*Engine, *scriptedRunner, *config.Config) {
	t.Helper()
	restore := fs.SetFS(afero.NewMemMapFs())
	t.Cleanup(restore)

	cfg := &config.Config{
		BackupBaseDir: "/backup",
		MySQLHost:     "127.0.0.1",
		MySQLPort:     3306,
		MySQLUser:     "root",
		MySQLPassword: "secret",
	}
	fs.FS.MkdirAll("/backup", 0o755)

	run := &scriptedRunner{result: res}
	e := NewEngine(cfg, run, logger.NewSilent())
	e.ping = func(context.Context) error { return nil }
	return e, run, cfg
}

func stageReplay(t *testing.T, cfg *config.Config) string {
	t.Helper()
	sqlPath := "/backup/pitr_replay_20250101_000000_1234.sql"
	if err := afero.WriteFile(fs.FS, sqlPath, []byte("INSERT INTO t VALUES (1);\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteMarker(cfg.MarkerPath(), sqlPath); err != nil {
		t.Fatal(err)
	}
	return sqlPath
}

func TestEngineNoMarker(t *testing.T) {
	e, run, _ := engineFixture(t, runner.Result{})
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(run.calls) != 0 {
		t.Errorf("no marker should mean no commands, got %v", run.calls)
	}
}

func TestEngineReplaySuccess(t *testing.T) {
	e, run, cfg := engineFixture(t, runner.Result{})
	stageReplay(t, cfg)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok, _ := ReadMarker(cfg.MarkerPath()); ok {
		t.Error("marker should be consumed on success")
	}
	if len(run.calls) != 1 {
		t.Fatalf("calls = %v", run.calls)
	}
	call := strings.Join(run.calls[0], " ")
	if !strings.Contains(call, "--force") {
		t.Errorf("replay must use --force: %q", call)
	}
}

func TestEngineNonCriticalErrorsSucceed(t *testing.T) {
	e, _, cfg := engineFixture(t, runner.Result{
		ExitCode: 1,
		Stderr:   "ERROR 1062 (23000): Duplicate entry\nmysql: [Warning] Using a password\n",
	})
	stageReplay(t, cfg)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("non-critical errors should not fail the replay: %v", err)
	}
	if _, ok, _ := ReadMarker(cfg.MarkerPath()); ok {
		t.Error("marker should be consumed")
	}
}

func TestEngineCriticalErrorsFail(t *testing.T) {
	e, _, cfg := engineFixture(t, runner.Result{
		ExitCode: 1,
		Stderr:   "ERROR 1064 (42000): You have an error in your SQL syntax\n",
	})
	sqlPath := stageReplay(t, cfg)

	err := e.Run(context.Background())
	if !errors.Is(err, errors.CodeReplayFailed) {
		t.Fatalf("error code = %q, want %q", errors.CodeOf(err), errors.CodeReplayFailed)
	}

	// The marker stays so an operator can retry after fixing things.
	if _, ok, _ := ReadMarker(cfg.MarkerPath()); !ok {
		t.Error("marker should survive a failed replay")
	}
	if !fs.Exists(sqlPath) {
		t.Error("replay script should be kept for manual inspection")
	}
}

func TestEngineStaleMarkerConsumed(t *testing.T) {
	e, run, cfg := engineFixture(t, runner.Result{})
	if err := WriteMarker(cfg.MarkerPath(), "/backup/gone.sql"); err != nil {
		t.Fatal(err)
	}

	err := e.Run(context.Background())
	if !errors.Is(err, errors.CodeMarkerCorrupt) {
		t.Fatalf("error code = %q, want %q", errors.CodeOf(err), errors.CodeMarkerCorrupt)
	}
	if _, ok, _ := ReadMarker(cfg.MarkerPath()); ok {
		t.Error("stale marker should be consumed")
	}
	if len(run.calls) != 0 {
		t.Errorf("no replay should run for a stale marker: %v", run.calls)
	}
}

func TestEngineKilledReplayFails(t *testing.T) {
	// A replay killed by the timeout exits with a negative code and
	// produced no error lines; the empty output must not pass for a
	// clean run.
	e, _, cfg := engineFixture(t, runner.Result{ExitCode: -1})
	sqlPath := stageReplay(t, cfg)

	err := e.Run(context.Background())
	if !errors.Is(err, errors.CodeReplayFailed) {
		t.Fatalf("error code = %q, want %q", errors.CodeOf(err), errors.CodeReplayFailed)
	}
	if _, ok, _ := ReadMarker(cfg.MarkerPath()); !ok {
		t.Error("marker should survive a killed replay")
	}
	if !fs.Exists(sqlPath) {
		t.Error("replay script should be kept for manual inspection")
	}
}
