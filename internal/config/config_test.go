package config

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{
		"BACKUP_BASE_DIR", "MYSQL_DATA_DIR", "MYSQL_HOST", "MYSQL_PORT",
		"MYSQL_USER", "MYSQL_ROOT_PASSWORD", "RESTORE_TZ",
		"S3_BACKUP_ENABLED", "S3_ENDPOINT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.BackupBaseDir != "/backups" {
		t.Errorf("BackupBaseDir = %q, want /backups", cfg.BackupBaseDir)
	}
	if cfg.MySQLDataDir != "/var/lib/mysql" {
		t.Errorf("MySQLDataDir = %q", cfg.MySQLDataDir)
	}
	if cfg.MySQLPort != 3306 {
		t.Errorf("MySQLPort = %d, want 3306", cfg.MySQLPort)
	}
	if cfg.RestoreTZ != "Asia/Shanghai" {
		t.Errorf("RestoreTZ = %q, want Asia/Shanghai", cfg.RestoreTZ)
	}
	if cfg.S3.Enabled {
		t.Error("S3.Enabled should default to false")
	}
	if cfg.S3.ForcePathStyle {
		t.Error("S3.ForcePathStyle should default to false")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BACKUP_BASE_DIR", "/data/backups")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("RESTORE_TZ", "UTC")
	t.Setenv("S3_BACKUP_ENABLED", "true")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.BackupBaseDir != "/data/backups" {
		t.Errorf("BackupBaseDir = %q", cfg.BackupBaseDir)
	}
	if cfg.MySQLPort != 3307 {
		t.Errorf("MySQLPort = %d", cfg.MySQLPort)
	}
	if !cfg.S3.Enabled {
		t.Error("S3.Enabled should be true")
	}
	if !cfg.S3.ForcePathStyle {
		t.Error("S3.ForcePathStyle should be true")
	}
}

func TestInvalidPort(t *testing.T) {
	t.Setenv("MYSQL_PORT", "not-a-port")
	if _, err := New(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}

	t.Setenv("MYSQL_PORT", "70000")
	if _, err := New(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestS3EnabledRequiresEndpoint(t *testing.T) {
	t.Setenv("S3_BACKUP_ENABLED", "1")
	t.Setenv("S3_ENDPOINT", "")
	_, err := New()
	if err == nil {
		t.Fatal("expected error when S3 enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "S3_ENDPOINT") {
		t.Errorf("error should mention S3_ENDPOINT: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{BackupBaseDir: "/backup", MySQLDataDir: "/var/lib/mysql"}
	if got := cfg.MarkerPath(); got != "/backup/.pitr_restore_marker" {
		t.Errorf("MarkerPath = %q", got)
	}
	if got := cfg.BinlogIndexPath(); got != "/var/lib/mysql/mysql-bin.index" {
		t.Errorf("BinlogIndexPath = %q", got)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{MySQLHost: "db", MySQLPort: 3306, MySQLUser: "root", MySQLPassword: "secret"}
	dsn := cfg.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("DSN missing address: %q", dsn)
	}
	if !strings.HasPrefix(dsn, "root:secret@") {
		t.Errorf("DSN missing credentials: %q", dsn)
	}
}
