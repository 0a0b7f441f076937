// Package config loads tool configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MarkerFileName is the deferred-replay marker written after a
// point-in-time restore and consumed once the server is back up.
const MarkerFileName = ".pitr_restore_marker"

// S3Config holds object storage settings for remote backup retrieval.
type S3Config struct {
	Enabled        bool
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
	ForcePathStyle bool
}

// Config holds all runtime configuration.
type Config struct {
	BackupBaseDir string
	MySQLDataDir  string

	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string

	// RestoreTZ is the IANA zone recovery targets are interpreted in.
	RestoreTZ string

	S3 S3Config

	LogLevel  string
	LogFormat string
}

// New builds a Config from environment variables, applying defaults.
func New() (*Config, error) {
	cfg := &Config{
		BackupBaseDir: envOr("BACKUP_BASE_DIR", "/backups"),
		MySQLDataDir:  envOr("MYSQL_DATA_DIR", "/var/lib/mysql"),
		MySQLHost:     envOr("MYSQL_HOST", "127.0.0.1"),
		MySQLUser:     envOr("MYSQL_USER", "root"),
		MySQLPassword: os.Getenv("MYSQL_ROOT_PASSWORD"),
		RestoreTZ:     envOr("RESTORE_TZ", "Asia/Shanghai"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "text"),
	}

	port, err := envInt("MYSQL_PORT", 3306)
	if err != nil {
		return nil, err
	}
	cfg.MySQLPort = port

	cfg.S3 = S3Config{
		Enabled:        envBool("S3_BACKUP_ENABLED", false),
		Endpoint:       os.Getenv("S3_ENDPOINT"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Bucket:         envOr("S3_BUCKET", "mysql-backups"),
		Region:         envOr("S3_REGION", "us-east-1"),
		UseSSL:         envBool("S3_USE_SSL", true),
		ForcePathStyle: envBool("S3_FORCE_PATH_STYLE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.BackupBaseDir == "" {
		return fmt.Errorf("BACKUP_BASE_DIR must not be empty")
	}
	if c.MySQLDataDir == "" {
		return fmt.Errorf("MYSQL_DATA_DIR must not be empty")
	}
	if c.MySQLPort < 1 || c.MySQLPort > 65535 {
		return fmt.Errorf("MYSQL_PORT out of range: %d", c.MySQLPort)
	}
	if c.S3.Enabled && c.S3.Endpoint == "" {
		return fmt.Errorf("S3_BACKUP_ENABLED is set but S3_ENDPOINT is empty")
	}
	return nil
}

// MarkerPath returns the path of the deferred-replay marker file.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.BackupBaseDir, MarkerFileName)
}

// BinlogIndexPath returns the path of the server's binlog index file.
func (c *Config) BinlogIndexPath() string {
	return filepath.Join(c.MySQLDataDir, "mysql-bin.index")
}

// DSN returns a go-sql-driver connection string for the configured server.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=10s", c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLPort)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
