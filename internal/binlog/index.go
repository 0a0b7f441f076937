// Package binlog locates binary log files and extracts the SQL needed
// to roll a restored datadir forward to a recovery target.
package binlog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
)

// ReadIndex parses a mysql-bin.index file and resolves each entry to
// an existing file. Index entries may be absolute paths, paths
// relative to baseDir, or stale paths whose bare filename still
// exists in baseDir. Entries that resolve nowhere are skipped.
func ReadIndex(indexPath, baseDir string, log logger.Logger) ([]string, error) {
	data, err := afero.ReadFile(fs.FS, indexPath)
	if err != nil {
		return nil, fmt.Errorf("reading binlog index %s: %w", indexPath, err)
	}

	var files []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var candidate string
		if strings.HasPrefix(line, "/") {
			candidate = line
		} else {
			candidate = filepath.Join(baseDir, strings.TrimPrefix(line, "./"))
		}

		if !fs.Exists(candidate) {
			// The index may have been written in another container
			// with a different datadir path. Fall back to the bare
			// filename next to the index.
			alt := filepath.Join(baseDir, filepath.Base(line))
			if fs.Exists(alt) {
				candidate = alt
			} else {
				log.Warn("binlog file from index not found, skipping", "entry", line)
				continue
			}
		}

		files = append(files, candidate)
	}
	return files, nil
}

// Discover returns the binlog files recorded in the datadir's index.
// When the index is missing it falls back to globbing mysql-bin.*
// segment files directly.
func Discover(dataDir string, log logger.Logger) []string {
	indexPath := filepath.Join(dataDir, "mysql-bin.index")
	if fs.Exists(indexPath) {
		files, err := ReadIndex(indexPath, dataDir, log)
		if err == nil {
			return files
		}
		log.Warn("failed to read binlog index", "path", indexPath, "error", err)
	}

	matches, err := afero.Glob(fs.FS, filepath.Join(dataDir, "mysql-bin.[0-9]*"))
	if err != nil {
		return nil
	}
	return matches
}
