// Package catalog discovers backups on disk and in remote storage and
// resolves which chain of backups to restore for a recovery target.
package catalog

import (
	"context"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/spf13/afero"

	"pitrctl/internal/cloud"
	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
	"pitrctl/internal/stamp"
)

// Kind distinguishes full from incremental backups.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

var archivePattern = regexp.MustCompile(`^backup_(\d{8}_\d{6})\.tar\.gz$`)

// Entry is one discovered backup.
type Entry struct {
	Kind  Kind
	Stamp stamp.Stamp

	// Dir is where the backup lives (or would live) locally.
	Dir string

	// Key is the remote archive key when the entry was discovered in
	// object storage. Empty for local-only entries.
	Key string

	// Local reports whether the backup directory exists on disk.
	Local bool
}

// Catalog enumerates backups under a base directory, optionally merged
// with a remote store.
type Catalog struct {
	baseDir string
	store   cloud.Store
	log     logger.Logger
}

// New creates a Catalog. store may be nil when remote storage is
// disabled.
func New(baseDir string, store cloud.Store, log logger.Logger) *Catalog {
	return &Catalog{baseDir: baseDir, store: store, log: log}
}

// List returns all discovered backups sorted by stamp ascending.
// Remote discovery failures degrade to local-only results: a restore
// should still work from local backups when object storage is down.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	seen := make(map[string]Entry)

	for _, kind := range []Kind{KindFull, KindIncremental} {
		c.listLocal(kind, seen)
	}
	if c.store != nil {
		for _, kind := range []Kind{KindFull, KindIncremental} {
			c.listRemote(ctx, kind, seen)
		}
	}

	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Stamp == entries[j].Stamp {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Stamp.Before(entries[j].Stamp)
	})
	return entries, nil
}

func (c *Catalog) listLocal(kind Kind, seen map[string]Entry) {
	dir := filepath.Join(c.baseDir, string(kind))
	infos, err := afero.ReadDir(fs.FS, dir)
	if err != nil {
		return
	}
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		s, err := stamp.Parse(info.Name())
		if err != nil {
			continue
		}
		seen[entryKey(kind, s)] = Entry{
			Kind:  kind,
			Stamp: s,
			Dir:   filepath.Join(dir, info.Name()),
			Local: true,
		}
	}
}

func (c *Catalog) listRemote(ctx context.Context, kind Kind, seen map[string]Entry) {
	objects, err := c.store.List(ctx, string(kind)+"/")
	if err != nil {
		c.log.Warn("remote backup listing failed, using local backups only",
			"kind", kind, "error", err)
		return
	}
	for _, obj := range objects {
		m := archivePattern.FindStringSubmatch(path.Base(obj.Key))
		if m == nil {
			continue
		}
		s, err := stamp.Parse(m[1])
		if err != nil {
			continue
		}
		key := entryKey(kind, s)
		if _, ok := seen[key]; ok {
			// Local copy wins over the remote archive.
			continue
		}
		seen[key] = Entry{
			Kind:  kind,
			Stamp: s,
			Dir:   filepath.Join(c.baseDir, string(kind), s.String()),
			Key:   obj.Key,
		}
	}
}

func entryKey(kind Kind, s stamp.Stamp) string {
	return string(kind) + "/" + s.String()
}
