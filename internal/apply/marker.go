// Package apply performs the deferred half of a point-in-time
// restore: once the server is back up, it replays the extracted
// binlog SQL recorded in the marker file, then consumes the marker.
package apply

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"pitrctl/internal/fs"
)

// WriteMarker durably records the replay script path. The restore and
// the replay run in different processes, possibly different container
// invocations, so the marker must survive an abrupt exit in between.
func WriteMarker(markerPath, sqlPath string) error {
	if err := fs.WriteDurable(markerPath, []byte(sqlPath+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing restore marker: %w", err)
	}
	return nil
}

// ReadMarker returns the replay script path recorded in the marker.
// ok is false when no marker exists.
func ReadMarker(markerPath string) (sqlPath string, ok bool, err error) {
	if !fs.Exists(markerPath) {
		return "", false, nil
	}
	data, err := afero.ReadFile(fs.FS, markerPath)
	if err != nil {
		return "", false, fmt.Errorf("reading restore marker: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// RemoveMarker deletes the marker. Replay is at-most-once: the marker
// goes away on success and on an unusable marker, never on a replay
// failure that an operator could retry.
func RemoveMarker(markerPath string) error {
	if err := fs.FS.Remove(markerPath); err != nil && fs.Exists(markerPath) {
		return fmt.Errorf("removing restore marker: %w", err)
	}
	return nil
}
