package binlog

import (
	"time"

	"pitrctl/internal/stamp"
)

// utcLayout is the datetime format mysqlbinlog expects. Binlog events
// carry UTC timestamps, so both window bounds are UTC.
const utcLayout = "2006-01-02 15:04:05"

// Window is the UTC time range to extract from the binlogs.
type Window struct {
	// Start is the stamp of the newest restored backup. Nil means no
	// backup bound exists and extraction starts from the earliest
	// binlog event.
	Start *time.Time

	// Stop is one second past the recovery target, so events at the
	// target second are included.
	Stop time.Time
}

// StartArg returns the --start-datetime value, or "" when unbounded.
func (w Window) StartArg() string {
	if w.Start == nil {
		return ""
	}
	return w.Start.UTC().Format(utcLayout)
}

// StopArg returns the --stop-datetime value.
func (w Window) StopArg() string {
	return w.Stop.UTC().Format(utcLayout)
}

// ComputeWindow derives the extraction window from the newest restored
// backup stamp and the recovery target. skip is true when the target
// is at or before the backup: the restored data already covers the
// target and replay would only move the database past it.
func ComputeWindow(last stamp.Stamp, target stamp.Target) (w Window, skip bool) {
	w.Stop = target.Instant.Add(time.Second).UTC()

	if last.IsZero() {
		return w, false
	}

	lastTime := last.Time()
	if !target.Instant.After(lastTime) {
		return Window{}, true
	}
	w.Start = &lastTime
	return w, false
}
