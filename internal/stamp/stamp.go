// Package stamp implements the compact backup timestamp format and the
// timezone arithmetic around restore targets.
//
// Backup directories and object keys carry a YYYYMMDD_HHMMSS stamp generated
// in UTC. Restore targets are entered by operators in the configured local
// zone. Both sides are converted through this package so comparisons never
// mix wall clocks.
package stamp

import (
	"fmt"
	"regexp"
	"time"
)

// Layout is the compact stamp format. Fixed-width and zero-padded, so
// lexicographic order on the string equals chronological order.
const Layout = "20060102_150405"

// TargetLayout is the operator-facing target time format. Strict: anything
// that does not parse against it exactly is rejected.
const TargetLayout = "2006-01-02 15:04:05"

// DefaultZone is used when no restore timezone is configured.
const DefaultZone = "Asia/Shanghai"

var stampPattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// Stamp is a validated compact backup timestamp. The zero value is "no
// stamp"; every non-zero Stamp came through Parse or FromTime and is
// guaranteed well-formed, so string comparison is a safe ordering.
type Stamp struct {
	s string
}

// Parse validates and wraps a compact stamp string.
func Parse(s string) (Stamp, error) {
	if !stampPattern.MatchString(s) {
		return Stamp{}, fmt.Errorf("invalid backup stamp %q (want YYYYMMDD_HHMMSS)", s)
	}
	if _, err := time.Parse(Layout, s); err != nil {
		return Stamp{}, fmt.Errorf("invalid backup stamp %q: %w", s, err)
	}
	return Stamp{s: s}, nil
}

// IsStampString reports whether s looks like a compact stamp. Used by the
// CLI to tell a full-backup stamp argument apart from incremental names.
func IsStampString(s string) bool {
	return stampPattern.MatchString(s)
}

// FromTime renders an instant as a compact stamp in UTC.
func FromTime(t time.Time) Stamp {
	return Stamp{s: t.UTC().Format(Layout)}
}

// IsZero reports whether the stamp is unset.
func (s Stamp) IsZero() bool { return s.s == "" }

// String returns the compact form.
func (s Stamp) String() string { return s.s }

// Time returns the UTC instant the stamp encodes. Panics on the zero Stamp;
// callers check IsZero first.
func (s Stamp) Time() time.Time {
	t, err := time.Parse(Layout, s.s)
	if err != nil {
		panic("stamp: Time called on invalid stamp " + s.s)
	}
	return t.UTC()
}

// Before reports whether s is strictly earlier than other.
func (s Stamp) Before(other Stamp) bool { return s.s < other.s }

// After reports whether s is strictly later than other.
func (s Stamp) After(other Stamp) bool { return s.s > other.s }

// Max returns the later of two stamps, treating the zero stamp as earliest.
func Max(a, b Stamp) Stamp {
	if a.s > b.s {
		return a
	}
	return b
}

// Target is a resolved restore target: the operator's local-time string plus
// the absolute instant it denotes.
type Target struct {
	Raw     string
	Zone    *time.Location
	Instant time.Time
}

// ParseTarget strict-parses an operator target time in the named zone.
// An empty zone name falls back to DefaultZone.
func ParseTarget(raw, zone string) (Target, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Target{}, fmt.Errorf("unknown restore timezone %q: %w", zone, err)
	}
	t, err := time.ParseInLocation(TargetLayout, raw, loc)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target time %q (want %q): %w", raw, TargetLayout, err)
	}
	return Target{Raw: raw, Zone: loc, Instant: t}, nil
}

// Stamp renders the target instant as a compact stamp in UTC, the form
// catalog entries are compared against.
func (t Target) Stamp() Stamp {
	return FromTime(t.Instant)
}

// UTCString returns the target instant formatted for mysqlbinlog bounds.
func (t Target) UTCString() string {
	return t.Instant.UTC().Format(TargetLayout)
}
