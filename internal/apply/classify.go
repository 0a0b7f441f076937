package apply

import (
	"regexp"
	"strings"
)

// Replay runs mysql --force, so individual statement errors do not
// stop execution. Afterwards the combined output decides success:
// some errors are expected when replaying binlogs over restored data
// and do not indicate a broken replay.
//
//	ERROR 1050  table already exists
//	ERROR 1062  duplicate entry
//	ERROR 1032  can't find record
//	ERROR 1146  table doesn't exist (dropped again later in the binlog)
var nonCriticalMarkers = []string{
	"ERROR 1050",
	"ERROR 1062",
	"ERROR 1032",
	"ERROR 1146",
	"USING A PASSWORD",
	"WARNING",
}

var errorCountPatterns = map[string]*regexp.Regexp{
	"total":         regexp.MustCompile(`(?i)ERROR`),
	"table_exists":  regexp.MustCompile(`(?i)ERROR\s+1050`),
	"duplicate_key": regexp.MustCompile(`(?i)ERROR\s+1062`),
	"no_record":     regexp.MustCompile(`(?i)ERROR\s+1032`),
}

// CriticalLines returns the ERROR lines in output that are not on the
// non-critical allowlist.
func CriticalLines(output string) []string {
	var critical []string
	for _, line := range strings.Split(output, "\n") {
		upper := strings.ToUpper(line)
		if !strings.Contains(upper, "ERROR") {
			continue
		}
		nonCritical := false
		for _, marker := range nonCriticalMarkers {
			if strings.Contains(upper, marker) {
				nonCritical = true
				break
			}
		}
		if !nonCritical {
			critical = append(critical, strings.TrimSpace(line))
		}
	}
	return critical
}

// ErrorStats counts error occurrences by class, for logging.
func ErrorStats(output string) map[string]int {
	stats := make(map[string]int, len(errorCountPatterns))
	for name, pattern := range errorCountPatterns {
		stats[name] = len(pattern.FindAllStringIndex(output, -1))
	}
	return stats
}
