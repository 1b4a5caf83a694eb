package catalog

import (
	"strings"
	"time"
)

// nightlyDateLayout is the canonical storage form of a toolchain nightly
// date. Lexicographic order on this layout equals chronological order, which
// the staleness query relies on.
const nightlyDateLayout = "2006-01-02"

// ParseNightlyDate extracts the nightly snapshot date from a toolchain
// version string of the shape
//
//	rustc 1.78.0-nightly (abc123456 2024-02-03)
//
// The date is the last space-separated token inside the parenthesized commit
// info. Returns false for strings without a parseable date; such builds carry
// no nightly identifier and are excluded from staleness candidacy.
func ParseNightlyDate(rustcVersion string) (time.Time, bool) {
	open := strings.LastIndexByte(rustcVersion, '(')
	end := strings.LastIndexByte(rustcVersion, ')')
	if open < 0 || end < open {
		return time.Time{}, false
	}
	inner := strings.TrimSpace(rustcVersion[open+1 : end])
	fields := strings.Fields(inner)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(nightlyDateLayout, fields[len(fields)-1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatNightlyDate renders a nightly date in its canonical storage form.
func FormatNightlyDate(t time.Time) string {
	return t.UTC().Format(nightlyDateLayout)
}
