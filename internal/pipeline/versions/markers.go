package versions

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Filename conventions that signal "this is version N of some document".
var (
	versionNumRe  = regexp.MustCompile(`(?i)_v(\d+)$`)
	revisionRe    = regexp.MustCompile(`(?i)_rev(\d+)$`)
	longVersionRe = regexp.MustCompile(`(?i)_version(\d+)$`)
	parenCopyRe   = regexp.MustCompile(`\s*\((\d+)\)$`)
	isoDateRe     = regexp.MustCompile(`_(\d{4}-\d{2}-\d{2})$`)
	compactDateRe = regexp.MustCompile(`_(\d{8})$`)
	statusRe      = regexp.MustCompile(`(?i)_(draft|final|approved|review|wip)$`)
)

// statusPriority orders lifecycle markers from earliest to latest.
var statusPriority = map[string]int{
	"draft":    1,
	"wip":      2,
	"review":   3,
	"approved": 4,
	"final":    5,
}

type Markers struct {
	Base    string // file name stem with all recognized markers stripped
	Number  *int
	Date    *time.Time
	Status  string
	Matched bool
}

// ParseMarkers strips version markers off a file name stem, repeatedly, so
// "report_v2_draft" yields base "report", number 2, status draft.
func ParseMarkers(stem string) Markers {
	m := Markers{Base: stem}
	for {
		matched := false
		switch {
		case apply(&m.Base, versionNumRe, func(s string) bool { m.Number = atoiPtr(s); return m.Number != nil }):
			matched = true
		case apply(&m.Base, revisionRe, func(s string) bool { m.Number = atoiPtr(s); return m.Number != nil }):
			matched = true
		case apply(&m.Base, longVersionRe, func(s string) bool { m.Number = atoiPtr(s); return m.Number != nil }):
			matched = true
		case apply(&m.Base, parenCopyRe, func(s string) bool {
			if m.Number == nil {
				m.Number = atoiPtr(s)
			}
			return true
		}):
			matched = true
		case apply(&m.Base, isoDateRe, func(s string) bool {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				return false
			}
			m.Date = &t
			return true
		}):
			matched = true
		case apply(&m.Base, compactDateRe, func(s string) bool {
			t, err := time.Parse("20060102", s)
			if err != nil {
				return false
			}
			m.Date = &t
			return true
		}):
			matched = true
		case apply(&m.Base, statusRe, func(s string) bool { m.Status = strings.ToLower(s); return true }):
			matched = true
		}
		if !matched {
			break
		}
		m.Matched = true
	}
	m.Base = strings.TrimRight(m.Base, "_- ")
	return m
}

// apply trims the match off base only when capture accepts the value.
func apply(base *string, re *regexp.Regexp, capture func(string) bool) bool {
	match := re.FindStringSubmatch(*base)
	if len(match) != 2 {
		return false
	}
	if !capture(match[1]) {
		return false
	}
	*base = strings.TrimSuffix(*base, match[0])
	return true
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// StatusPriority returns the lifecycle rank for a status marker, 0 when the
// marker is unknown or absent.
func StatusPriority(status string) int {
	return statusPriority[strings.ToLower(status)]
}
