/*
period.go - Calendar-month helpers shared by scoring and persistence

PURPOSE:
  Reporting periods are month-granular: score rows key on the first of the
  month, the replace-on-reupload predicate compares calendar month+year, and
  period ends default to end-of-month. These helpers keep that arithmetic in
  one place, always in UTC.
*/
package report

import "time"

// MinYear and MaxYear bound what the system accepts as a plausible report
// date. Anything outside is treated as unparseable, not as an error.
const (
	MinYear = 1900
	MaxYear = 2100
)

// NormalizeMonth truncates a date to the first of its month in UTC. A zero
// input yields the current month.
func NormalizeMonth(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last second of the month containing t, in UTC.
func EndOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Second)
}

// SameCalendarMonth reports whether two dates fall in the same month+year.
func SameCalendarMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// MonthKey renders the "YYYY-MM" key used by the heatmap and the duplicate
// cleanup grouping.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ValidYear reports whether t is non-zero and within the plausible range.
func ValidYear(t time.Time) bool {
	return !t.IsZero() && t.Year() >= MinYear && t.Year() <= MaxYear
}
