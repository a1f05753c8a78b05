/*
dates.go - Flexible date parsing for report preambles

PURPOSE:
  Chapter exports encode dates three ways, tried in priority order:

    1. Excel date serial (1..100000), converted through excelize so the
       result matches what spreadsheet tools display, 1900 leap-year quirk
       included
    2. DD-MM-YY / DD-MM-YYYY text (two-digit years: <=30 maps to 20xx,
       >30 maps to 19xx)
    3. A short list of common textual layouts as last resort

  A parse yielding a year outside 1900-2100, or a date whose components
  don't round-trip (e.g. 30-02-25), is unparseable rather than an error:
  the caller simply leaves the field unset.
*/
package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/chapterpulse/score-engine/report"
)

// Excel serials outside this range are not treated as dates. The upper
// bound keeps plain large numbers (TYFCB values, phone fragments) from
// being misread as dates.
const (
	minExcelSerial = 1
	maxExcelSerial = 100000
)

var ddmmyyPattern = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2,4})$`)

// Fallback layouts for dates that are neither serials nor DD-MM-YY.
var fallbackLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02/01/06",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseFlexibleDate attempts to read a date from one cell's text. The
// boolean is false when nothing plausible could be parsed.
func ParseFlexibleDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return parseExcelSerial(serial)
	}

	if m := ddmmyyPattern.FindStringSubmatch(trimmed); m != nil {
		return parseDayMonthYear(m[1], m[2], m[3])
	}

	for _, layout := range fallbackLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			parsed = parsed.UTC()
			if report.ValidYear(parsed) {
				return parsed, true
			}
		}
	}

	return time.Time{}, false
}

func parseExcelSerial(serial float64) (time.Time, bool) {
	if serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, false
	}
	parsed, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	if !report.ValidYear(parsed) {
		return time.Time{}, false
	}
	return parsed, true
}

func parseDayMonthYear(dayStr, monthStr, yearStr string) (time.Time, bool) {
	day, _ := strconv.Atoi(dayStr)
	month, _ := strconv.Atoi(monthStr)
	year, _ := strconv.Atoi(yearStr)

	if len(yearStr) == 2 {
		if year > 30 {
			year += 1900
		} else {
			year += 2000
		}
	}

	if year < report.MinYear || year > report.MaxYear {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	// time.Date normalizes overflow (Feb 30 becomes Mar 2); a component
	// mismatch means the input named a nonexistent date.
	if parsed.Year() != year || parsed.Month() != time.Month(month) || parsed.Day() != day {
		return time.Time{}, false
	}

	return parsed, true
}
