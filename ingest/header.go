/*
header.go - Heuristic header-row detection and preamble metadata

PURPOSE:
  Real chapter exports bury the data table under a variable number of
  metadata rows ("Running User:", "Chapter: PATRONS", "From: 01-05-25 To:
  31-05-25"). LocateHeader finds the row that actually names the columns;
  ExtractMetadata recovers chapter and period dates from the rows above it.

DETECTION ALGORITHM:
  Ordered passes, strongest first:

    strong:  row has an identity indicator (first/last/member/name) AND at
             least two known metric columns AND no metadata-only marker
    weak:    row has an identity indicator AND at least one metric column
    none:    nothing matched; index 0 is returned and downstream
             normalization will simply drop every row

  Degraded outcomes are not errors; a caller only learns about them through
  the zero-valid-rows rejection.

SEE ALSO:
  - dates.go: the flexible date parser used on preamble cells
  - normalize.go: the dictionary of canonical column labels
*/
package ingest

import (
	"strings"
	"time"
	"unicode"

	"github.com/chapterpulse/score-engine/report"
)

// Confidence grades how a header row was found.
type Confidence string

const (
	ConfidenceStrong Confidence = "strong"
	ConfidenceWeak   Confidence = "weak"
	ConfidenceNone   Confidence = "none"
)

// HeaderLocation is the result of header detection.
type HeaderLocation struct {
	Index      int
	Confidence Confidence
}

// LocateHeader scans rows top-to-bottom and returns the index of the first
// row satisfying the strongest matching rule. With no match at all it
// returns row 0 with ConfidenceNone.
func LocateHeader(rows []Row, dict Dictionary) HeaderLocation {
	for i, row := range rows {
		cells := lowerCells(row)
		if hasMetadataMarker(cells, dict) {
			continue
		}
		if hasIdentityIndicator(cells, dict) && countMetricColumns(cells, dict) >= 2 {
			return HeaderLocation{Index: i, Confidence: ConfidenceStrong}
		}
	}

	for i, row := range rows {
		cells := lowerCells(row)
		if hasIdentityIndicator(cells, dict) && countMetricColumns(cells, dict) >= 1 {
			return HeaderLocation{Index: i, Confidence: ConfidenceWeak}
		}
	}

	return HeaderLocation{Index: 0, Confidence: ConfidenceNone}
}

// LocateTrainingHeader finds the row exposing both a first-name and a
// last-name column, exact match after lowering. Returns -1 when absent.
func LocateTrainingHeader(rows []Row, dict Dictionary) int {
	for i, row := range rows {
		cells := lowerCells(row)
		if containsAny(cells, dict.TrainingFirstKeys) && containsAny(cells, dict.TrainingLastKeys) {
			return i
		}
	}
	return -1
}

// ExtractMetadata scans only the rows strictly before the header for
// "chapter:", "from:" and "to:" markers. Values are taken from the text
// after the colon in the same cell, from the next non-empty cell, or - for
// dates - from any remaining cell in the row that parses, date serials
// included.
func ExtractMetadata(rows []Row, headerIndex int) report.ReportMetadata {
	var meta report.ReportMetadata

	if headerIndex > len(rows) {
		headerIndex = len(rows)
	}

	for _, row := range rows[:headerIndex] {
		joined := strings.ToLower(strings.Join(row, " "))

		if meta.Chapter == "" && strings.Contains(joined, "chapter:") {
			meta.Chapter = extractLabeledText(row, "chapter:")
		}
		if meta.FromDate.IsZero() && strings.Contains(joined, "from:") {
			meta.FromDate = extractLabeledDate(row, "from:")
		}
		if meta.ToDate.IsZero() && strings.Contains(joined, "to:") {
			meta.ToDate = extractLabeledDate(row, "to:")
		}
	}

	return meta
}

// extractLabeledText finds the cell containing the marker and returns the
// text after its colon, or the next non-empty cell when the marker cell
// holds nothing else.
func extractLabeledText(row Row, marker string) string {
	for i, cell := range row {
		if !strings.Contains(strings.ToLower(cell), marker) {
			continue
		}
		if after := afterColon(cell); after != "" {
			return after
		}
		for _, next := range row[i+1:] {
			if v := strings.TrimSpace(next); v != "" {
				return v
			}
		}
		return ""
	}
	return ""
}

// extractLabeledDate resolves a date for a "from:"/"to:" marker. Exports
// place the date in the marker cell or several columns to its right, so
// after the same-cell attempt every remaining cell in the row is tried,
// date serials included.
func extractLabeledDate(row Row, marker string) time.Time {
	for i, cell := range row {
		idx := strings.Index(strings.ToLower(cell), marker)
		if idx < 0 {
			continue
		}
		after := strings.TrimSpace(cell[idx+len(marker):])
		if after != "" {
			if parsed, ok := ParseFlexibleDate(after); ok {
				return parsed
			}
			// "From: 01-05-25 To: 31-05-25" in one cell: the first token
			// after the marker is the date.
			if fields := strings.Fields(after); len(fields) > 0 {
				if parsed, ok := ParseFlexibleDate(fields[0]); ok {
					return parsed
				}
			}
		}
		for _, rest := range row[i+1:] {
			if parsed, ok := ParseFlexibleDate(rest); ok {
				return parsed
			}
		}
		return time.Time{}
	}
	return time.Time{}
}

func afterColon(cell string) string {
	_, after, found := strings.Cut(cell, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(after)
}

func lowerCells(row Row) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.ToLower(strings.TrimSpace(cell))
	}
	return out
}

func hasMetadataMarker(cells []string, dict Dictionary) bool {
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		for _, marker := range dict.MetadataMarkers {
			if markerMatches(cell, marker) {
				return true
			}
		}
	}
	return false
}

// markerMatches requires whole-word hits so short markers like "to" never
// fire inside header labels ("Visitors", "Total"). Multi-word markers keep
// plain substring matching.
func markerMatches(cell, marker string) bool {
	if strings.ContainsRune(marker, ' ') {
		return strings.Contains(cell, marker)
	}
	for _, token := range strings.FieldsFunc(cell, isWordBoundary) {
		if token == marker {
			return true
		}
	}
	return false
}

func isWordBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func hasIdentityIndicator(cells []string, dict Dictionary) bool {
	for _, cell := range cells {
		for _, indicator := range dict.IdentityIndicators {
			if cell != "" && strings.Contains(cell, indicator) {
				return true
			}
		}
	}
	return false
}

func countMetricColumns(cells []string, dict Dictionary) int {
	count := 0
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		for _, metric := range dict.MetricColumns {
			if cell == metric || strings.Contains(cell, metric) {
				count++
				break
			}
		}
	}
	return count
}

func containsAny(cells []string, keys []string) bool {
	for _, cell := range cells {
		for _, key := range keys {
			if cell == key {
				return true
			}
		}
	}
	return false
}
