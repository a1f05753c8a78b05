/*
normalize.go - Column mapping, identity resolution and row filtering

PURPOSE:
  Maps arbitrary header spellings onto the canonical row schema, coerces
  cell text to numbers, resolves a member name (first+last columns joined,
  else a direct member/name column), and drops rows that are chapter
  aggregates rather than people.

DROPPED, NEVER FATAL:
  A row that can't produce an identity, fails coercion, or matches the
  ignore list is logged and skipped. Only a file that yields ZERO rows is
  surfaced to the caller, as report.NoValidRowsError.

CONFIGURATION:
  All lookup tables live in Dictionary, built once via DefaultDictionary()
  and passed in explicitly, so the parsing functions stay deterministic and
  independently testable.
*/
package ingest

import (
	"log"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chapterpulse/score-engine/report"
)

// =============================================================================
// DICTIONARY - Immutable lookup tables
// =============================================================================

// Dictionary holds every lookup table the ingestion pipeline consults.
// Treat instances as immutable after construction.
type Dictionary struct {
	// MainHeaderMap maps lowercased header labels to canonical field names.
	MainHeaderMap map[string]string

	// FirstNameKeys/LastNameKeys are labels of split-name columns.
	FirstNameKeys []string
	LastNameKeys  []string

	// TrainingFirstKeys/TrainingLastKeys are the exact-match header labels
	// accepted in training reports.
	TrainingFirstKeys []string
	TrainingLastKeys  []string

	// IgnoredNames marks chapter-aggregate pseudo-rows (substring match on
	// the normalized resolved name).
	IgnoredNames []string

	// IdentityIndicators/MetricColumns/MetadataMarkers drive header
	// detection; see header.go.
	IdentityIndicators []string
	MetricColumns      []string
	MetadataMarkers    []string
}

// Canonical field names produced by MainHeaderMap.
const (
	fieldMemberName = "memberName"
	fieldChapter    = "chapter"
	fieldPeriod     = "period"
	fieldP          = "p"
	fieldA          = "a"
	fieldL          = "l"
	fieldM          = "m"
	fieldS          = "s"
	fieldRGI        = "rgi"
	fieldRGO        = "rgo"
	fieldRRI        = "rri"
	fieldRRO        = "rro"
	fieldV          = "v"
	fieldT          = "t"
	fieldOneTwoOne  = "oneTwoOne"
	fieldTYFCB      = "tyfcb"
	fieldCEU        = "ceu"
)

// DefaultDictionary returns the lookup tables covering every header spelling
// seen across historical chapter exports.
func DefaultDictionary() Dictionary {
	return Dictionary{
		MainHeaderMap: map[string]string{
			"member":       fieldMemberName,
			"membername":   fieldMemberName,
			"name":         fieldMemberName,
			"chapter":      fieldChapter,
			"month":        fieldPeriod,
			"period":       fieldPeriod,
			"p":            fieldP,
			"a":            fieldA,
			"l":            fieldL,
			"m":            fieldM,
			"s":            fieldS,
			"rgi":          fieldRGI,
			"rgo":          fieldRGO,
			"rri":          fieldRRI,
			"rro":          fieldRRO,
			"rg":           fieldRGO,
			"visitors":     fieldV,
			"v":            fieldV,
			"testimonials": fieldT,
			"t":            fieldT,
			"1-2-1":        fieldOneTwoOne,
			"121":          fieldOneTwoOne,
			"1-2-1s":       fieldOneTwoOne,
			"tyfcb":        fieldTYFCB,
			"business":     fieldTYFCB,
			"ceu":          fieldCEU,
		},
		FirstNameKeys:     []string{"first name", "firstname", "first"},
		LastNameKeys:      []string{"last name", "lastname", "last"},
		TrainingFirstKeys: []string{"first", "first name", "first_name"},
		TrainingLastKeys:  []string{"last", "last name", "last_name"},
		IgnoredNames:      []string{"total", "bni", "visitors"},
		IdentityIndicators: []string{
			"first name", "last name", "member", "name",
		},
		MetricColumns: []string{
			"p", "a", "l", "m", "s", "rgi", "rgo", "rri", "rro",
			"v", "t", "1-2-1", "121", "tyfcb", "ceu",
		},
		MetadataMarkers: []string{
			"running user", "run at", "country", "region", "parameters",
			"from", "to", "show", "events", "flags",
		},
	}
}

// shouldIgnore reports whether a resolved name is a chapter aggregate row.
func (d Dictionary) shouldIgnore(name string) bool {
	normalized := report.NormalizeDisplayName(name)
	for _, term := range d.IgnoredNames {
		if normalized == term || strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}

// =============================================================================
// MAIN REPORT
// =============================================================================

// MainReport is the outcome of parsing one main chapter report.
type MainReport struct {
	Rows     []report.MainReportRow
	Metadata report.ReportMetadata
	Header   HeaderLocation
}

// ParseMainReport runs the full pipeline on a main report file: extraction,
// header location, metadata recovery and row normalization. A file that
// parses but yields no member rows is NOT an error here; callers reject on
// len(Rows) == 0 so previews can distinguish "empty" from "broken".
func ParseMainReport(data []byte, fileName string, dict Dictionary) (*MainReport, error) {
	rows, err := ExtractRows(data, fileName)
	if err != nil {
		return nil, err
	}

	loc := LocateHeader(rows, dict)
	meta := ExtractMetadata(rows, loc.Index)

	result := &MainReport{Metadata: meta, Header: loc}
	if loc.Index >= len(rows) {
		return result, nil
	}

	header := lowerCells(rows[loc.Index])
	for _, row := range rows[loc.Index+1:] {
		if row.isBlank() {
			continue
		}
		if normalized, ok := normalizeMainRow(header, row, dict); ok {
			result.Rows = append(result.Rows, normalized)
		}
	}
	return result, nil
}

// normalizeMainRow maps one positional data row through the header labels
// into a validated MainReportRow. Returns false when the row has no
// derivable identity or matches the ignore list.
func normalizeMainRow(header []string, row Row, dict Dictionary) (report.MainReportRow, bool) {
	var out report.MainReportRow
	out.TYFCB = decimal.Zero

	var firstName, lastName, directName string

	for i, label := range header {
		if label == "" || i >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[i])

		switch {
		case matchesKey(label, dict.FirstNameKeys):
			firstName = value
			continue
		case matchesKey(label, dict.LastNameKeys):
			lastName = value
			continue
		}

		field, known := dict.MainHeaderMap[label]
		if !known {
			continue
		}

		switch field {
		case fieldMemberName:
			directName = value
		case fieldChapter:
			out.Chapter = value
		case fieldPeriod:
			if parsed, ok := ParseFlexibleDate(value); ok {
				out.Period = parsed
			}
		case fieldTYFCB:
			out.TYFCB = coerceDecimal(value)
		case fieldP:
			out.P = coerceNumber(value)
		case fieldA:
			out.A = coerceNumber(value)
		case fieldL:
			out.L = coerceNumber(value)
		case fieldM:
			out.M = coerceNumber(value)
		case fieldS:
			out.S = coerceNumber(value)
		case fieldRGI:
			out.RGI = coerceNumber(value)
		case fieldRGO:
			out.RGO = coerceNumber(value)
		case fieldRRI:
			out.RRI = coerceNumber(value)
		case fieldRRO:
			out.RRO = coerceNumber(value)
		case fieldV:
			out.V = coerceNumber(value)
		case fieldT:
			out.T = coerceNumber(value)
		case fieldOneTwoOne:
			out.OneTwoOne = coerceNumber(value)
		case fieldCEU:
			out.CEU = coerceNumber(value)
		}
	}

	// Name priority: split first/last columns, then a direct member column.
	switch {
	case firstName != "" || lastName != "":
		out.MemberName = strings.TrimSpace(strings.Join(strings.Fields(firstName+" "+lastName), " "))
	case directName != "":
		out.MemberName = directName
	}

	if out.MemberName == "" {
		return report.MainReportRow{}, false
	}
	if dict.shouldIgnore(out.MemberName) {
		log.Printf("ingest: dropping aggregate row %q", out.MemberName)
		return report.MainReportRow{}, false
	}

	return out, true
}

// =============================================================================
// TRAINING REPORT
// =============================================================================

// TrainingReport is the outcome of parsing one training-credit report.
type TrainingReport struct {
	Rows     []report.TrainingRow
	Metadata report.ReportMetadata
}

// ParseTrainingReport parses a training file, where every data row is one
// completed training event; rows are counted per person. A training file
// without first/last name columns is rejected with ErrMissingNameColumns.
func ParseTrainingReport(data []byte, fileName string, dict Dictionary) (*TrainingReport, error) {
	rows, err := ExtractRowsLenient(data, fileName)
	if err != nil {
		return nil, err
	}

	headerIndex := LocateTrainingHeader(rows, dict)
	if headerIndex < 0 {
		return nil, report.ErrMissingNameColumns
	}

	meta := ExtractMetadata(rows, headerIndex)

	header := lowerCells(rows[headerIndex])
	firstIdx := indexOfAny(header, dict.TrainingFirstKeys)
	lastIdx := indexOfAny(header, dict.TrainingLastKeys)
	if firstIdx < 0 || lastIdx < 0 {
		return nil, report.ErrMissingNameColumns
	}

	type personCount struct {
		firstName string
		lastName  string
		count     int
	}
	counts := make(map[string]*personCount)
	var order []string

	for _, row := range rows[headerIndex+1:] {
		firstName := cellAt(row, firstIdx)
		lastName := cellAt(row, lastIdx)
		if firstName == "" || lastName == "" {
			continue
		}

		key := report.NormalizePersonKey(firstName, lastName)
		if existing, ok := counts[key]; ok {
			existing.count++
			continue
		}
		counts[key] = &personCount{firstName: firstName, lastName: lastName, count: 1}
		order = append(order, key)
	}

	result := &TrainingReport{Metadata: meta}
	for _, key := range order {
		pc := counts[key]
		result.Rows = append(result.Rows, report.TrainingRow{
			FirstName: pc.firstName,
			LastName:  pc.lastName,
			Credits:   pc.count,
		})
	}
	return result, nil
}

// =============================================================================
// COERCION HELPERS
// =============================================================================

// coerceNumber parses a metric cell to a non-negative number; anything
// absent or non-numeric becomes 0.
func coerceNumber(value string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if cleaned == "" {
		return 0
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// coerceDecimal parses a monetary cell, tolerating thousands separators and
// currency prefixes. Negative or unparseable values become zero.
func coerceDecimal(value string) decimal.Decimal {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimLeft(cleaned, "₹$€£ ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func matchesKey(label string, keys []string) bool {
	for _, key := range keys {
		if label == key {
			return true
		}
	}
	return false
}

func indexOfAny(cells []string, keys []string) int {
	for i, cell := range cells {
		if matchesKey(cell, keys) {
			return i
		}
	}
	return -1
}

func cellAt(row Row, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
