/*
Package ingest turns raw report files into normalized rows.

PURPOSE:
  Everything between "bytes arrived" and "validated rows" lives here:

    bytes -> ExtractRows (tabular.go)
          -> LocateHeader / ExtractMetadata (header.go, dates.go)
          -> row normalization (normalize.go)

  The package has no storage or HTTP knowledge; it returns plain report
  types and input-rejection errors from the report package.

FORMATS:
  .xlsx/.xls/.xlsm  read with excelize (first worksheet, rows in order)
  .csv/.txt         delimited text, ragged rows tolerated

  Spreadsheet exports routinely carry metadata preambles ("Chapter:",
  "From:", "To:"), so extraction is deliberately dumb: it yields positional
  string cells and leaves all semantics to the header locator.

SIZE CAP:
  Files above 10MB are rejected before any parsing.

SEE ALSO:
  - header.go: header-row detection and preamble metadata
  - normalize.go: column mapping, identity resolution, filtering
*/
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/chapterpulse/score-engine/report"
)

// MaxFileSize is the fixed byte cap applied before parsing.
const MaxFileSize = 10 * 1024 * 1024

// Row is one spreadsheet or CSV row as positional string cells. Numeric
// spreadsheet cells arrive as their displayed string (Excel date serials as
// digit strings), which is what the date parser expects.
type Row []string

var spreadsheetExts = map[string]bool{".xlsx": true, ".xls": true, ".xlsm": true}
var delimitedExts = map[string]bool{".csv": true, ".txt": true}

// ExtractRows parses raw file bytes into positional rows, dispatching on the
// filename extension. It fails with report.ErrFileTooLarge above the size
// cap and report.ErrUnsupportedFormat for unknown extensions.
func ExtractRows(data []byte, fileName string) ([]Row, error) {
	if len(data) > MaxFileSize {
		return nil, &report.FileTooLargeError{Size: len(data), Max: MaxFileSize}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case spreadsheetExts[ext]:
		return extractWorkbookRows(data)
	case delimitedExts[ext]:
		return extractCSVRows(data)
	default:
		return nil, &report.UnsupportedFormatError{FileName: fileName}
	}
}

// ExtractRowsLenient is the training-report variant: unknown extensions try
// the workbook reader first and fall back to CSV, matching how chapters
// actually export these files.
func ExtractRowsLenient(data []byte, fileName string) ([]Row, error) {
	if len(data) > MaxFileSize {
		return nil, &report.FileTooLargeError{Size: len(data), Max: MaxFileSize}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if delimitedExts[ext] {
		return extractCSVRows(data)
	}
	rows, err := extractWorkbookRows(data)
	if err == nil {
		return rows, nil
	}
	return extractCSVRows(data)
}

func extractWorkbookRows(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no worksheet found")
	}

	raw, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheetName, err)
	}

	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = Row(r)
	}
	return rows, nil
}

func extractCSVRows(data []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // rows may be ragged
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse delimited text: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row(rec))
	}
	return rows, nil
}

// isBlank reports whether every cell in the row is empty after trimming.
func (r Row) isBlank() bool {
	for _, cell := range r {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
