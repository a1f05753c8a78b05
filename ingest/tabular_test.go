package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/chapterpulse/score-engine/report"
)

// buildWorkbook writes rows into an in-memory XLSX file.
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExtractRows_Workbook(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Chapter:", "PATRONS"},
		{"First Name", "Last Name", "P", "A"},
		{"Jane", "Doe", 3, 0},
	})

	rows, err := ExtractRows(data, "report.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "PATRONS", rows[0][1])
	assert.Equal(t, "3", rows[2][2])
}

func TestExtractRows_CSV(t *testing.T) {
	data := []byte("a,b,c\n\n1,2\nx,y,z,extra\n")

	rows, err := ExtractRows(data, "report.csv")
	require.NoError(t, err)

	// Blank lines vanish, ragged rows keep their own lengths.
	require.Len(t, rows, 3)
	assert.Equal(t, Row{"a", "b", "c"}, rows[0])
	assert.Equal(t, Row{"1", "2"}, rows[1])
	assert.Equal(t, Row{"x", "y", "z", "extra"}, rows[2])
}

func TestExtractRows_SizeCap(t *testing.T) {
	huge := make([]byte, MaxFileSize+1)
	_, err := ExtractRows(huge, "report.xlsx")
	assert.ErrorIs(t, err, report.ErrFileTooLarge)
}

func TestExtractRows_UnsupportedExtension(t *testing.T) {
	_, err := ExtractRows([]byte("whatever"), "report.docx")
	assert.ErrorIs(t, err, report.ErrUnsupportedFormat)
}

func TestParseMainReport_WorkbookWithSerialDates(t *testing.T) {
	// GIVEN: an XLSX whose preamble dates are raw Excel serials
	data := buildWorkbook(t, [][]interface{}{
		{"Running User: admin"},
		{"Chapter:", "PATRONS"},
		{"From:", 45778, "To:", 45808},
		{"First Name", "Last Name", "P", "A", "L", "M", "S", "RGI", "RGO", "V", "T", "TYFCB", "CEU"},
		{"Jane", "Doe", 3, 0, 0, 0, 0, 1, 1, 1, 0, 0, 0},
	})

	result, err := ParseMainReport(data, "may.xlsx", DefaultDictionary())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Header.Index)
	assert.Equal(t, "PATRONS", result.Metadata.Chapter)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), result.Metadata.FromDate)
	assert.Equal(t, time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC), result.Metadata.ToDate)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Jane Doe", result.Rows[0].MemberName)
}
