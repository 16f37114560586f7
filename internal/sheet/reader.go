// Package sheet reads user-supplied tabular files (xlsx, csv) into raw
// rows keyed by header text. This is the only package that touches file
// formats; everything downstream works on typed values.
package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// MaxHeaderSearchRows bounds the scan for the header row.
var MaxHeaderSearchRows = 20

// RawRow maps header text to the cell value in that column. Rows never
// leave the ingestion boundary.
type RawRow map[string]string

// Table is one sheet's worth of data: raw rows plus the distinct headers.
type Table struct {
	SheetName string
	// Headers is the union of header cells seen for the sheet, in column
	// order. Mapping resolution runs over this set.
	Headers []string
	Rows    []RawRow
	// FirstDataLine is the 1-based file line of the first data row, used
	// for error reporting.
	FirstDataLine int
}

// Read parses an uploaded file by extension: .xlsx/.xlsm via excelize,
// anything else as CSV. sheetName selects a worksheet ("" = first).
func Read(fileName string, r io.Reader, sheetName string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return ReadWorkbook(r, sheetName)
	default:
		return ReadCSV(r)
	}
}

// ReadWorkbook reads one worksheet of an xlsx workbook.
func ReadWorkbook(r io.Reader, sheetName string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	t, err := fromRecords(rows)
	if err != nil {
		return nil, err
	}
	t.SheetName = sheetName
	return t, nil
}

// ReadCSV reads a CSV stream. Input is UTF-8 sanitized and BOM tolerant;
// ragged rows are accepted.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = sanitizeUTF8(data)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRecords(records)
}

// fromRecords locates the header row and builds raw rows keyed by header
// text. Early rows may be title banners or blank padding, so the header is
// the first row with at least two non-empty cells.
func fromRecords(records [][]string) (*Table, error) {
	headerIdx := -1
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}
	for i := 0; i < maxRows; i++ {
		if nonEmptyCells(records[i]) >= 2 {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row found in first %d rows", MaxHeaderSearchRows)
	}

	headerRow := records[headerIdx]
	headers := make([]string, 0, len(headerRow))
	for _, h := range headerRow {
		h = strings.TrimSpace(h)
		if h != "" {
			headers = append(headers, h)
		}
	}

	t := &Table{
		Headers:       headers,
		FirstDataLine: headerIdx + 2,
	}
	for _, rec := range records[headerIdx+1:] {
		if nonEmptyCells(rec) == 0 {
			// Keep the row so line numbers stay aligned with the file;
			// the normalizer filters it as blank.
			t.Rows = append(t.Rows, RawRow{})
			continue
		}
		row := make(RawRow, len(headerRow))
		for col, header := range headerRow {
			header = strings.TrimSpace(header)
			if header == "" || col >= len(rec) {
				continue
			}
			row[header] = strings.TrimSpace(rec[col])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func nonEmptyCells(row []string) int {
	n := 0
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}
