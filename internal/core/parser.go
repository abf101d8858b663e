package core

// parser.go reads an uploaded file into rows keyed by header text.
//
// The whole file is materialized before any row is processed because the
// batch result reports the row total up front.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RawRow maps a header cell to the raw cell text of one data row. Columns
// with no value are absent from the map.
type RawRow map[string]string

// FileFormat identifies how an upload is decoded.
type FileFormat string

const (
	FormatCSV         FileFormat = "csv"
	FormatSpreadsheet FileFormat = "spreadsheet"
)

// AcceptedExtensions lists the upload extensions the parser understands.
var AcceptedExtensions = []string{".csv", ".xlsx", ".xlsm", ".xls"}

// DetectFormat picks the decoder from the file extension, case-insensitively.
func DetectFormat(fileName string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xls":
		return FormatSpreadsheet, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ParseRecords decodes data according to fileName's extension. The first
// row is the header; every following row becomes a RawRow.
func ParseRecords(data []byte, fileName string) ([]RawRow, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}

	if format == FormatCSV {
		return parseCSVRows(data)
	}
	return parseSpreadsheetRows(data)
}

func parseCSVRows(data []byte) ([]RawRow, error) {
	r := csv.NewReader(bytes.NewReader(normalizeText(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []RawRow{}, nil
	}
	if err != nil {
		return nil, &ParseError{Format: string(FormatCSV), Err: err}
	}

	rows := []RawRow{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Format: string(FormatCSV), Err: err}
		}
		rows = append(rows, zipRow(header, record, false))
	}
	return rows, nil
}

func parseSpreadsheetRows(data []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: string(FormatSpreadsheet), Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []RawRow{}, nil
	}

	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Format: string(FormatSpreadsheet), Err: err}
	}
	if len(grid) == 0 {
		return []RawRow{}, nil
	}

	dates := newDateCells(f, sheets[0])
	for r := 1; r < len(grid); r++ {
		for c, v := range grid[r] {
			if v == "" {
				continue
			}
			if iso, ok := dates.isoValue(c, r); ok {
				grid[r][c] = iso
			}
		}
	}

	header := grid[0]
	rows := []RawRow{}
	for _, cells := range grid[1:] {
		row := zipRow(header, cells, true)
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// dateCells rewrites cells carrying a date number format as YYYY-MM-DD,
// read from the stored serial rather than the display text, which follows
// the workbook's locale and can put the day or month first.
type dateCells struct {
	f      *excelize.File
	sheet  string
	styles map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	return &dateCells{f: f, sheet: sheet, styles: map[int]bool{}}
}

// isoValue reports the ISO date for the zero-based cell at col, row.
func (d *dateCells) isoValue(col, row int) (string, bool) {
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", false
	}
	styleID, err := d.f.GetCellStyle(d.sheet, axis)
	if err != nil || !d.isDateStyle(styleID) {
		return "", false
	}
	raw, err := d.f.GetCellValue(d.sheet, axis, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", false
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", false
	}
	return t.Format(DateLayout), true
}

func (d *dateCells) isDateStyle(id int) bool {
	if isDate, ok := d.styles[id]; ok {
		return isDate
	}
	isDate := false
	if style, err := d.f.GetStyle(id); err == nil && style != nil {
		isDate = isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	}
	d.styles[id] = isDate
	return isDate
}

// Built-in number formats 14-17 and 22 are the locale date formats.
func isDateNumFmt(id int, custom *string) bool {
	if custom != nil {
		return isDateFormatCode(*custom)
	}
	return (id >= 14 && id <= 17) || id == 22
}

// isDateFormatCode looks for day or year tokens outside quoted literals and
// bracketed sections such as [Red] or [$-409].
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'd' || r == 'y':
			return true
		}
	}
	return false
}

// zipRow pairs header cells with record cells. Cells beyond the header and
// columns with an empty header are dropped. With skipEmpty, empty cells are
// left out of the row.
func zipRow(header, record []string, skipEmpty bool) RawRow {
	row := make(RawRow, len(header))
	for i, key := range header {
		if key == "" || i >= len(record) {
			continue
		}
		if skipEmpty && strings.TrimSpace(record[i]) == "" {
			continue
		}
		row[key] = record[i]
	}
	return row
}
