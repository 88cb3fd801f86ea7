package resolver

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFile parses the bytes of an uploaded file into rows according to its format.
func ParseFile(file *models.UploadedFile, data []byte) ([]models.Row, error) {
	switch file.Format() {
	case models.FileFormatDelimited:
		return ParseDelimited(data, file.Delimiter())
	case models.FileFormatSpreadsheet:
		return ParseSpreadsheet(data)
	default:
		return nil, apperrors.InvalidArgument("unsupported file type %q for %q", file.DeclaredContentType, file.Name)
	}
}

// ParseDelimited reads delimited text. The first record is the header; every later record
// becomes a row whose values are trimmed strings. A record shorter than the header omits
// the missing columns, and fields beyond the header are dropped.
func ParseDelimited(data []byte, delimiter rune) ([]models.Row, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse delimited file: %v", apperrors.ErrInvalidArgument, err)
	}
	return recordsToRows(records), nil
}

// ParseSpreadsheet reads the first sheet of an xlsx workbook, first row as header.
// Cell values are read as their formatted text.
func ParseSpreadsheet(data []byte) ([]models.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open spreadsheet: %v", apperrors.ErrInvalidArgument, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", apperrors.ErrInvalidArgument, sheets[0], err)
	}
	return recordsToRows(records), nil
}

func recordsToRows(records [][]string) []models.Row {
	if len(records) == 0 {
		return nil
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
	}

	rows := make([]models.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		row := models.NewRow(len(header))
		for i, value := range record {
			if i >= len(header) || header[i] == "" {
				continue
			}
			row.Set(header[i], strings.TrimSpace(value))
		}
		rows = append(rows, row)
	}
	return rows
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
