// Package recipients reads the recipient column of a spreadsheet.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is wrapped by LoadError when the file extension is
// not a known spreadsheet format.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// LoadError is returned for any file that cannot be read as a recipient list.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load recipients from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load returns the first column of the active sheet, one entry per row,
// starting at the first row. Empty cells are kept as "". Nothing is
// validated; on error no partial list is returned.
func Load(path string) ([]string, error) {
	var (
		rows []string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		rows, err = loadWorkbook(path)
	case ".csv":
		rows, err = loadCSV(path)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return rows, nil
}

func loadWorkbook(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return nil, errors.New("workbook has no active sheet")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return firstColumn(rows), nil
}

func loadCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return firstColumn(rows), nil
}

func firstColumn(rows [][]string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(row[0]))
	}
	return out
}
