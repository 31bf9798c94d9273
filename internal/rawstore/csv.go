package rawstore

import (
	"encoding/csv"
	"fmt"
	"os"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

// CSVWriter writes tables as CSV files under Dir. Dir must already exist.
type CSVWriter struct {
	Dir string
}

// NewCSVWriter creates a CSVWriter rooted at dir.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{Dir: dir}
}

// Write implements Writer.
func (w *CSVWriter) Write(table *domain.Table, account string, date civil.Date) (string, error) {
	path := Path(w.Dir, account, date, "csv")
	if err := WriteCSV(path, table.Records()); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCSV truncates or creates path and writes records to it.
func WriteCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %q: %w", path, err)
	}
	return nil
}
