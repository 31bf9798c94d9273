package rawstore

import (
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

const sheetName = "Accruals"

// ExcelWriter writes tables as single-sheet workbooks under Dir.
type ExcelWriter struct {
	Dir string
}

// NewExcelWriter creates an ExcelWriter rooted at dir.
func NewExcelWriter(dir string) *ExcelWriter {
	return &ExcelWriter{Dir: dir}
}

// Write implements Writer.
func (w *ExcelWriter) Write(table *domain.Table, account string, date civil.Date) (string, error) {
	if _, err := os.Stat(filepath.Clean(w.Dir)); err != nil {
		return "", fmt.Errorf("output directory: %w", err)
	}

	path := Path(w.Dir, account, date, "xlsx")

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}

	for i, record := range table.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", fmt.Errorf("cell name: %w", err)
		}
		row := make([]interface{}, len(record))
		for j, v := range record {
			row[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %q: %w", path, err)
	}
	return path, nil
}
