package rawstore

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

var date = civil.Date{Year: 2026, Month: 10, Day: 15}

func sampleTable() *domain.Table {
	return &domain.Table{
		Columns: []string{"id", "memo", "Upload_Date", "Account"},
		Rows: [][]string{
			{"1", "fee, monthly", "2026-10-16", "TIR34"},
			{"2", `quoted "x"`, "2026-10-16", "TIR34"},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "NT_ACCRUALS_TIR34_2026-10-15.csv", FileName("TIR34", date, "csv"))
	assert.Equal(t, "NT_ACCRUALS_TIR32_2026-01-05.xlsx", FileName("TIR32", civil.Date{Year: 2026, Month: 1, Day: 5}, "xlsx"))
}

func TestCSVWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	path, err := w.Write(sampleTable(), "TIR34", date)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "NT_ACCRUALS_TIR34_2026-10-15.csv"), path)
	assert.Equal(t, sampleTable().Records(), readCSV(t, path))
}

func TestCSVWriter_Overwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	_, err := w.Write(sampleTable(), "TIR34", date)
	require.NoError(t, err)

	small := &domain.Table{Columns: []string{"id"}, Rows: [][]string{{"9"}}}
	path, err := w.Write(small, "TIR34", date)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"id"}, {"9"}}, readCSV(t, path))
}

func TestCSVWriter_MissingDirectory(t *testing.T) {
	w := NewCSVWriter(filepath.Join(t.TempDir(), "missing"))

	_, err := w.Write(sampleTable(), "TIR34", date)

	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestExcelWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewExcelWriter(dir)

	path, err := w.Write(sampleTable(), "TIR34", date)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "NT_ACCRUALS_TIR34_2026-10-15.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Equal(t, sampleTable().Records(), rows)
}

func TestExcelWriter_MissingDirectory(t *testing.T) {
	w := NewExcelWriter(filepath.Join(t.TempDir(), "missing"))

	_, err := w.Write(sampleTable(), "TIR34", date)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
