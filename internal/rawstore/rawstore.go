// Package rawstore persists the raw table of each work unit on local disk.
package rawstore

import (
	"fmt"
	"path/filepath"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

// FilePrefix starts every raw file name.
const FilePrefix = "NT_ACCRUALS"

// Writer stores one table for an (account, date) pair and returns the path
// written. Existing files are overwritten.
type Writer interface {
	Write(table *domain.Table, account string, date civil.Date) (string, error)
}

// FileName returns NT_ACCRUALS_<account>_<YYYY-MM-DD>.<ext>.
func FileName(account string, date civil.Date, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", FilePrefix, account, date, ext)
}

// Path joins FileName onto dir.
func Path(dir, account string, date civil.Date, ext string) string {
	return filepath.Join(dir, FileName(account, date, ext))
}
