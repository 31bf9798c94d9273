package errreport

import (
	"fmt"

	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/rawstore"
)

// Header is the first line of every error report.
var Header = []string{"Date", "Account", "Error"}

// Collector accumulates failed work units in the order they occur and writes
// them once at the end of a run. It is not safe for concurrent use.
type Collector struct {
	path    string
	records []domain.ErrorRecord
}

// NewCollector returns a collector that flushes to path.
func NewCollector(path string) *Collector {
	return &Collector{path: path}
}

// Path returns where Flush writes the report.
func (c *Collector) Path() string {
	return c.path
}

// Record appends one error record.
func (c *Collector) Record(date, account, message string) {
	c.records = append(c.records, domain.ErrorRecord{Date: date, Account: account, Error: message})
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	return len(c.records)
}

// Records returns a copy of the recorded errors.
func (c *Collector) Records() []domain.ErrorRecord {
	out := make([]domain.ErrorRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Flush writes the report as CSV when at least one error was recorded. With no
// errors nothing is written and any existing file is left untouched.
func (c *Collector) Flush() (bool, error) {
	if len(c.records) == 0 {
		return false, nil
	}

	rows := make([][]string, 0, len(c.records)+1)
	rows = append(rows, Header)
	for _, r := range c.records {
		rows = append(rows, []string{r.Date, r.Account, r.Error})
	}

	if err := rawstore.WriteCSV(c.path, rows); err != nil {
		return false, fmt.Errorf("Flush: %w", err)
	}
	return true, nil
}
