package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// WorkUnit is one (account, business date) pair processed by a run.
type WorkUnit struct {
	Account string
	Date    civil.Date
}

func (u WorkUnit) String() string {
	return fmt.Sprintf("%s@%s", u.Account, u.Date)
}

// DateWindow returns the business dates of a run, starting at asOf and walking
// backwards one day at a time. The result always has lookbackDays entries in
// descending order; a non-positive lookbackDays yields no dates.
func DateWindow(asOf civil.Date, lookbackDays int) []civil.Date {
	if lookbackDays <= 0 {
		return nil
	}
	dates := make([]civil.Date, 0, lookbackDays)
	for i := 0; i < lookbackDays; i++ {
		dates = append(dates, asOf.AddDays(-i))
	}
	return dates
}

// WorkUnits expands accounts × dates in processing order: accounts outer, in
// list order, dates inner, descending.
func WorkUnits(accounts []string, dates []civil.Date) []WorkUnit {
	units := make([]WorkUnit, 0, len(accounts)*len(dates))
	for _, account := range accounts {
		for _, date := range dates {
			units = append(units, WorkUnit{Account: account, Date: date})
		}
	}
	return units
}

// ErrorRecord is one failed work unit as written to the error report.
type ErrorRecord struct {
	Date    string
	Account string
	Error   string
}
