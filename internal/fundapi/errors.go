package fundapi

import (
	"fmt"
	"time"
)

// AuthenticationError is returned when the token endpoint refuses the client
// credentials. It is fatal for a run.
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("failed to retrieve authentication token (status code: %d)", e.StatusCode)
}

// DataFetchError is returned when the data endpoint answers with a non-2xx status.
type DataFetchError struct {
	Date       string
	Account    string
	StatusCode int
	Body       string
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("failed to retrieve data for %s account %s (status code: %d)", e.Date, e.Account, e.StatusCode)
}

// TimeoutError is returned when a data request exceeds the fetch timeout.
type TimeoutError struct {
	Date    string
	Account string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request for %s account %s timed out after %s", e.Date, e.Account, e.Timeout)
}
