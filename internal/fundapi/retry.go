package fundapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cenkalti/backoff/v4"

	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/logger"
)

// fetchWithRetry retries transient fetch failures up to FetchRetries times
// with exponential backoff. Client errors and malformed responses fail at once.
func (c *Client) fetchWithRetry(ctx context.Context, date civil.Date, account string) (*domain.Table, error) {
	log := logger.FromContext(ctx)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.RetryBaseDelay
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.opts.FetchRetries)), ctx)

	op := func() (*domain.Table, error) {
		table, err := c.fetchOnce(ctx, date, account)
		if err == nil {
			return table, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("date", date.String()).
			Str("account", account).
			Dur("retry_in", wait).
			Msg("Data request failed, retrying")
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

func retryable(err error) bool {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var fetchErr *DataFetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode >= http.StatusInternalServerError || fetchErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
