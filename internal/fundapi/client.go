package fundapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/oauth2"

	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/logger"
)

// APIKeyHeader carries the API key on every data request.
const APIKeyHeader = "X-NT-API-Key"

const (
	summaryDetail = "S"
	dateType      = "P"
)

// Options configures a Client.
type Options struct {
	AuthURL      string
	DataURL      string
	APIKey       string
	ClientSecret string

	// FetchTimeout bounds each data request. Zero means 90 seconds.
	FetchTimeout time.Duration
	// FetchRetries is the number of extra attempts after a transient fetch
	// failure. Zero disables retrying.
	FetchRetries   int
	RetryBaseDelay time.Duration

	// HTTPClient is used for the token request and as the base transport for
	// data requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Now supplies the upload date stamped on every row. Defaults to time.Now.
	Now func() time.Time
}

// Client talks to the fund-accounting API. AcquireToken must succeed before
// FetchTransactions is called; the token is reused for the rest of the run
// and never refreshed.
type Client struct {
	opts       Options
	dataClient *http.Client
}

// NewClient creates a client; no request is made until AcquireToken.
func NewClient(opts Options) *Client {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 90 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{opts: opts}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AcquireToken exchanges the client credentials for a bearer token.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	log := logger.FromContext(ctx)

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("AcquireToken: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+EncodeCredentials(c.opts.APIKey, c.opts.ClientSecret))

	log.Info().Str("auth_url", c.opts.AuthURL).Msg("Requesting authentication token")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("AcquireToken: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("AcquireToken: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("response", string(body)).
			Msg("Auth request failed")
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("AcquireToken: decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Copy the injected client so its timeout, redirect policy and jar apply
	// to data requests too.
	dataClient := *c.opts.HTTPClient
	base := dataClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	dataClient.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tr.AccessToken, TokenType: "Bearer"}),
		Base:   base,
	}
	c.dataClient = &dataClient

	log.Info().Int64("expires_in", tr.ExpiresIn).Msg("Authentication successful")
	return tr.AccessToken, nil
}

type fetchRequest struct {
	FromDate      string `json:"fromDate"`
	SummaryDetail string `json:"summaryDetail"`
	DateType      string `json:"dateType"`
	Account       string `json:"account"`
}

// FetchTransactions retrieves the accruals of one account for one business
// date and returns them as a table stamped with Upload_Date and Account.
func (c *Client) FetchTransactions(ctx context.Context, date civil.Date, account string) (*domain.Table, error) {
	if c.dataClient == nil {
		return nil, errors.New("FetchTransactions: no token, call AcquireToken first")
	}
	if c.opts.FetchRetries <= 0 {
		return c.fetchOnce(ctx, date, account)
	}
	return c.fetchWithRetry(ctx, date, account)
}

func (c *Client) fetchOnce(ctx context.Context, date civil.Date, account string) (*domain.Table, error) {
	log := logger.FromContext(ctx)
	dateStr := date.String()

	payload, err := json.Marshal(fetchRequest{
		FromDate:      dateStr,
		SummaryDetail: summaryDetail,
		DateType:      dateType,
		Account:       account,
	})
	if err != nil {
		return nil, fmt.Errorf("FetchTransactions: encoding request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.opts.DataURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("FetchTransactions: building request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.opts.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	log.Info().Str("date", dateStr).Str("account", account).Msg("Requesting data from API")

	resp, err := c.dataClient.Do(req)
	if err != nil {
		return nil, c.requestError(ctx, err, dateStr, account)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.requestError(ctx, err, dateStr, account)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().
			Str("date", dateStr).
			Str("account", account).
			Int("status_code", resp.StatusCode).
			Str("response", string(body)).
			Msg("Data request failed")
		return nil, &DataFetchError{Date: dateStr, Account: account, StatusCode: resp.StatusCode, Body: string(body)}
	}

	table, err := Normalize(body)
	if err != nil {
		return nil, fmt.Errorf("FetchTransactions: %s account %s: %w", dateStr, account, err)
	}
	table.Set(domain.ColumnUploadDate, civil.DateOf(c.opts.Now()).String())
	table.Set(domain.ColumnAccount, account)

	log.Info().Str("date", dateStr).Str("account", account).Int("rows", table.Len()).Msg("Data retrieval successful")
	return table, nil
}

// requestError turns a deadline hit by the per-request timeout into a
// TimeoutError; cancellation of the parent context is passed through.
func (c *Client) requestError(ctx context.Context, err error, date, account string) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		log := logger.FromContext(ctx)
		log.Error().
			Str("date", date).
			Str("account", account).
			Dur("timeout", c.opts.FetchTimeout).
			Msg("Data request timed out")
		return &TimeoutError{Date: date, Account: account, Timeout: c.opts.FetchTimeout}
	}
	return fmt.Errorf("FetchTransactions: %s account %s: %w", date, account, err)
}
