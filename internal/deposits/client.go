package deposits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrUnavailable indicates the external deposit source could not be reached
// or returned a malformed payload after all retries.
var ErrUnavailable = errors.New("deposit source unavailable")

const byPlantPath = "/api/deposits/db/by-plant"

// ClientConfig collects the knobs for the upstream HTTP client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	Logger  *slog.Logger
}

// Client fetches deposit records from the external application.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient constructs a deposits client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 1500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		backoff:    backoff,
		logger:     logger,
	}
}

// FetchDay returns the flattened deposit records for a single day. Each
// attempt carries the client timeout; transient failures are retried with a
// fixed backoff before giving up with ErrUnavailable.
func (c *Client) FetchDay(ctx context.Context, day time.Time) ([]Record, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		records, err := c.fetchOnce(ctx, day)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if attempt < c.retries {
			c.logger.Warn("deposit fetch failed, retrying",
				slog.String("date", day.Format("2006-01-02")),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.backoff):
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, day time.Time) ([]Record, error) {
	dateISO := day.Format("2006-01-02")
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, byPlantPath, url.Values{"date": {dateISO}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("deposit source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed deposit payload: %w", err)
	}
	return flatten(p, day, dateISO), nil
}

// flatten converts the nested plants structure into a flat, stably ordered
// record list.
func flatten(p payload, day time.Time, dateISO string) []Record {
	keys := make([]string, 0, len(p.Plants))
	for key := range p.Plants {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var records []Record
	for _, key := range keys {
		pl := p.Plants[key]
		for _, d := range pl.Deposits {
			currency := d.Currency
			if currency == "" {
				currency = "ARS"
			}
			records = append(records, Record{
				Date:       day,
				DateISO:    dateISO,
				PlantKey:   key,
				PlantName:  pl.Name,
				DepositID:  d.DepositID.String(),
				Identifier: d.Identifier,
				UserName:   d.UserName,
				Reparto:    ParseReparto(d.UserName),
				Expected:   int64(d.Expected),
				Deposited:  int64(d.Total),
				Estado:     d.Estado,
				Currency:   currency,
				Type:       d.Type,
				DateTime:   d.DateTime,
				POSName:    d.POSName,
				STName:     d.STName,
			})
		}
	}
	return records
}
