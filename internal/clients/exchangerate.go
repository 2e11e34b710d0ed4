package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valutatrade/valutahub/internal/domain"
)

const exchangeRateName = "ExchangeRate-API"

// ExchangeRate fetches fiat-to-fiat quotes from ExchangeRate-API v6 for a
// fixed list of fiat codes against the settlement currency.
type ExchangeRate struct {
	baseURL string
	apiKey  string
	base    string
	fiats   []string
	http    *http.Client
	clock   func() time.Time
}

type exchangeRatePayload struct {
	Result string                 `json:"result"`
	Rates  map[string]json.Number `json:"rates"`
}

// NewExchangeRate creates the adapter. fiats lists the currency codes to
// quote against base.
func NewExchangeRate(baseURL, apiKey, base string, fiats []string, timeout time.Duration) *ExchangeRate {
	upper := make([]string, len(fiats))
	for i, f := range fiats {
		upper[i] = strings.ToUpper(f)
	}
	return &ExchangeRate{
		baseURL: baseURL,
		apiKey:  apiKey,
		base:    strings.ToUpper(base),
		fiats:   upper,
		http:    newHTTPClient(timeout),
		clock:   time.Now,
	}
}

// Name implements RateSource.
func (c *ExchangeRate) Name() string {
	return exchangeRateName
}

// FetchPairs implements RateSource. A missing API key fails before any
// network call; a missing rate for any configured code fails the whole call.
func (c *ExchangeRate) FetchPairs(ctx context.Context) ([]domain.Quote, []domain.HistoryRecord, error) {
	if c.apiKey == "" {
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: "missing API key"}
	}

	endpoint := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, c.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: "build request", Err: err}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()
	requestMS := time.Since(started).Milliseconds()
	etag := resp.Header.Get("ETag")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: "401 Unauthorized (check API key)"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: "429 Too Many Requests"}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var payload exchangeRatePayload
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: "invalid JSON payload", Err: err}
	}
	if payload.Result != "success" {
		return nil, nil, &domain.ExternalSourceError{Source: exchangeRateName, Reason: fmt.Sprintf("result %q", payload.Result)}
	}

	observedAt := observedNow(c.clock)
	quotes := make([]domain.Quote, 0, len(c.fiats))
	records := make([]domain.HistoryRecord, 0, len(c.fiats))

	for _, code := range c.fiats {
		raw, ok := payload.Rates[code]
		if !ok {
			return nil, nil, &domain.ExternalSourceError{
				Source: exchangeRateName,
				Reason: fmt.Sprintf("missing rate for %s", code),
			}
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, nil, &domain.ExternalSourceError{
				Source: exchangeRateName,
				Reason: fmt.Sprintf("malformed rate for %s", code),
				Err:    err,
			}
		}
		if rate.Sign() <= 0 {
			return nil, nil, &domain.ExternalSourceError{
				Source: exchangeRateName,
				Reason: fmt.Sprintf("non-positive rate %s for %s", rate.String(), code),
			}
		}

		q := domain.Quote{
			From:       code,
			To:         c.base,
			Rate:       rate,
			ObservedAt: observedAt,
			Source:     exchangeRateName,
		}
		quotes = append(quotes, q)
		records = append(records, historyRecord(q, domain.HistoryMeta{
			RawID:      code,
			RequestMS:  requestMS,
			StatusCode: resp.StatusCode,
			ETag:       etag,
		}))
	}

	return quotes, records, nil
}
