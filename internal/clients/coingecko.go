package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valutatrade/valutahub/internal/domain"
)

const coinGeckoName = "CoinGecko"

// CoinGecko fetches crypto-to-fiat quotes from the CoinGecko simple/price
// endpoint for a fixed map of currency codes to CoinGecko asset ids.
type CoinGecko struct {
	baseURL string
	base    string
	ids     map[string]string
	http    *http.Client
	clock   func() time.Time
}

// NewCoinGecko creates the adapter. base is the settlement fiat currency,
// ids maps currency codes to CoinGecko asset identifiers.
func NewCoinGecko(baseURL, base string, ids map[string]string, timeout time.Duration) *CoinGecko {
	return &CoinGecko{
		baseURL: baseURL,
		base:    strings.ToUpper(base),
		ids:     ids,
		http:    newHTTPClient(timeout),
		clock:   time.Now,
	}
}

// Name implements RateSource.
func (c *CoinGecko) Name() string {
	return coinGeckoName
}

// FetchPairs implements RateSource. The fetch is all-or-nothing: a missing
// or malformed rate for any configured asset fails the whole call.
func (c *CoinGecko) FetchPairs(ctx context.Context) ([]domain.Quote, []domain.HistoryRecord, error) {
	if len(c.ids) == 0 {
		return nil, nil, nil
	}

	codes := make([]string, 0, len(c.ids))
	rawIDs := make([]string, 0, len(c.ids))
	for code := range c.ids {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rawIDs = append(rawIDs, c.ids[code])
	}

	endpoint := fmt.Sprintf("%s?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(strings.Join(rawIDs, ",")), strings.ToLower(c.base))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, &domain.ExternalSourceError{Source: coinGeckoName, Reason: "build request", Err: err}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &domain.ExternalSourceError{Source: coinGeckoName, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()
	requestMS := time.Since(started).Milliseconds()
	etag := resp.Header.Get("ETag")

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, nil, &domain.ExternalSourceError{Source: coinGeckoName, Reason: "429 Too Many Requests"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &domain.ExternalSourceError{Source: coinGeckoName, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	// decimal rates ride through json.Number to avoid a float64 round trip
	var payload map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, &domain.ExternalSourceError{Source: coinGeckoName, Reason: "invalid JSON payload", Err: err}
	}

	observedAt := observedNow(c.clock)
	quotes := make([]domain.Quote, 0, len(codes))
	records := make([]domain.HistoryRecord, 0, len(codes))

	for _, code := range codes {
		rawID := c.ids[code]
		raw, ok := payload[rawID][strings.ToLower(c.base)]
		if !ok {
			return nil, nil, &domain.ExternalSourceError{
				Source: coinGeckoName,
				Reason: fmt.Sprintf("missing rate for %s (%s)", code, rawID),
			}
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, nil, &domain.ExternalSourceError{
				Source: coinGeckoName,
				Reason: fmt.Sprintf("malformed rate for %s", code),
				Err:    err,
			}
		}
		if rate.Sign() <= 0 {
			return nil, nil, &domain.ExternalSourceError{
				Source: coinGeckoName,
				Reason: fmt.Sprintf("non-positive rate %s for %s", rate.String(), code),
			}
		}

		q := domain.Quote{
			From:       code,
			To:         c.base,
			Rate:       rate,
			ObservedAt: observedAt,
			Source:     coinGeckoName,
		}
		quotes = append(quotes, q)
		records = append(records, historyRecord(q, domain.HistoryMeta{
			RawID:      rawID,
			RequestMS:  requestMS,
			StatusCode: resp.StatusCode,
			ETag:       etag,
		}))
	}

	return quotes, records, nil
}
