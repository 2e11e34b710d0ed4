// Package clients implements the upstream quote source adapters. Each
// adapter targets one provider and one fixed set of currency pairs; it
// either returns the full quote set for that provider or fails as a whole
// with an ExternalSourceError. Adapters never merge across sources.
package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/valutatrade/valutahub/internal/domain"
)

// RateSource fetches raw quotes for a fixed set of pairs from one
// upstream provider and normalizes them into uniform quote records.
type RateSource interface {
	// Name identifies the provider in snapshots, history and errors.
	Name() string
	// FetchPairs returns the provider's quotes, timestamped at call time,
	// plus one history record per quote with request diagnostics.
	FetchPairs(ctx context.Context) ([]domain.Quote, []domain.HistoryRecord, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// observedNow stamps a fetch: quote timestamps use the local call time so
// staleness comparisons stay consistent across sources that report their
// own upstream times differently.
func observedNow(clock func() time.Time) time.Time {
	return clock().UTC().Truncate(time.Second)
}

func historyRecord(q domain.Quote, meta domain.HistoryMeta) domain.HistoryRecord {
	return domain.HistoryRecord{
		ID:           domain.HistoryRecordID(q.From, q.To, q.ObservedAt),
		FromCurrency: q.From,
		ToCurrency:   q.To,
		Rate:         q.Rate,
		Timestamp:    q.ObservedAt,
		Source:       q.Source,
		Meta:         meta,
	}
}
