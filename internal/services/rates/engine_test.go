package rates

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/valutatrade/valutahub/internal/clients"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/metrics"
	"github.com/valutatrade/valutahub/internal/registry"
	"go.uber.org/zap"
)

type fakeSource struct {
	name   string
	quotes []domain.Quote
	err    error
	calls  int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) FetchPairs(ctx context.Context) ([]domain.Quote, []domain.HistoryRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, nil, s.err
	}
	records := make([]domain.HistoryRecord, 0, len(s.quotes))
	for _, q := range s.quotes {
		records = append(records, domain.HistoryRecord{
			ID:           domain.HistoryRecordID(q.From, q.To, q.ObservedAt),
			FromCurrency: q.From,
			ToCurrency:   q.To,
			Rate:         q.Rate,
			Timestamp:    q.ObservedAt,
			Source:       q.Source,
		})
	}
	return s.quotes, records, nil
}

type memCache struct {
	snapshot domain.RateSnapshot
	saves    int
}

func (c *memCache) Load() (domain.RateSnapshot, error) {
	if c.snapshot.Pairs == nil {
		return domain.NewRateSnapshot(), nil
	}
	return c.snapshot, nil
}

func (c *memCache) Save(s domain.RateSnapshot) error {
	c.snapshot = s
	c.saves++
	return nil
}

type memHistory struct {
	records []domain.HistoryRecord
	err     error
}

func (h *memHistory) Append(records []domain.HistoryRecord) error {
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, records...)
	return nil
}

func quoteAt(from, to, rate, source string, observedAt time.Time) domain.Quote {
	return domain.Quote{
		From:       from,
		To:         to,
		Rate:       decimal.RequireFromString(rate),
		ObservedAt: observedAt,
		Source:     source,
	}
}

func newTestEngine(t *testing.T, cache *memCache, hist *memHistory, now time.Time, sources ...*fakeSource) *Engine {
	t.Helper()

	srcs := make([]clients.RateSource, 0, len(sources))
	for _, s := range sources {
		srcs = append(srcs, s)
	}

	e, err := New(registry.NewWithBuiltins(), cache, hist, srcs,
		5*time.Minute, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	e.clock = func() time.Time { return now }
	return e
}

func TestUpdateSuccessMergesAndPersists(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{}
	hist := &memHistory{}

	crypto := &fakeSource{name: "CoinGecko", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60000", "CoinGecko", now),
		quoteAt("ETH", "USD", "2500", "CoinGecko", now),
	}}
	fiat := &fakeSource{name: "ExchangeRate-API", quotes: []domain.Quote{
		quoteAt("EUR", "USD", "1.08", "ExchangeRate-API", now),
	}}

	e := newTestEngine(t, cache, hist, now, crypto, fiat)

	result, err := e.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 2, result.OkSources)
	require.Empty(t, result.Errors)
	require.Equal(t, 3, result.PairsCount)

	require.Equal(t, 1, cache.saves)
	require.Len(t, hist.records, 3)

	snap := e.Snapshot()
	require.Equal(t, now, snap.LastRefresh)
	require.Equal(t, "60000", snap.Pairs["BTC_USD"].Rate.String())
	require.Equal(t, "CoinGecko", snap.Pairs["BTC_USD"].Source)
}

func TestUpdatePartialCollectsErrors(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{}
	hist := &memHistory{}

	ok := &fakeSource{name: "CoinGecko", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60000", "CoinGecko", now),
	}}
	broken := &fakeSource{name: "ExchangeRate-API", err: &domain.ExternalSourceError{
		Source: "ExchangeRate-API", Reason: "429 Too Many Requests",
	}}

	e := newTestEngine(t, cache, hist, now, ok, broken)

	result, err := e.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusPartial, result.Status)
	require.Equal(t, 1, result.OkSources)
	require.Len(t, result.Errors, 1)

	// quotes of the succeeding source still land in the snapshot
	require.Equal(t, 1, cache.saves)
	require.Contains(t, e.Snapshot().Pairs, "BTC_USD")
}

func TestUpdateFailedKeepsPreviousSnapshot(t *testing.T) {
	observed := time.Date(2026, 8, 26, 11, 58, 0, 0, time.UTC)
	now := observed.Add(2 * time.Minute)

	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.RequireFromString("59000"), UpdatedAt: observed, Source: "CoinGecko"},
		},
		LastRefresh: observed,
	}}
	hist := &memHistory{}

	broken := &fakeSource{name: "CoinGecko", err: &domain.ExternalSourceError{
		Source: "CoinGecko", Reason: "HTTP 500",
	}}

	e := newTestEngine(t, cache, hist, now, broken)

	result, err := e.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)

	require.Equal(t, 0, cache.saves)
	require.Empty(t, hist.records)

	snap := e.Snapshot()
	require.Equal(t, observed, snap.LastRefresh)
	require.Equal(t, "59000", snap.Pairs["BTC_USD"].Rate.String())
}

func TestUpdateMergeKeepsLatestObservation(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{}
	hist := &memHistory{}

	older := &fakeSource{name: "SlowSource", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "59000", "SlowSource", now.Add(-30*time.Second)),
	}}
	newer := &fakeSource{name: "FastSource", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60000", "FastSource", now),
	}}

	e := newTestEngine(t, cache, hist, now, older, newer)

	_, err := e.Update(context.Background())
	require.NoError(t, err)

	entry := e.Snapshot().Pairs["BTC_USD"]
	require.Equal(t, "60000", entry.Rate.String())
	require.Equal(t, "FastSource", entry.Source)

	// the losing quote still lands in the history log
	require.Len(t, hist.records, 2)
}

func TestUpdateMergeTieKeepsFirstSeen(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{}
	hist := &memHistory{}

	first := &fakeSource{name: "SourceA", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60000", "SourceA", now),
	}}
	second := &fakeSource{name: "SourceB", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60001", "SourceB", now),
	}}

	e := newTestEngine(t, cache, hist, now, first, second)

	_, err := e.Update(context.Background())
	require.NoError(t, err)

	entry := e.Snapshot().Pairs["BTC_USD"]
	require.Equal(t, "SourceA", entry.Source)
	require.Equal(t, "60000", entry.Rate.String())
}

func TestUpdateDoesNotRegressFresherSnapshotEntry(t *testing.T) {
	fresher := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.RequireFromString("60000"), UpdatedAt: fresher, Source: "CoinGecko"},
		},
		LastRefresh: fresher,
	}}
	hist := &memHistory{}

	replayed := &fakeSource{name: "CoinGecko", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "58000", "CoinGecko", fresher.Add(-time.Minute)),
	}}

	e := newTestEngine(t, cache, hist, fresher.Add(time.Minute), replayed)

	_, err := e.Update(context.Background())
	require.NoError(t, err)

	entry := e.Snapshot().Pairs["BTC_USD"]
	require.Equal(t, "60000", entry.Rate.String())
	require.Equal(t, fresher, entry.UpdatedAt)
}

func TestUpdateHistoryFailureKeepsCycle(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{}
	hist := &memHistory{err: errors.New("disk full")}

	source := &fakeSource{name: "CoinGecko", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60000", "CoinGecko", now),
	}}

	e := newTestEngine(t, cache, hist, now, source)

	result, err := e.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)

	// the persisted and in-memory snapshots both carry the new cycle
	require.Equal(t, 1, cache.saves)
	snap := e.Snapshot()
	require.Equal(t, now, snap.LastRefresh)
	require.Equal(t, "60000", snap.Pairs["BTC_USD"].Rate.String())
}

func TestUpdateSourceSubset(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{}
	hist := &memHistory{}

	crypto := &fakeSource{name: "CoinGecko", quotes: []domain.Quote{
		quoteAt("BTC", "USD", "60000", "CoinGecko", now),
	}}
	fiat := &fakeSource{name: "ExchangeRate-API", quotes: []domain.Quote{
		quoteAt("EUR", "USD", "1.08", "ExchangeRate-API", now),
	}}

	e := newTestEngine(t, cache, hist, now, crypto, fiat)

	result, err := e.Update(context.Background(), "coingecko")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, crypto.calls)
	require.Equal(t, 0, fiat.calls)
	require.NotContains(t, e.Snapshot().Pairs, "EUR_USD")
}

func TestUpdateUnknownSource(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &memCache{}, &memHistory{}, now,
		&fakeSource{name: "CoinGecko"})

	_, err := e.Update(context.Background(), "nosuch")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestResolveDirect(t *testing.T) {
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.RequireFromString("60000"), UpdatedAt: observed, Source: "CoinGecko"},
		},
	}}

	e := newTestEngine(t, cache, &memHistory{}, observed.Add(time.Minute))

	rate, at, err := e.Resolve("btc", "usd")
	require.NoError(t, err)
	require.Equal(t, "60000", rate.String())
	require.Equal(t, observed, at)
}

func TestResolveSameCurrency(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &memCache{}, &memHistory{}, now)

	rate, _, err := e.Resolve("USD", "usd")
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestResolveInverseFallback(t *testing.T) {
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.RequireFromString("60000"), UpdatedAt: observed, Source: "CoinGecko"},
		},
	}}

	e := newTestEngine(t, cache, &memHistory{}, observed.Add(time.Minute))

	rate, at, err := e.Resolve("USD", "BTC")
	require.NoError(t, err)
	require.Equal(t, observed, at)

	// reciprocal of the direct rate
	product := rate.Mul(decimal.RequireFromString("60000"))
	require.True(t, product.Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.RequireFromString("0.0000000001")))
}

func TestResolveZeroDirectRate(t *testing.T) {
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.Zero, UpdatedAt: observed, Source: "CoinGecko"},
		},
	}}

	e := newTestEngine(t, cache, &memHistory{}, observed.Add(time.Minute))

	_, _, err := e.Resolve("BTC", "USD")
	require.ErrorIs(t, err, domain.ErrZeroRate)
}

func TestResolveZeroInverseRate(t *testing.T) {
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.Zero, UpdatedAt: observed, Source: "CoinGecko"},
		},
	}}

	e := newTestEngine(t, cache, &memHistory{}, observed.Add(time.Minute))

	_, _, err := e.Resolve("USD", "BTC")
	require.ErrorIs(t, err, domain.ErrZeroRate)
}

func TestResolveTTLBoundaryInclusive(t *testing.T) {
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.RequireFromString("60000"), UpdatedAt: observed, Source: "CoinGecko"},
		},
	}}

	// exactly at the TTL boundary the entry is still fresh
	e := newTestEngine(t, cache, &memHistory{}, observed.Add(5*time.Minute))
	_, _, err := e.Resolve("BTC", "USD")
	require.NoError(t, err)

	// one second past it is stale
	e = newTestEngine(t, cache, &memHistory{}, observed.Add(5*time.Minute+time.Second))
	_, _, err = e.Resolve("BTC", "USD")
	require.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestResolveStaleInverseUnavailable(t *testing.T) {
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cache := &memCache{snapshot: domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.RequireFromString("60000"), UpdatedAt: observed, Source: "CoinGecko"},
		},
	}}

	e := newTestEngine(t, cache, &memHistory{}, observed.Add(time.Hour))

	_, _, err := e.Resolve("USD", "BTC")
	require.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestResolveUnknownCurrency(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &memCache{}, &memHistory{}, now)

	_, _, err := e.Resolve("XYZ", "USD")
	require.ErrorIs(t, err, domain.ErrCurrencyNotFound)
}
