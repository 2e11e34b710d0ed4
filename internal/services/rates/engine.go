// Package rates implements the rate resolution and cache engine: it merges
// quotes from independent sources, persists the merged snapshot and answers
// rate queries against a freshness window.
package rates

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valutatrade/valutahub/internal/clients"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/metrics"
	"github.com/valutatrade/valutahub/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the aggregate outcome of one update cycle.
type Status string

const (
	// StatusSuccess: every selected source fetched without error.
	StatusSuccess Status = "success"
	// StatusPartial: at least one source succeeded and at least one failed.
	StatusPartial Status = "partial"
	// StatusFailed: no source succeeded; the old snapshot stays untouched.
	StatusFailed Status = "failed"
)

// UpdateResult summarizes one update cycle.
type UpdateResult struct {
	Status      Status
	OkSources   int
	Errors      []error
	PairsCount  int
	LastRefresh time.Time
}

// CacheStore persists the whole rate snapshot.
type CacheStore interface {
	Load() (domain.RateSnapshot, error)
	Save(domain.RateSnapshot) error
}

// HistoryAppender receives the measurement records of successful cycles.
type HistoryAppender interface {
	Append(records []domain.HistoryRecord) error
}

// Engine merges quotes from multiple sources into a cached snapshot and
// resolves rates with direct/inverse fallback under a TTL. Resolve never
// triggers a network call; callers decide when to run Update.
type Engine struct {
	registry *registry.Registry
	cache    CacheStore
	history  HistoryAppender
	sources  []clients.RateSource
	ttl      time.Duration
	clock    func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics

	// updateMu allows only one update cycle in flight.
	updateMu sync.Mutex
	// snapMu guards the in-memory snapshot; it is replaced as one value.
	snapMu   sync.RWMutex
	snapshot domain.RateSnapshot
}

// New creates the engine and loads the persisted snapshot, if any.
func New(reg *registry.Registry, cache CacheStore, hist HistoryAppender, sources []clients.RateSource,
	ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {

	snapshot, err := cache.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load rate snapshot")
	}

	return &Engine{
		registry: reg,
		cache:    cache,
		history:  hist,
		sources:  sources,
		ttl:      ttl,
		clock:    time.Now,
		logger:   logger,
		metrics:  m,
		snapshot: snapshot,
	}, nil
}

// Snapshot returns the current in-memory snapshot as one consistent value.
func (e *Engine) Snapshot() domain.RateSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()

	pairs := make(map[string]domain.SnapshotEntry, len(e.snapshot.Pairs))
	for k, v := range e.snapshot.Pairs {
		pairs[k] = v
	}
	return domain.RateSnapshot{Pairs: pairs, LastRefresh: e.snapshot.LastRefresh}
}

type fetchResult struct {
	source  string
	quotes  []domain.Quote
	records []domain.HistoryRecord
	err     error
}

// Update runs one fetch-merge-persist cycle. With no arguments every
// source runs; otherwise only the named ones (case-insensitive). One
// failing source does not abort the cycle, its error is collected. A
// cycle where nothing succeeded persists nothing.
func (e *Engine) Update(ctx context.Context, only ...string) (UpdateResult, error) {
	selected, err := e.selectSources(only)
	if err != nil {
		return UpdateResult{}, err
	}

	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	e.logger.Info("starting rates update", zap.Int("sources", len(selected)))

	// Sources share no mutable state until the merge, so they fetch in
	// parallel; merge and persist wait for all of them.
	results := make([]fetchResult, len(selected))
	g := new(errgroup.Group)
	for i, source := range selected {
		g.Go(func() error {
			started := time.Now()
			quotes, records, err := source.FetchPairs(ctx)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			e.metrics.SourceFetchDuration.WithLabelValues(source.Name(), outcome).Observe(time.Since(started).Seconds())
			results[i] = fetchResult{source: source.Name(), quotes: quotes, records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]domain.SnapshotEntry)
	var historyRecords []domain.HistoryRecord
	var failures []error
	okSources := 0

	for _, res := range results {
		if res.err != nil {
			e.logger.Error("source fetch failed", zap.String("source", res.source), zap.Error(res.err))
			failures = append(failures, res.err)
			continue
		}
		okSources++
		e.logger.Info("source fetch ok", zap.String("source", res.source), zap.Int("pairs", len(res.quotes)))

		for _, q := range res.quotes {
			key := q.PairKey()
			prev, seen := merged[key]
			// ties keep the first quote seen, losers are discarded
			if !seen || q.ObservedAt.After(prev.UpdatedAt) {
				merged[key] = domain.SnapshotEntry{Rate: q.Rate, UpdatedAt: q.ObservedAt, Source: q.Source}
			}
		}
		historyRecords = append(historyRecords, res.records...)
	}

	lastRefresh := e.clock().UTC().Truncate(time.Second)

	if okSources == 0 {
		e.metrics.UpdateCycles.WithLabelValues(string(StatusFailed)).Inc()
		e.logger.Error("rates update failed, keeping previous snapshot", zap.Int("errors", len(failures)))
		return UpdateResult{Status: StatusFailed, Errors: failures, LastRefresh: lastRefresh}, nil
	}

	// A replayed or slow source must not regress a pair the previous
	// snapshot already holds a fresher observation for.
	e.snapMu.RLock()
	for key, entry := range merged {
		if prev, ok := e.snapshot.Pairs[key]; ok && prev.UpdatedAt.After(entry.UpdatedAt) {
			merged[key] = prev
		}
	}
	e.snapMu.RUnlock()

	snapshot := domain.RateSnapshot{Pairs: merged, LastRefresh: lastRefresh}
	if err := e.cache.Save(snapshot); err != nil {
		return UpdateResult{}, errors.Wrap(err, "persist rate snapshot")
	}

	e.snapMu.Lock()
	e.snapshot = snapshot
	e.snapMu.Unlock()

	// The snapshot is already persisted and installed; losing history
	// records must not discard the cycle.
	if err := e.history.Append(historyRecords); err != nil {
		e.logger.Error("append rate history", zap.Int("records", len(historyRecords)), zap.Error(err))
	}

	status := StatusSuccess
	if len(failures) > 0 {
		status = StatusPartial
	}
	e.metrics.UpdateCycles.WithLabelValues(string(status)).Inc()
	e.logger.Info("rates update finished",
		zap.String("status", string(status)),
		zap.Int("ok_sources", okSources),
		zap.Int("errors", len(failures)),
		zap.Int("pairs", len(merged)),
		zap.Time("last_refresh", lastRefresh))

	return UpdateResult{
		Status:      status,
		OkSources:   okSources,
		Errors:      failures,
		PairsCount:  len(merged),
		LastRefresh: lastRefresh,
	}, nil
}

func (e *Engine) selectSources(only []string) ([]clients.RateSource, error) {
	if len(only) == 0 {
		return e.sources, nil
	}

	var selected []clients.RateSource
	for _, name := range only {
		found := false
		for _, source := range e.sources {
			if strings.EqualFold(source.Name(), name) {
				selected = append(selected, source)
				found = true
				break
			}
		}
		if !found {
			return nil, domain.NewValidationError("unknown rate source %q", name)
		}
	}
	return selected, nil
}

// Resolve returns the cached rate converting from into to, together with
// the time the underlying quote was observed. A direct pair entry wins;
// a fresh inverse entry serves as 1/rate fallback. Entries older than the
// TTL are stale; the TTL boundary itself is inclusive.
func (e *Engine) Resolve(from, to string) (decimal.Decimal, time.Time, error) {
	fromCur, err := e.registry.Lookup(from)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, err
	}
	toCur, err := e.registry.Lookup(to)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, err
	}

	now := e.clock().UTC()
	if fromCur.Code == toCur.Code {
		return decimal.NewFromInt(1), now, nil
	}

	e.snapMu.RLock()
	direct, hasDirect := e.snapshot.Pairs[domain.PairKey(fromCur.Code, toCur.Code)]
	inverse, hasInverse := e.snapshot.Pairs[domain.PairKey(toCur.Code, fromCur.Code)]
	e.snapMu.RUnlock()

	if hasDirect && e.fresh(now, direct.UpdatedAt) {
		// Adapters reject non-positive rates, but a snapshot written by an
		// older build may still carry a zero; never serve it.
		if direct.Rate.IsZero() {
			e.metrics.RateLookups.WithLabelValues("unavailable").Inc()
			return decimal.Decimal{}, time.Time{}, errors.Wrapf(domain.ErrZeroRate,
				"pair %s", domain.PairKey(fromCur.Code, toCur.Code))
		}
		e.metrics.RateLookups.WithLabelValues("ok").Inc()
		return direct.Rate, direct.UpdatedAt, nil
	}

	if hasInverse && e.fresh(now, inverse.UpdatedAt) {
		if inverse.Rate.IsZero() {
			e.metrics.RateLookups.WithLabelValues("unavailable").Inc()
			return decimal.Decimal{}, time.Time{}, errors.Wrapf(domain.ErrZeroRate,
				"pair %s", domain.PairKey(toCur.Code, fromCur.Code))
		}
		e.metrics.RateLookups.WithLabelValues("inverse").Inc()
		return decimal.NewFromInt(1).Div(inverse.Rate), inverse.UpdatedAt, nil
	}

	e.metrics.RateLookups.WithLabelValues("unavailable").Inc()
	return decimal.Decimal{}, time.Time{}, errors.Wrapf(domain.ErrRateUnavailable,
		"pair %s", domain.PairKey(fromCur.Code, toCur.Code))
}

func (e *Engine) fresh(now, observedAt time.Time) bool {
	return now.Sub(observedAt) <= e.ttl
}
