package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PairKey returns the ordered cache key FROM_TO for a directed currency pair.
func PairKey(from, to string) string {
	return fmt.Sprintf("%s_%s", from, to)
}

// Quote is a single directed rate observation produced by one upstream source.
// Quotes are transient: they live only inside an update cycle until merged
// into the persisted snapshot.
type Quote struct {
	From       string
	To         string
	Rate       decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// PairKey returns the snapshot key for this quote's pair.
func (q Quote) PairKey() string {
	return PairKey(q.From, q.To)
}

// SnapshotEntry is the winning quote persisted for one ordered pair.
type SnapshotEntry struct {
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    string          `json:"source"`
}

// RateSnapshot is the persisted rate cache: the winning quote per ordered
// pair plus the timestamp of the last successful update cycle. A cycle
// rewrites the snapshot wholesale, it is never patched field by field.
type RateSnapshot struct {
	Pairs       map[string]SnapshotEntry `json:"pairs"`
	LastRefresh time.Time                `json:"last_refresh"`
}

// NewRateSnapshot returns an empty snapshot ready for merging.
func NewRateSnapshot() RateSnapshot {
	return RateSnapshot{Pairs: make(map[string]SnapshotEntry)}
}

// HistoryMeta carries provider-specific diagnostics of one observation.
type HistoryMeta struct {
	RawID      string `json:"raw_id"`
	RequestMS  int64  `json:"request_ms"`
	StatusCode int    `json:"status_code"`
	ETag       string `json:"etag"`
}

// HistoryRecord is one immutable entry of the append-only measurement log.
// Records are never deduplicated.
type HistoryRecord struct {
	ID           string          `json:"id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	Timestamp    time.Time       `json:"timestamp"`
	Source       string          `json:"source"`
	Meta         HistoryMeta     `json:"meta"`
}

// HistoryRecordID builds the log identifier FROM_TO_<timestamp>.
func HistoryRecordID(from, to string, observedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%s", from, to, observedAt.UTC().Format("2006-01-02T15:04:05Z"))
}
