package ratecache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/storage/docstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := docstore.New(t.TempDir())
	require.NoError(t, err)
	return New(db)
}

func TestLoadAbsentSnapshot(t *testing.T) {
	store := newTestStore(t)

	snapshot, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snapshot.Pairs)
	require.Empty(t, snapshot.Pairs)
	require.True(t, snapshot.LastRefresh.IsZero())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	want := domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {
				Rate:      decimal.RequireFromString("60000.12345678"),
				UpdatedAt: observed,
				Source:    "CoinGecko",
			},
		},
		LastRefresh: observed,
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want.LastRefresh, got.LastRefresh)
	require.Len(t, got.Pairs, 1)

	entry := got.Pairs["BTC_USD"]
	require.Equal(t, "60000.12345678", entry.Rate.String())
	require.Equal(t, observed, entry.UpdatedAt)
	require.Equal(t, "CoinGecko", entry.Source)
}

func TestSaveReplacesWholeSnapshot(t *testing.T) {
	store := newTestStore(t)
	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.NewFromInt(60000), UpdatedAt: observed},
			"ETH_USD": {Rate: decimal.NewFromInt(2500), UpdatedAt: observed},
		},
		LastRefresh: observed,
	}))

	require.NoError(t, store.Save(domain.RateSnapshot{
		Pairs: map[string]domain.SnapshotEntry{
			"BTC_USD": {Rate: decimal.NewFromInt(61000), UpdatedAt: observed.Add(time.Minute)},
		},
		LastRefresh: observed.Add(time.Minute),
	}))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got.Pairs, 1)
	require.NotContains(t, got.Pairs, "ETH_USD")
}
