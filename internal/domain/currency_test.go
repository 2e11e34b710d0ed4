package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrencyCode(t *testing.T) {
	testcases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"usd", "USD", false},
		{"  btc ", "BTC", false},
		{"USDT", "USDT", false},
		{"X", "", true},
		{"", "", true},
		{"TOOLONGCODE1", "", true},
		{"US-D", "", true},
	}

	for _, tc := range testcases {
		got, err := NormalizeCurrencyCode(tc.in)
		if tc.wantErr {
			var verr *ValidationError
			require.ErrorAs(t, err, &verr, "code %q", tc.in)
			continue
		}
		require.NoError(t, err, "code %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestCurrencyConstructors(t *testing.T) {
	usd := NewFiat("US Dollar", "USD", "USA")
	require.Equal(t, KindFiat, usd.Kind)
	require.Equal(t, FiatPrecision, usd.Precision)
	require.Contains(t, usd.DisplayInfo(), "[FIAT] USD")

	btc := NewCrypto("Bitcoin", "BTC", "SHA-256", 1.2e12)
	require.Equal(t, KindCrypto, btc.Kind)
	require.Equal(t, CryptoPrecision, btc.Precision)
	require.Contains(t, btc.DisplayInfo(), "[CRYPTO] BTC")
}

func TestPairKey(t *testing.T) {
	require.Equal(t, "BTC_USD", PairKey("BTC", "USD"))
	require.Equal(t, "USD_BTC", PairKey("USD", "BTC"))
}

func TestHistoryRecordID(t *testing.T) {
	ts := time.Date(2026, 8, 26, 12, 30, 45, 0, time.UTC)
	require.Equal(t, "BTC_USD_2026-08-26T12:30:45Z", HistoryRecordID("BTC", "USD", ts))
}
