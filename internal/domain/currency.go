// Package domain defines the core data structures of the exchange:
// currencies, quotes, wallets, portfolios and users.
package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyKind distinguishes fiat currencies from crypto assets.
type CurrencyKind string

const (
	KindFiat   CurrencyKind = "fiat"
	KindCrypto CurrencyKind = "crypto"
)

const (
	// FiatPrecision is the number of fractional digits for fiat balances.
	FiatPrecision int32 = 2
	// CryptoPrecision is the number of fractional digits for crypto balances.
	CryptoPrecision int32 = 8
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// Currency is an immutable entry of the currency registry.
// Precision drives all balance and rate rounding involving this currency.
type Currency struct {
	Code      string       `yaml:"code"`
	Name      string       `yaml:"name"`
	Kind      CurrencyKind `yaml:"kind"`
	Precision int32        `yaml:"precision"`

	// IssuingCountry is set for fiat currencies only.
	IssuingCountry string `yaml:"issuing_country"`
	// Algorithm and MarketCap are set for crypto assets only.
	Algorithm string  `yaml:"algorithm"`
	MarketCap float64 `yaml:"market_cap"`
}

// NewFiat builds a fiat currency with the standard fiat precision.
func NewFiat(name, code, issuingCountry string) Currency {
	return Currency{
		Code:           code,
		Name:           name,
		Kind:           KindFiat,
		Precision:      FiatPrecision,
		IssuingCountry: issuingCountry,
	}
}

// NewCrypto builds a crypto asset with the standard crypto precision.
func NewCrypto(name, code, algorithm string, marketCap float64) Currency {
	return Currency{
		Code:      code,
		Name:      name,
		Kind:      KindCrypto,
		Precision: CryptoPrecision,
		Algorithm: algorithm,
		MarketCap: marketCap,
	}
}

// DisplayInfo returns a one-line human-readable description.
func (c Currency) DisplayInfo() string {
	switch c.Kind {
	case KindCrypto:
		return fmt.Sprintf("[CRYPTO] %s — %s (Algo: %s, MCAP: %.2e)", c.Code, c.Name, c.Algorithm, c.MarketCap)
	default:
		return fmt.Sprintf("[FIAT] %s — %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
	}
}

// NormalizeCurrencyCode trims and uppercases a currency code and validates
// its shape: 2-10 uppercase alphanumeric characters.
func NormalizeCurrencyCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !currencyCodeRe.MatchString(c) {
		return "", NewValidationError("invalid currency code %q: want 2-10 alphanumeric characters", code)
	}
	return c, nil
}

// Quantize rounds amount to the given number of fractional digits using
// round-half-up. All wallet and rate arithmetic must round through here,
// otherwise running totals drift by fractions of a cent over many trades.
func Quantize(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.Round(precision)
}
