// Package registry implements the static catalog of supported currencies.
package registry

import (
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valutatrade/valutahub/internal/domain"
	"gopkg.in/yaml.v3"
)

// Registry is a read-only lookup table of currency metadata. It is filled
// once at process start and never mutated afterwards.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]domain.Currency
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{currencies: make(map[string]domain.Currency)}
}

// NewWithBuiltins returns a registry preloaded with the built-in currency set.
func NewWithBuiltins() *Registry {
	r := New()
	for _, c := range builtins() {
		r.Register(c)
	}
	return r
}

func builtins() []domain.Currency {
	return []domain.Currency{
		domain.NewFiat("US Dollar", "USD", "United States"),
		domain.NewFiat("Euro", "EUR", "Eurozone"),
		domain.NewFiat("Russian Ruble", "RUB", "Russia"),
		domain.NewFiat("Pound Sterling", "GBP", "United Kingdom"),
		domain.NewCrypto("Bitcoin", "BTC", "SHA-256", 1.2e12),
		domain.NewCrypto("Ethereum", "ETH", "Ethash", 4.5e11),
		domain.NewCrypto("Tether", "USDT", "n/a", 1.1e11),
		domain.NewCrypto("Solana", "SOL", "Proof of History", 8.0e10),
	}
}

// Register inserts or overwrites a currency by code.
func (r *Registry) Register(c domain.Currency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies[c.Code] = c
}

// Lookup normalizes code and returns the registered currency.
// An invalid code shape yields a ValidationError, an unknown code
// yields ErrCurrencyNotFound.
func (r *Registry) Lookup(code string) (domain.Currency, error) {
	normalized, err := domain.NormalizeCurrencyCode(code)
	if err != nil {
		return domain.Currency{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.currencies[normalized]
	if !ok {
		return domain.Currency{}, errors.Wrapf(domain.ErrCurrencyNotFound, "%q", normalized)
	}
	return c, nil
}

// Precision returns the quantization precision for code, falling back to
// the fiat precision for codes that are no longer registered. The fallback
// keeps old portfolio documents readable after a registry change.
func (r *Registry) Precision(code string) int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.currencies[code]; ok {
		return c.Precision
	}
	return domain.FiatPrecision
}

// Quantize rounds amount to the precision of code using round-half-up.
func (r *Registry) Quantize(code string, amount decimal.Decimal) decimal.Decimal {
	return domain.Quantize(amount, r.Precision(code))
}

// List returns all registered currencies sorted by code.
func (r *Registry) List() []domain.Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Currency, 0, len(r.currencies))
	for _, c := range r.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// LoadFile registers additional currencies from a YAML table. Entries
// without an explicit precision get the default precision of their kind.
func (r *Registry) LoadFile(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read currencies file")
	}

	var entries []domain.Currency
	if err := yaml.Unmarshal(payload, &entries); err != nil {
		return errors.Wrap(err, "decode currencies file")
	}

	for _, c := range entries {
		code, err := domain.NormalizeCurrencyCode(c.Code)
		if err != nil {
			return err
		}
		c.Code = code
		if c.Kind != domain.KindFiat && c.Kind != domain.KindCrypto {
			return domain.NewValidationError("currency %s: unknown kind %q", code, c.Kind)
		}
		if c.Precision == 0 {
			if c.Kind == domain.KindCrypto {
				c.Precision = domain.CryptoPrecision
			} else {
				c.Precision = domain.FiatPrecision
			}
		}
		r.Register(c)
	}
	return nil
}
