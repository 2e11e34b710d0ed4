package domain

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Portfolio is the set of wallets owned by one user, at most one per
// currency code. It is persisted as a whole document and mutated under
// read-modify-write: callers must serialize operations per user.
type Portfolio struct {
	UserID  int64
	Wallets map[string]*Wallet
}

// NewPortfolio creates an empty portfolio for the given user.
func NewPortfolio(userID int64) *Portfolio {
	return &Portfolio{UserID: userID, Wallets: make(map[string]*Wallet)}
}

// Wallet returns the wallet for code, if present.
func (p *Portfolio) Wallet(code string) (*Wallet, bool) {
	w, ok := p.Wallets[code]
	return w, ok
}

// AddWallet returns the wallet for code, creating an empty one on first touch.
func (p *Portfolio) AddWallet(code string, precision int32) *Wallet {
	if w, ok := p.Wallets[code]; ok {
		return w
	}
	w := NewWallet(code, precision)
	p.Wallets[code] = w
	return w
}

// Codes returns the portfolio currency codes in sorted order.
func (p *Portfolio) Codes() []string {
	codes := make([]string, 0, len(p.Wallets))
	for code := range p.Wallets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TotalValue sums all non-empty wallets converted into base via rateOf and
// quantizes the total to basePrecision. Wallets rateOf cannot price are
// reported back so the caller can surface them instead of failing the sum.
func (p *Portfolio) TotalValue(base string, basePrecision int32, rateOf func(from, to string) (decimal.Decimal, error)) (decimal.Decimal, []string, error) {
	total := decimal.Zero
	var unpriced []string

	for _, code := range p.Codes() {
		w := p.Wallets[code]
		if w.Balance.IsZero() {
			continue
		}
		if code == base {
			total = total.Add(w.Balance)
			continue
		}
		rate, err := rateOf(code, base)
		if err != nil {
			if errors.Is(err, ErrRateUnavailable) {
				unpriced = append(unpriced, code)
				continue
			}
			return decimal.Zero, nil, err
		}
		total = total.Add(w.Balance.Mul(rate))
	}

	return Quantize(total, basePrecision), unpriced, nil
}

// WalletDocument is the wire form of one wallet inside a portfolio document.
type WalletDocument struct {
	Balance string `json:"balance"`
}

// PortfolioDocument is the persisted JSON form of a portfolio.
type PortfolioDocument struct {
	UserID  int64                     `json:"user_id"`
	Wallets map[string]WalletDocument `json:"wallets"`
}

// Document converts the portfolio into its persisted form, balances
// rendered with the full precision of each currency.
func (p *Portfolio) Document() PortfolioDocument {
	doc := PortfolioDocument{
		UserID:  p.UserID,
		Wallets: make(map[string]WalletDocument, len(p.Wallets)),
	}
	for code, w := range p.Wallets {
		doc.Wallets[code] = WalletDocument{Balance: w.BalanceString()}
	}
	return doc
}

// PortfolioFromDocument rebuilds a portfolio from its persisted form.
// precisionOf supplies the quantization precision per currency code.
func PortfolioFromDocument(doc PortfolioDocument, precisionOf func(code string) int32) (*Portfolio, error) {
	p := NewPortfolio(doc.UserID)
	for code, wd := range doc.Wallets {
		normalized, err := NormalizeCurrencyCode(code)
		if err != nil {
			return nil, err
		}
		balance, err := decimal.NewFromString(wd.Balance)
		if err != nil {
			return nil, errors.Wrapf(err, "portfolio %d: decode %s balance", doc.UserID, normalized)
		}
		w, err := RestoreWallet(normalized, precisionOf(normalized), balance)
		if err != nil {
			return nil, err
		}
		p.Wallets[normalized] = w
	}
	return p, nil
}
