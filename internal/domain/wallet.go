package domain

import "github.com/shopspring/decimal"

// Wallet holds the balance of one currency inside a portfolio.
// Invariants: the currency code is fixed at creation, the balance is
// never negative and is always quantized to the currency precision.
type Wallet struct {
	CurrencyCode string
	Balance      decimal.Decimal

	precision int32
}

// NewWallet creates an empty wallet for the given currency.
func NewWallet(code string, precision int32) *Wallet {
	return &Wallet{CurrencyCode: code, Balance: decimal.Zero, precision: precision}
}

// RestoreWallet rebuilds a wallet from a persisted balance.
func RestoreWallet(code string, precision int32, balance decimal.Decimal) (*Wallet, error) {
	if balance.IsNegative() {
		return nil, NewValidationError("wallet %s: balance must not be negative, got %s", code, balance.String())
	}
	return &Wallet{
		CurrencyCode: code,
		Balance:      Quantize(balance, precision),
		precision:    precision,
	}, nil
}

// Precision returns the number of fractional digits of the wallet currency.
func (w *Wallet) Precision() int32 {
	return w.precision
}

// Deposit adds a positive amount to the balance.
func (w *Wallet) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("deposit amount must be positive, got %s", amount.String())
	}
	w.Balance = Quantize(w.Balance.Add(amount), w.precision)
	return nil
}

// Withdraw removes a positive amount from the balance. The funds check
// happens before any state change: on InsufficientFundsError the wallet
// is left exactly as it was.
func (w *Wallet) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("withdraw amount must be positive, got %s", amount.String())
	}
	if amount.GreaterThan(w.Balance) {
		return &InsufficientFundsError{
			Currency:  w.CurrencyCode,
			Available: w.Balance,
			Required:  amount,
		}
	}
	w.Balance = Quantize(w.Balance.Sub(amount), w.precision)
	return nil
}

// BalanceString formats the balance with the full currency precision.
func (w *Wallet) BalanceString() string {
	return w.Balance.StringFixed(w.precision)
}
