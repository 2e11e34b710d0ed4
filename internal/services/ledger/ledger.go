// Package ledger implements the transaction engine mutating user
// portfolios: buy and sell as atomic two-leg balance transfers.
package ledger

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/metrics"
	"github.com/valutatrade/valutahub/internal/registry"
	"github.com/valutatrade/valutahub/pkg/kmutex"
	"go.uber.org/zap"
)

// RateResolver answers rate queries; the cache engine implements it.
type RateResolver interface {
	Resolve(from, to string) (decimal.Decimal, time.Time, error)
}

// PortfolioStore loads and saves whole portfolio documents.
type PortfolioStore interface {
	Load(userID int64) (*domain.Portfolio, error)
	Save(*domain.Portfolio) error
}

// TradeJournal receives one record per executed trade.
type TradeJournal interface {
	Append(domain.TradeRecord) error
}

// BalanceChange is the before/after balance of one trade leg.
type BalanceChange struct {
	Before decimal.Decimal
	After  decimal.Decimal
}

// TradeResult reports one executed trade: the rate used, the amount moved
// in the base currency and the balance changes of both legs.
type TradeResult struct {
	Side           domain.TradeSide
	Currency       string
	Base           string
	Quantity       decimal.Decimal
	Rate           decimal.Decimal
	RateObservedAt time.Time
	// Amount is the cost (buy) or revenue (sell) in the base currency.
	Amount  decimal.Decimal
	Changes map[string]BalanceChange
}

// Engine executes trades over the portfolio store. The read-modify-write
// cycle on one user's portfolio is serialized through a per-user lock;
// different users proceed in parallel.
type Engine struct {
	registry   *registry.Registry
	rates      RateResolver
	portfolios PortfolioStore
	journal    TradeJournal
	locks      *kmutex.KMutex
	logger     *zap.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time
}

// New creates the ledger engine.
func New(reg *registry.Registry, rates RateResolver, portfolios PortfolioStore, journal TradeJournal,
	logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		registry:   reg,
		rates:      rates,
		portfolios: portfolios,
		journal:    journal,
		locks:      kmutex.New(),
		logger:     logger,
		metrics:    m,
		clock:      time.Now,
	}
}

// Buy purchases quantity units of currency, paying from the user's base
// wallet at the resolved rate. The base wallet is auto-created at zero;
// a balance below cost fails with InsufficientFundsError before any
// mutation. Both legs land in one portfolio write.
func (e *Engine) Buy(ctx context.Context, userID int64, currencyCode string, quantity decimal.Decimal, baseCode string) (*TradeResult, error) {
	started := time.Now()

	currency, base, err := e.validateTrade(currencyCode, quantity, baseCode)
	if err != nil {
		return nil, err
	}

	rate, observedAt, err := e.rates.Resolve(currency.Code, base.Code)
	if err != nil {
		return nil, err
	}
	cost := domain.Quantize(quantity.Mul(rate), base.Precision)

	e.lockUser(userID)
	defer e.unlockUser(userID)

	p, err := e.portfolios.Load(userID)
	if err != nil {
		return nil, err
	}

	baseWallet := p.AddWallet(base.Code, base.Precision)
	if baseWallet.Balance.LessThan(cost) {
		return nil, &domain.InsufficientFundsError{
			Currency:  base.Code,
			Available: baseWallet.Balance,
			Required:  cost,
		}
	}

	targetWallet := p.AddWallet(currency.Code, currency.Precision)
	beforeTarget := targetWallet.Balance
	beforeBase := baseWallet.Balance

	if err := targetWallet.Deposit(quantity); err != nil {
		return nil, err
	}
	if err := baseWallet.Withdraw(cost); err != nil {
		return nil, err
	}

	if err := e.portfolios.Save(p); err != nil {
		return nil, errors.Wrap(err, "persist portfolio")
	}

	result := &TradeResult{
		Side:           domain.SideBuy,
		Currency:       currency.Code,
		Base:           base.Code,
		Quantity:       quantity,
		Rate:           rate,
		RateObservedAt: observedAt,
		Amount:         cost,
		Changes: map[string]BalanceChange{
			currency.Code: {Before: beforeTarget, After: targetWallet.Balance},
			base.Code:     {Before: beforeBase, After: baseWallet.Balance},
		},
	}
	e.finishTrade(userID, result, started)
	return result, nil
}

// Sell disposes quantity units of currency into the user's base wallet at
// the resolved rate. The source wallet must already exist; the funds check
// happens inside the withdraw primitive before the base wallet is touched.
func (e *Engine) Sell(ctx context.Context, userID int64, currencyCode string, quantity decimal.Decimal, baseCode string) (*TradeResult, error) {
	started := time.Now()

	currency, base, err := e.validateTrade(currencyCode, quantity, baseCode)
	if err != nil {
		return nil, err
	}

	rate, observedAt, err := e.rates.Resolve(currency.Code, base.Code)
	if err != nil {
		return nil, err
	}
	revenue := domain.Quantize(quantity.Mul(rate), base.Precision)

	e.lockUser(userID)
	defer e.unlockUser(userID)

	p, err := e.portfolios.Load(userID)
	if err != nil {
		return nil, err
	}

	sourceWallet, ok := p.Wallet(currency.Code)
	if !ok {
		return nil, domain.NewValidationError("no %s wallet: it is created on first buy", currency.Code)
	}
	beforeSource := sourceWallet.Balance

	if err := sourceWallet.Withdraw(quantity); err != nil {
		return nil, err
	}

	baseWallet := p.AddWallet(base.Code, base.Precision)
	beforeBase := baseWallet.Balance
	if err := baseWallet.Deposit(revenue); err != nil {
		return nil, err
	}

	if err := e.portfolios.Save(p); err != nil {
		return nil, errors.Wrap(err, "persist portfolio")
	}

	result := &TradeResult{
		Side:           domain.SideSell,
		Currency:       currency.Code,
		Base:           base.Code,
		Quantity:       quantity,
		Rate:           rate,
		RateObservedAt: observedAt,
		Amount:         revenue,
		Changes: map[string]BalanceChange{
			currency.Code: {Before: beforeSource, After: sourceWallet.Balance},
			base.Code:     {Before: beforeBase, After: baseWallet.Balance},
		},
	}
	e.finishTrade(userID, result, started)
	return result, nil
}

// ValuationRow is one currency line of a portfolio valuation.
type ValuationRow struct {
	Currency string
	Balance  decimal.Decimal
	// RateToBase is set when a fresh rate exists; zero balances and
	// unpriced currencies leave HasRate false.
	RateToBase decimal.Decimal
	HasRate    bool
}

// Valuation is a portfolio priced in one base currency.
type Valuation struct {
	UserID int64
	Base   string
	Rows   []ValuationRow
	Total  decimal.Decimal
}

// Valuation prices the user's portfolio in base. Currencies without a
// fresh rate appear as rows but do not contribute to the total.
func (e *Engine) Valuation(ctx context.Context, userID int64, baseCode string) (*Valuation, error) {
	base, err := e.registry.Lookup(baseCode)
	if err != nil {
		return nil, err
	}

	e.lockUser(userID)
	p, err := e.portfolios.Load(userID)
	e.unlockUser(userID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{UserID: userID, Base: base.Code}
	total := decimal.Zero

	for _, code := range p.Codes() {
		w := p.Wallets[code]
		row := ValuationRow{Currency: code, Balance: w.Balance}

		switch {
		case w.Balance.IsZero():
			// nothing to price
		case code == base.Code:
			row.RateToBase = decimal.NewFromInt(1)
			row.HasRate = true
			total = total.Add(w.Balance)
		default:
			rate, _, err := e.rates.Resolve(code, base.Code)
			if err == nil {
				row.RateToBase = rate
				row.HasRate = true
				total = total.Add(w.Balance.Mul(rate))
			} else if !errors.Is(err, domain.ErrRateUnavailable) && !errors.Is(err, domain.ErrZeroRate) {
				return nil, err
			}
		}
		v.Rows = append(v.Rows, row)
	}

	sort.Slice(v.Rows, func(i, j int) bool { return v.Rows[i].Currency < v.Rows[j].Currency })
	v.Total = domain.Quantize(total, base.Precision)
	return v, nil
}

func (e *Engine) validateTrade(currencyCode string, quantity decimal.Decimal, baseCode string) (domain.Currency, domain.Currency, error) {
	if !quantity.IsPositive() {
		return domain.Currency{}, domain.Currency{}, domain.NewValidationError(
			"quantity must be positive, got %s", quantity.String())
	}
	currency, err := e.registry.Lookup(currencyCode)
	if err != nil {
		return domain.Currency{}, domain.Currency{}, err
	}
	base, err := e.registry.Lookup(baseCode)
	if err != nil {
		return domain.Currency{}, domain.Currency{}, err
	}
	return currency, base, nil
}

func (e *Engine) finishTrade(userID int64, result *TradeResult, started time.Time) {
	record := domain.TradeRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Side:           result.Side,
		Currency:       result.Currency,
		Base:           result.Base,
		Quantity:       result.Quantity,
		Rate:           result.Rate,
		RateObservedAt: result.RateObservedAt,
		Amount:         result.Amount,
		ExecutedAt:     e.clock().UTC().Truncate(time.Second),
	}
	// The portfolio write already succeeded; a journal failure must not
	// fail the trade from the caller's perspective.
	if err := e.journal.Append(record); err != nil {
		e.logger.Error("append trade journal", zap.String("trade_id", record.ID), zap.Error(err))
	}

	e.metrics.Trades.WithLabelValues(string(result.Side), result.Currency).Inc()
	e.metrics.TradeDuration.Observe(time.Since(started).Seconds())
	e.logger.Info("trade executed",
		zap.Int64("user_id", userID),
		zap.String("side", string(result.Side)),
		zap.String("currency", result.Currency),
		zap.String("quantity", result.Quantity.String()),
		zap.String("rate", result.Rate.String()),
		zap.String("amount", result.Amount.String()),
		zap.String("base", result.Base))
}

func (e *Engine) lockUser(userID int64) {
	e.locks.Lock(userKey(userID))
}

func (e *Engine) unlockUser(userID int64) {
	e.locks.Unlock(userKey(userID))
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
