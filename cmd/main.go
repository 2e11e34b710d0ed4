// Command valutahub manages multi-currency portfolios backed by cached
// exchange rates from CoinGecko and ExchangeRate-API.
//
// Usage:
//
//	valutahub register --username alice --password secret
//	valutahub login --username alice --password secret
//	valutahub buy --currency BTC --amount 0.01
//	valutahub sell --currency BTC --amount 0.01
//	valutahub rate --from BTC --to USD
//	valutahub currencies
//	valutahub portfolio [--base USD]
//	valutahub update [--source coingecko|exchangerate]
//	valutahub serve
//
// Configuration comes from the file named by VALUTAHUB_CONFIG plus
// environment overrides; EXCHANGERATE_API_KEY enables the fiat source.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/valutatrade/valutahub/config"
	"github.com/valutatrade/valutahub/internal/clients"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/metrics"
	"github.com/valutatrade/valutahub/internal/registry"
	"github.com/valutatrade/valutahub/internal/services/auth"
	"github.com/valutatrade/valutahub/internal/services/ledger"
	"github.com/valutatrade/valutahub/internal/services/rates"
	"github.com/valutatrade/valutahub/internal/services/scheduler"
	"github.com/valutatrade/valutahub/internal/storage/docstore"
	"github.com/valutatrade/valutahub/internal/storage/history"
	"github.com/valutatrade/valutahub/internal/storage/portfolios"
	"github.com/valutatrade/valutahub/internal/storage/ratecache"
	"github.com/valutatrade/valutahub/internal/storage/trades"
	"github.com/valutatrade/valutahub/internal/storage/users"
	"github.com/valutatrade/valutahub/internal/web"
	"github.com/valutatrade/valutahub/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	rates    *rates.Engine
	ledger   *ledger.Engine
	auth     *auth.Service
	history  *history.WALStore
	trades   *trades.WALStore
	gatherer prometheus.Gatherer
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("failed to load .env")
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: valutahub <register|login|logout|portfolio|buy|sell|rate|currencies|update|serve> [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("VALUTAHUB_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer a.close()

	if err := a.dispatch(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg := registry.NewWithBuiltins()
	if cfg.CurrenciesFile != "" {
		if err := reg.LoadFile(cfg.CurrenciesFile); err != nil {
			return nil, err
		}
	}

	db, err := docstore.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	historyStore, err := history.NewWALStore(cfg.HistoryDir)
	if err != nil {
		return nil, err
	}
	tradeJournal, err := trades.NewWALStore(cfg.TradesDir)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	sources := []clients.RateSource{
		clients.NewCoinGecko(cfg.CoinGeckoURL, cfg.DefaultBase, cfg.CryptoIDs, cfg.RequestTimeout),
		clients.NewExchangeRate(cfg.ExchangeRateURL, cfg.ExchangeRateAPIKey, cfg.DefaultBase, cfg.FiatCurrencies, cfg.RequestTimeout),
	}

	rateEngine, err := rates.New(reg, ratecache.New(db), historyStore, sources, cfg.RatesTTL, logger, m)
	if err != nil {
		return nil, err
	}

	portfolioStore := portfolios.New(db, reg.Precision)
	ledgerEngine := ledger.New(reg, rateEngine, portfolioStore, tradeJournal, logger, m)
	authService := auth.New(users.New(db), portfolioStore, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		rates:    rateEngine,
		ledger:   ledgerEngine,
		auth:     authService,
		history:  historyStore,
		trades:   tradeJournal,
		gatherer: promRegistry,
	}, nil
}

func (a *app) close() {
	if err := a.history.Close(); err != nil {
		a.logger.Error("close history store", zap.Error(err))
	}
	if err := a.trades.Close(); err != nil {
		a.logger.Error("close trade journal", zap.Error(err))
	}
}

func (a *app) dispatch(command string, args []string) error {
	switch command {
	case "register":
		return a.cmdRegister(args)
	case "login":
		return a.cmdLogin(args)
	case "logout":
		return a.auth.Logout()
	case "portfolio":
		return a.cmdPortfolio(args)
	case "buy":
		return a.cmdTrade(domain.SideBuy, args)
	case "sell":
		return a.cmdTrade(domain.SideSell, args)
	case "rate":
		return a.cmdRate(args)
	case "currencies":
		for _, c := range a.registry.List() {
			fmt.Println(c.DisplayInfo())
		}
		return nil
	case "update":
		return a.cmdUpdate(args)
	case "serve":
		return a.cmdServe()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.auth.Register(*username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("user %q registered (id=%d), log in with: login --username %s --password ****\n",
		user.Username, user.ID, user.Username)
	return nil
}

func (a *app) cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.auth.Login(*username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %q\n", user.Username)
	return nil
}

func (a *app) cmdPortfolio(args []string) error {
	fs := flag.NewFlagSet("portfolio", flag.ExitOnError)
	base := fs.String("base", a.cfg.DefaultBase, "valuation currency")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.auth.CurrentUser()
	if err != nil {
		return err
	}

	v, err := a.ledger.Valuation(context.Background(), user.ID, *base)
	if err != nil {
		return err
	}

	fmt.Printf("portfolio of %q (base: %s)\n", user.Username, v.Base)
	for _, row := range v.Rows {
		rate := "N/A"
		if row.HasRate {
			rate = row.RateToBase.String()
		}
		fmt.Printf("  %-6s %20s  rate -> %s: %s\n", row.Currency, row.Balance.String(), v.Base, rate)
	}
	fmt.Printf("total: %s %s\n", v.Total.String(), v.Base)
	return nil
}

func (a *app) cmdTrade(side domain.TradeSide, args []string) error {
	fs := flag.NewFlagSet(string(side), flag.ExitOnError)
	currency := fs.String("currency", "", "currency code")
	amount := fs.String("amount", "", "quantity of the traded currency")
	base := fs.String("base", a.cfg.DefaultBase, "settlement currency")
	if err := fs.Parse(args); err != nil {
		return err
	}

	quantity, err := decimal.NewFromString(*amount)
	if err != nil {
		return domain.NewValidationError("amount must be a number, got %q", *amount)
	}

	user, err := a.auth.CurrentUser()
	if err != nil {
		return err
	}

	ctx := context.Background()
	var result *ledger.TradeResult
	if side == domain.SideBuy {
		result, err = a.ledger.Buy(ctx, user.ID, *currency, quantity, *base)
	} else {
		result, err = a.ledger.Sell(ctx, user.ID, *currency, quantity, *base)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s executed: %s %s at rate %s %s/%s (amount: %s %s)\n",
		side, result.Quantity.String(), result.Currency,
		result.Rate.String(), result.Base, result.Currency,
		result.Amount.String(), result.Base)
	for _, code := range []string{result.Currency, result.Base} {
		change := result.Changes[code]
		fmt.Printf("  %s: %s -> %s\n", code, change.Before.String(), change.After.String())
	}
	return nil
}

func (a *app) cmdRate(args []string) error {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	from := fs.String("from", "", "source currency")
	to := fs.String("to", "", "target currency")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rate, observedAt, err := a.rates.Resolve(*from, *to)
	if err != nil {
		return err
	}

	fmt.Printf("rate %s -> %s: %s (observed: %s)\n", *from, *to, rate.String(), observedAt.Format(time.RFC3339))
	if !rate.IsZero() {
		fmt.Printf("inverse %s -> %s: %s\n", *to, *from, decimal.NewFromInt(1).Div(rate).String())
	}
	return nil
}

// cmdUpdate retries failed cycles with backoff: retrying on upstream
// failure is the caller's decision, the engine itself never retries.
func (a *app) cmdUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	source := fs.String("source", "", "restrict the update to one source (coingecko or exchangerate)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var only []string
	switch strings.ToLower(*source) {
	case "":
	case "coingecko":
		only = []string{"CoinGecko"}
	case "exchangerate":
		only = []string{"ExchangeRate-API"}
	default:
		return domain.NewValidationError("unknown source %q: use coingecko or exchangerate", *source)
	}

	var result rates.UpdateResult
	r := retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(2*time.Second))
	err := r.Do(context.Background(), func(ctx context.Context) error {
		var err error
		result, err = a.rates.Update(ctx, only...)
		if err != nil {
			return err
		}
		if result.Status == rates.StatusFailed {
			return errors.Errorf("update failed: %d source errors", len(result.Errors))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("update %s: %d sources ok, %d pairs, last refresh %s\n",
		result.Status, result.OkSources, result.PairsCount, result.LastRefresh.Format(time.RFC3339))
	for _, srcErr := range result.Errors {
		fmt.Printf("  source error: %v\n", srcErr)
	}
	return nil
}

func (a *app) cmdServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(a.rates, a.cfg.RefreshInterval, a.logger)
	server := web.NewServer(a.cfg.HTTPAddr, a.rates, a.gatherer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return server.Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
