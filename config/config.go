// Package config loads the application configuration from an optional
// YAML file with environment-variable overrides.
package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

// Config carries every knob the engines are constructed with. The core
// components never read the environment themselves; everything is
// injected from here.
type Config struct {
	DataDir         string        `yaml:"data_dir" env:"VTH_DATA_DIR" env-default:"data"`
	HistoryDir      string        `yaml:"history_dir" env:"VTH_HISTORY_DIR" env-default:"wal/history"`
	TradesDir       string        `yaml:"trades_dir" env:"VTH_TRADES_DIR" env-default:"wal/trades"`
	DefaultBase     string        `yaml:"default_base" env:"VTH_DEFAULT_BASE" env-default:"USD"`
	RatesTTL        time.Duration `yaml:"rates_ttl" env:"VTH_RATES_TTL" env-default:"5m"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"VTH_REFRESH_INTERVAL" env-default:"5m"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"VTH_REQUEST_TIMEOUT" env-default:"10s"`
	HTTPAddr        string        `yaml:"http_addr" env:"VTH_HTTP_ADDR" env-default:":8080"`

	CoinGeckoURL       string            `yaml:"coingecko_url" env:"COINGECKO_URL" env-default:"https://api.coingecko.com/api/v3/simple/price"`
	ExchangeRateURL    string            `yaml:"exchangerate_url" env:"EXCHANGERATE_API_URL" env-default:"https://v6.exchangerate-api.com/v6"`
	ExchangeRateAPIKey string            `yaml:"exchangerate_api_key" env:"EXCHANGERATE_API_KEY"`
	FiatCurrencies     []string          `yaml:"fiat_currencies" env:"VTH_FIAT_CURRENCIES" env-default:"EUR,GBP,RUB"`
	CryptoIDs          map[string]string `yaml:"crypto_ids"`

	// CurrenciesFile optionally extends the built-in currency registry.
	CurrenciesFile string `yaml:"currencies_file" env:"VTH_CURRENCIES_FILE"`
}

// Load reads the configuration. path may be empty, in which case only
// environment variables and defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, errors.Wrap(err, "read config")
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, errors.Wrap(err, "read config from environment")
		}
	}

	if cfg.CryptoIDs == nil {
		cfg.CryptoIDs = map[string]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
			"SOL": "solana",
		}
	}

	if cfg.RatesTTL <= 0 {
		return nil, errors.New("rates_ttl must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("request_timeout must be positive")
	}

	return &cfg, nil
}
