package config

import (
	"strings"

	"github.com/spf13/viper"

	"arbtest/internal/model"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Data      DataConfig
	Database  DatabaseConfig
	Exchanges map[string]ExchangeConfig
	Tasks     []model.Task
}

// ArbitrageConfig defines the backtest-wide settings.
type ArbitrageConfig struct {
	TradeVolume            float64 `mapstructure:"trade_volume"`
	StalenessWindowSeconds int     `mapstructure:"staleness_window_seconds"`
	WorkerPoolSize         int     `mapstructure:"worker_pool_size"`
}

// DataConfig locates the historical trade data.
type DataConfig struct {
	Dir string
}

// DatabaseConfig defines the database connection settings. Persistence is
// optional; it is skipped when Enabled is false.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// ExchangeConfig defines settings for a specific exchange, keyed by asset.
type ExchangeConfig struct {
	Assets map[string]AssetConfig
}

// AssetConfig defines the fee schedule inputs for one asset on an exchange.
type AssetConfig struct {
	TakerFeeRate         float64 `mapstructure:"taker_fee_rate"`
	PricePrecisionDigits int32   `mapstructure:"price_precision_digits"`
	MinOrderVolume       float64 `mapstructure:"min_order_volume"`
	MaxOrderVolume       float64 `mapstructure:"max_order_volume"`
	WithdrawalFeeFixed   float64 `mapstructure:"withdrawal_fee_fixed"`
	WithdrawalFeePercent float64 `mapstructure:"withdrawal_fee_percent"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// Validate checks the settings the scheduler depends on before any task
// starts; per-task fee schedule lookups are validated lazily by the schedule
// source so that a missing schedule fails only the tasks that need it.
func (c *Config) Validate() error {
	if c.Arbitrage.TradeVolume <= 0 {
		return &model.ConfigurationError{Detail: "arbitrage.trade_volume must be positive"}
	}
	if c.Arbitrage.StalenessWindowSeconds <= 0 {
		return &model.ConfigurationError{Detail: "arbitrage.staleness_window_seconds must be positive"}
	}
	if c.Arbitrage.WorkerPoolSize <= 0 {
		return &model.ConfigurationError{Detail: "arbitrage.worker_pool_size must be positive"}
	}
	if len(c.Tasks) == 0 {
		return &model.ConfigurationError{Detail: "no tasks configured"}
	}
	for _, t := range c.Tasks {
		if t.ExchangeA == "" || t.ExchangeB == "" || t.Symbol == "" {
			return &model.ConfigurationError{Detail: "task is missing exchange_a, exchange_b or symbol"}
		}
		if !strings.Contains(t.Symbol, "/") {
			return &model.ConfigurationError{Detail: "symbol must be BASE/QUOTE: " + t.Symbol}
		}
	}
	return nil
}
