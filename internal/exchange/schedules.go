package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"arbtest/internal/config"
	"arbtest/internal/model"
)

// ConfigScheduleSource builds immutable fee schedules from the loaded
// configuration. It is the default schedule source for backtests: schedules
// are constructed once per lookup from read-only config, so every task
// evaluating the same (exchange, asset) observes identical values.
type ConfigScheduleSource struct {
	exchanges map[string]config.ExchangeConfig
}

// NewConfigScheduleSource wraps the per-exchange config section.
func NewConfigScheduleSource(exchanges map[string]config.ExchangeConfig) *ConfigScheduleSource {
	return &ConfigScheduleSource{exchanges: exchanges}
}

// ScheduleFor returns the fee schedule for (exchange, asset), or a
// configuration error when either level is absent or invalid. The context is
// unused; config lookups are local.
func (s *ConfigScheduleSource) ScheduleFor(ctx context.Context, exchange, asset string) (model.FeeSchedule, error) {
	ex, ok := s.exchanges[exchange]
	if !ok {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: "no fee configuration for exchange " + exchange}
	}
	a, ok := ex.Assets[asset]
	if !ok {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: fmt.Sprintf("no fee configuration for asset %s on %s", asset, exchange)}
	}

	if a.TakerFeeRate < 0 || a.TakerFeeRate >= 1 {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: fmt.Sprintf("%s %s: taker_fee_rate must be in [0,1)", exchange, asset)}
	}
	if a.PricePrecisionDigits <= 0 {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: fmt.Sprintf("%s %s: price_precision_digits must be positive", exchange, asset)}
	}
	if a.MinOrderVolume < 0 || a.MaxOrderVolume < 0 {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: fmt.Sprintf("%s %s: order volume limits must be non-negative", exchange, asset)}
	}
	if a.MaxOrderVolume > 0 && a.MaxOrderVolume < a.MinOrderVolume {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: fmt.Sprintf("%s %s: max_order_volume below min_order_volume", exchange, asset)}
	}

	return model.FeeSchedule{
		Exchange:             exchange,
		Asset:                asset,
		TakerFeeRate:         decimal.NewFromFloat(a.TakerFeeRate),
		PricePrecisionDigits: a.PricePrecisionDigits,
		MinOrderVolume:       decimal.NewFromFloat(a.MinOrderVolume),
		MaxOrderVolume:       decimal.NewFromFloat(a.MaxOrderVolume),
		WithdrawalFeeFixed:   decimal.NewFromFloat(a.WithdrawalFeeFixed),
		WithdrawalFeePercent: decimal.NewFromFloat(a.WithdrawalFeePercent),
	}, nil
}

// ClientScheduleSource composes fee schedules from live exchange metadata
// via the MetadataClient capability interface. Used when no static fee
// configuration is available for an exchange.
type ClientScheduleSource struct {
	clients map[string]MetadataClient
}

// NewClientScheduleSource wraps metadata clients keyed by exchange name.
func NewClientScheduleSource(clients map[string]MetadataClient) *ClientScheduleSource {
	return &ClientScheduleSource{clients: clients}
}

// ScheduleFor fetches fee rate, precision, limits and withdrawal fee from
// the exchange and assembles the immutable schedule. Fetches are cancelled
// with the caller's context.
func (s *ClientScheduleSource) ScheduleFor(ctx context.Context, exchange, asset string) (model.FeeSchedule, error) {
	client, ok := s.clients[exchange]
	if !ok {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: "no metadata client for exchange " + exchange}
	}

	fee, err := client.FetchFeeRate(ctx, asset)
	if err != nil {
		return model.FeeSchedule{}, fmt.Errorf("fetch fee rate for %s on %s: %w", asset, exchange, err)
	}
	precision, err := client.FetchPrecision(ctx, asset)
	if err != nil {
		return model.FeeSchedule{}, fmt.Errorf("fetch precision for %s on %s: %w", asset, exchange, err)
	}
	minVol, maxVol, err := client.FetchLimits(ctx, asset)
	if err != nil {
		return model.FeeSchedule{}, fmt.Errorf("fetch limits for %s on %s: %w", asset, exchange, err)
	}
	fixed, percent, err := client.FetchWithdrawalFee(ctx, asset)
	if err != nil {
		return model.FeeSchedule{}, fmt.Errorf("fetch withdrawal fee for %s on %s: %w", asset, exchange, err)
	}

	return model.FeeSchedule{
		Exchange:             exchange,
		Asset:                asset,
		TakerFeeRate:         fee,
		PricePrecisionDigits: precision,
		MinOrderVolume:       minVol,
		MaxOrderVolume:       maxVol,
		WithdrawalFeeFixed:   fixed,
		WithdrawalFeePercent: percent,
	}, nil
}
