package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"arbtest/internal/model"
)

// MetadataClient is the fixed capability surface the backtester needs from
// an exchange. Adapters implement these four fetches; nothing in the core
// depends on a concrete exchange type.
type MetadataClient interface {
	Name() string
	FetchFeeRate(ctx context.Context, asset string) (decimal.Decimal, error)
	FetchPrecision(ctx context.Context, asset string) (int32, error)
	FetchLimits(ctx context.Context, asset string) (min, max decimal.Decimal, err error)
	FetchWithdrawalFee(ctx context.Context, asset string) (fixed, percent decimal.Decimal, err error)
}

// Client combines exchange metadata with the public trade feed used by the
// recorder to produce backtest input data.
type Client interface {
	MetadataClient
	StreamTrades(ctx context.Context, tradeChan chan<- model.TradeRecord, symbol string) error
}
