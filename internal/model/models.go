package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord represents a single historical trade observed on an exchange.
// Records are immutable once read; timestamps are non-decreasing within a
// stream.
type TradeRecord struct {
	Exchange  string
	Symbol    string
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
}

// FeeSchedule holds the fee, precision and limit configuration for one
// (exchange, asset) pair. Values are never mutated after load and may be
// shared read-only across tasks.
type FeeSchedule struct {
	Exchange             string
	Asset                string
	TakerFeeRate         decimal.Decimal
	PricePrecisionDigits int32
	MinOrderVolume       decimal.Decimal
	MaxOrderVolume       decimal.Decimal
	WithdrawalFeeFixed   decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
}

// AlignedEvent is one point on the merged timeline of two trade streams. It
// carries the most recent known price on both exchanges at Timestamp, even if
// only one exchange produced the triggering trade. Stale is set when the
// non-triggering exchange's price is older than the configured staleness
// window, in which case no opportunity is evaluated for this event.
type AlignedEvent struct {
	Timestamp      time.Time
	SourceExchange string
	PriceA         decimal.Decimal
	PriceB         decimal.Decimal
	Stale          bool
}

// Infeasibility reasons recorded on opportunities that fail a constraint
// check rather than an error path.
const (
	ReasonBelowMinOrderSize = "below minimum order size"
	ReasonPriceRoundsToZero = "price rounds to zero"
)

// ArbitrageOpportunity is one evaluated buy/sell round trip. The cost
// decomposition is kept in full so every net profit is auditable:
// NetProfit = SellRevenue - BuyCost - WithdrawalFee.
type ArbitrageOpportunity struct {
	Timestamp           time.Time       `csv:"timestamp"`
	BuyExchange         string          `csv:"buy_exchange"`
	SellExchange        string          `csv:"sell_exchange"`
	BuyPrice            decimal.Decimal `csv:"buy_price"`
	SellPrice           decimal.Decimal `csv:"sell_price"`
	Volume              decimal.Decimal `csv:"volume"`
	GrossSpread         decimal.Decimal `csv:"gross_spread"`
	BuyCost             decimal.Decimal `csv:"buy_cost"`
	SellRevenue         decimal.Decimal `csv:"sell_revenue"`
	TradingFees         decimal.Decimal `csv:"trading_fees"`
	WithdrawalFee       decimal.Decimal `csv:"withdrawal_fee"`
	NetProfit           decimal.Decimal `csv:"net_profit"`
	Feasible            bool            `csv:"feasible"`
	InfeasibilityReason string          `csv:"infeasibility_reason"`
}

// TaskStatus is the terminal state of one backtest task. Every requested
// task reports exactly one status in the final result set.
type TaskStatus string

const (
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Task identifies one (exchangeA, exchangeB, symbol) backtest combination.
type Task struct {
	ExchangeA string `mapstructure:"exchange_a"`
	ExchangeB string `mapstructure:"exchange_b"`
	Symbol    string `mapstructure:"symbol"`
}

// Pair returns the canonical exchange-pair label used as part of the sort
// key of the aggregated result set.
func (t Task) Pair() string {
	return t.ExchangeA + "-" + t.ExchangeB
}

func (t Task) String() string {
	return fmt.Sprintf("%s %s", t.Symbol, t.Pair())
}

// BacktestStats aggregates the feasible opportunities of one task. Sums are
// exact decimal folds, never float accumulation.
type BacktestStats struct {
	FeasibleCount   int
	TotalNetProfit  decimal.Decimal
	MaxSingleProfit decimal.Decimal
}

// BacktestResult is the outcome of one task: its status, the feasible
// opportunities in timeline order, and aggregate stats. Failed and cancelled
// results carry no opportunities.
type BacktestResult struct {
	Task          Task
	Status        TaskStatus
	Opportunities []ArbitrageOpportunity
	Stats         BacktestStats
	Warnings      []string
	Err           error
}
