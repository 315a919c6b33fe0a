package arbitrage

import (
	"time"

	"github.com/shopspring/decimal"

	"arbtest/internal/model"
)

// Calculator evaluates aligned events for profitable round trips. All
// arithmetic is decimal; the same rounding rules apply to every event so
// results are reproducible across runs.
type Calculator struct {
	tradeVolume decimal.Decimal
}

// NewCalculator creates a calculator that sizes every simulated trade at
// tradeVolume base units, subject to each exchange's order limits.
func NewCalculator(tradeVolume decimal.Decimal) *Calculator {
	return &Calculator{tradeVolume: tradeVolume}
}

// Evaluate computes both directions (buy on A sell on B, buy on B sell on A)
// for one event. Infeasible candidates are returned with a reason so the
// decision is auditable; callers decide what to retain.
func (c *Calculator) Evaluate(ev model.AlignedEvent, schedA, schedB model.FeeSchedule) [2]model.ArbitrageOpportunity {
	return [2]model.ArbitrageOpportunity{
		c.direction(ev.Timestamp, schedA, schedB, ev.PriceA, ev.PriceB),
		c.direction(ev.Timestamp, schedB, schedA, ev.PriceB, ev.PriceA),
	}
}

var one = decimal.NewFromInt(1)

func (c *Calculator) direction(ts time.Time, buy, sell model.FeeSchedule, rawBuyPrice, rawSellPrice decimal.Decimal) model.ArbitrageOpportunity {
	buyPrice := RoundSignificant(rawBuyPrice, buy.PricePrecisionDigits)
	sellPrice := RoundSignificant(rawSellPrice, sell.PricePrecisionDigits)

	op := model.ArbitrageOpportunity{
		Timestamp:    ts,
		BuyExchange:  buy.Exchange,
		SellExchange: sell.Exchange,
		BuyPrice:     buyPrice,
		SellPrice:    sellPrice,
	}

	if buyPrice.IsZero() || sellPrice.IsZero() {
		op.InfeasibilityReason = model.ReasonPriceRoundsToZero
		return op
	}

	volume := c.tradeVolume
	if buy.MaxOrderVolume.Sign() > 0 && volume.GreaterThan(buy.MaxOrderVolume) {
		volume = buy.MaxOrderVolume
	}
	if sell.MaxOrderVolume.Sign() > 0 && volume.GreaterThan(sell.MaxOrderVolume) {
		volume = sell.MaxOrderVolume
	}
	op.Volume = volume

	if volume.LessThan(buy.MinOrderVolume) || volume.LessThan(sell.MinOrderVolume) {
		op.InfeasibilityReason = model.ReasonBelowMinOrderSize
		return op
	}

	buyNotional := buyPrice.Mul(volume)
	sellNotional := sellPrice.Mul(volume)

	op.BuyCost = buyNotional.Mul(one.Add(buy.TakerFeeRate))
	op.SellRevenue = sellNotional.Mul(one.Sub(sell.TakerFeeRate))
	op.TradingFees = buyNotional.Mul(buy.TakerFeeRate).Add(sellNotional.Mul(sell.TakerFeeRate))

	// The withdrawal fee is charged once, by the buy exchange, for moving
	// the purchased asset to the sell exchange.
	op.WithdrawalFee = buy.WithdrawalFeeFixed.Add(buy.WithdrawalFeePercent.Mul(volume))

	op.GrossSpread = sellPrice.Sub(buyPrice).Mul(volume)
	op.NetProfit = op.SellRevenue.Sub(op.BuyCost).Sub(op.WithdrawalFee)
	op.Feasible = op.NetProfit.Sign() > 0
	return op
}

// RoundSignificant rounds d to the given number of significant digits, ties
// away from zero (half-up for the positive prices this system handles).
// digits <= 0 leaves d unchanged.
func RoundSignificant(d decimal.Decimal, digits int32) decimal.Decimal {
	if digits <= 0 || d.IsZero() {
		return d
	}
	ten := decimal.New(1, 1)
	v := d.Abs()
	var mag int32
	for v.GreaterThanOrEqual(ten) {
		v = v.Shift(-1)
		mag++
	}
	for v.LessThan(one) {
		v = v.Shift(1)
		mag--
	}
	return d.Round(digits - 1 - mag)
}
