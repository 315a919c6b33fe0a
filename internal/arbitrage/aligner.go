package arbitrage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"arbtest/internal/model"
	"arbtest/internal/stream"
)

// cursor tracks one side of the merge: the stream, a one-record lookahead,
// and the latest-known-price slot for its exchange.
type cursor struct {
	exchange string
	src      stream.TradeStream

	pending    model.TradeRecord
	hasPending bool
	exhausted  bool

	prevTS  time.Time
	hasPrev bool

	price     decimal.Decimal
	updatedAt time.Time
	hasPrice  bool
}

// fill loads the next record into the lookahead slot, enforcing stream
// monotonicity.
func (c *cursor) fill(ctx context.Context, symbol string) error {
	if c.hasPending || c.exhausted {
		return nil
	}
	rec, err := c.src.Next(ctx)
	if errors.Is(err, stream.ErrEndOfStream) {
		c.exhausted = true
		return nil
	}
	if err != nil {
		return err
	}
	if c.hasPrev && rec.Timestamp.Before(c.prevTS) {
		return model.NewTimestampRegression(c.exchange, symbol, c.prevTS, rec.Timestamp)
	}
	c.pending = rec
	c.hasPending = true
	return nil
}

// consume moves the lookahead record into the latest-price slot.
func (c *cursor) consume() time.Time {
	c.price = c.pending.Price
	c.updatedAt = c.pending.Timestamp
	c.hasPrice = true
	c.prevTS = c.pending.Timestamp
	c.hasPrev = true
	c.hasPending = false
	return c.updatedAt
}

// Aligner merges two trade streams for the same symbol into a single
// chronological sequence of AlignedEvents. It is a one-shot iterator;
// restart by reopening the streams and building a new Aligner.
type Aligner struct {
	symbol    string
	a, b      cursor
	staleness time.Duration
}

// NewAligner creates an aligner over streams a and b. staleness bounds how
// long a latest-known price may be carried forward before events stop being
// comparable across the gap.
func NewAligner(exchangeA, exchangeB, symbol string, a, b stream.TradeStream, staleness time.Duration) *Aligner {
	return &Aligner{
		symbol:    symbol,
		a:         cursor{exchange: exchangeA, src: a},
		b:         cursor{exchange: exchangeB, src: b},
		staleness: staleness,
	}
}

// Next returns the next aligned event. Events before both exchanges have
// produced at least one record are skipped, since no cross-exchange
// comparison is possible yet. Returns stream.ErrEndOfStream once both
// streams are exhausted.
func (al *Aligner) Next(ctx context.Context) (model.AlignedEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.AlignedEvent{}, err
		}
		if err := al.a.fill(ctx, al.symbol); err != nil {
			return model.AlignedEvent{}, err
		}
		if err := al.b.fill(ctx, al.symbol); err != nil {
			return model.AlignedEvent{}, err
		}

		var ts time.Time
		var source string
		tie := false
		switch {
		case !al.a.hasPending && !al.b.hasPending:
			return model.AlignedEvent{}, stream.ErrEndOfStream
		case al.a.hasPending && al.b.hasPending && al.a.pending.Timestamp.Equal(al.b.pending.Timestamp):
			// Exact tie: fold both records into one event so no spurious
			// intermediate state is emitted.
			ts = al.a.consume()
			al.b.consume()
			source = al.a.exchange + "," + al.b.exchange
			tie = true
		case !al.b.hasPending || (al.a.hasPending && al.a.pending.Timestamp.Before(al.b.pending.Timestamp)):
			ts = al.a.consume()
			source = al.a.exchange
		default:
			ts = al.b.consume()
			source = al.b.exchange
		}

		if !al.a.hasPrice || !al.b.hasPrice {
			continue
		}

		ev := model.AlignedEvent{
			Timestamp:      ts,
			SourceExchange: source,
			PriceA:         al.a.price,
			PriceB:         al.b.price,
		}
		if !tie {
			other := &al.b
			if source == al.b.exchange {
				other = &al.a
			}
			if al.staleness > 0 && ts.Sub(other.updatedAt) > al.staleness {
				ev.Stale = true
			}
		}
		return ev, nil
	}
}
