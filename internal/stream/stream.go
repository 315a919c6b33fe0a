package stream

import (
	"context"
	"errors"

	"arbtest/internal/model"
)

// ErrEndOfStream is returned by Next once a stream is exhausted.
var ErrEndOfStream = errors.New("end of stream")

// TradeStream is an ordered, finite sequence of trade records for one
// (exchange, symbol). Streams are read once; restart by reopening from the
// Source.
type TradeStream interface {
	Next(ctx context.Context) (model.TradeRecord, error)
}

// Source opens trade streams for backtest tasks. Implementations own the
// underlying storage format; the core only sees the stream.
type Source interface {
	Open(ctx context.Context, exchange, symbol string) (TradeStream, error)
}

// SliceStream serves records from an in-memory slice. It backs the CSV
// source and is handy in tests.
type SliceStream struct {
	records []model.TradeRecord
	pos     int
}

// NewSliceStream wraps records in a TradeStream. The slice is not copied;
// callers must not mutate it afterwards.
func NewSliceStream(records []model.TradeRecord) *SliceStream {
	return &SliceStream{records: records}
}

func (s *SliceStream) Next(ctx context.Context) (model.TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.TradeRecord{}, err
	}
	if s.pos >= len(s.records) {
		return model.TradeRecord{}, ErrEndOfStream
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
