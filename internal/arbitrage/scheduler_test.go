package arbitrage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbtest/internal/model"
	"arbtest/internal/stream"
)

// stubSource serves in-memory streams keyed by exchange/symbol. Each Open
// returns a fresh stream so tasks and reruns never share cursors.
type stubSource struct {
	streams map[string][]model.TradeRecord
}

func (s *stubSource) Open(ctx context.Context, exchange, symbol string) (stream.TradeStream, error) {
	records, ok := s.streams[exchange+"/"+symbol]
	if !ok {
		return nil, &model.ConfigurationError{Detail: "no trade data for " + exchange + " " + symbol}
	}
	return stream.NewSliceStream(records), nil
}

// stubSchedules resolves schedules by exchange name only.
type stubSchedules map[string]model.FeeSchedule

func (s stubSchedules) ScheduleFor(ctx context.Context, exchange, asset string) (model.FeeSchedule, error) {
	fs, ok := s[exchange]
	if !ok {
		return model.FeeSchedule{}, &model.ConfigurationError{Detail: "no fee configuration for exchange " + exchange}
	}
	return fs, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func symbolRecords(exchange string, basePrice string, count int) []model.TradeRecord {
	price := decimal.RequireFromString(basePrice)
	records := make([]model.TradeRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, model.TradeRecord{
			Exchange:  exchange,
			Timestamp: time.UnixMilli(int64(i) * 1000).UTC(),
			Price:     price,
			Volume:    decimal.NewFromInt(1),
		})
	}
	return records
}

func newTestScheduler(source stream.Source, schedules ScheduleSource) *Scheduler {
	logger := testLogger()
	calc := NewCalculator(decimal.NewFromInt(1))
	worker := NewWorker(logger, source, calc, time.Hour)
	return NewScheduler(logger, worker, schedules, 4)
}

func TestScheduler_Run(t *testing.T) {
	schedules := stubSchedules{
		"kraken":  sched("kraken", 0.001, 6, 0, 0, 0.0001, 0),
		"binance": sched("binance", 0.001, 6, 0, 0, 0.0001, 0),
	}

	t.Run("aggregates deterministically regardless of completion order", func(t *testing.T) {
		source := &stubSource{streams: map[string][]model.TradeRecord{
			"kraken/BTC/EUR":  symbolRecords("kraken", "100", 50),
			"binance/BTC/EUR": symbolRecords("binance", "102", 50),
			"kraken/ETH/EUR":  symbolRecords("kraken", "10", 50),
			"binance/ETH/EUR": symbolRecords("binance", "10.4", 50),
		}}
		// Tasks deliberately out of sort order.
		tasks := []model.Task{
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "ETH/EUR"},
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "BTC/EUR"},
		}

		s := newTestScheduler(source, schedules)
		first := s.Run(context.Background(), tasks)
		second := s.Run(context.Background(), tasks)

		require.Len(t, first, 2)
		assert.Equal(t, "BTC/EUR", first[0].Task.Symbol)
		assert.Equal(t, "ETH/EUR", first[1].Task.Symbol)
		assert.Equal(t, first, second)

		for _, r := range first {
			assert.Equal(t, model.StatusSucceeded, r.Status)
			assert.Greater(t, r.Stats.FeasibleCount, 0)
			assert.True(t, r.Stats.TotalNetProfit.Sign() > 0)
		}
	})

	t.Run("a timestamp regression fails only its own task", func(t *testing.T) {
		bad := symbolRecords("kraken", "100", 3)
		bad[2].Timestamp = time.UnixMilli(500).UTC()
		source := &stubSource{streams: map[string][]model.TradeRecord{
			"kraken/BTC/EUR":  bad,
			"binance/BTC/EUR": symbolRecords("binance", "102", 3),
			"kraken/ETH/EUR":  symbolRecords("kraken", "10", 3),
			"binance/ETH/EUR": symbolRecords("binance", "10.4", 3),
		}}
		tasks := []model.Task{
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "BTC/EUR"},
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "ETH/EUR"},
		}

		results := newTestScheduler(source, schedules).Run(context.Background(), tasks)
		require.Len(t, results, 2)

		byKey := map[string]model.BacktestResult{}
		for _, r := range results {
			byKey[r.Task.Symbol] = r
		}
		require.Equal(t, model.StatusFailed, byKey["BTC/EUR"].Status)
		assert.True(t, model.IsDataDefect(byKey["BTC/EUR"].Err))
		assert.Empty(t, byKey["BTC/EUR"].Opportunities)
		assert.Equal(t, model.StatusSucceeded, byKey["ETH/EUR"].Status)
	})

	t.Run("a missing fee schedule fails only dependent tasks", func(t *testing.T) {
		source := &stubSource{streams: map[string][]model.TradeRecord{
			"kraken/BTC/EUR":  symbolRecords("kraken", "100", 3),
			"binance/BTC/EUR": symbolRecords("binance", "102", 3),
		}}
		tasks := []model.Task{
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "BTC/EUR"},
			{ExchangeA: "kraken", ExchangeB: "bitstamp", Symbol: "BTC/EUR"},
		}

		results := newTestScheduler(source, schedules).Run(context.Background(), tasks)
		require.Len(t, results, 2)

		var failed, succeeded int
		for _, r := range results {
			switch r.Status {
			case model.StatusFailed:
				failed++
				assert.True(t, model.IsConfiguration(r.Err))
			case model.StatusSucceeded:
				succeeded++
			}
		}
		assert.Equal(t, 1, failed)
		assert.Equal(t, 1, succeeded)
	})

	t.Run("cancellation marks tasks cancelled without partial output", func(t *testing.T) {
		source := &stubSource{streams: map[string][]model.TradeRecord{
			"kraken/BTC/EUR":  symbolRecords("kraken", "100", 1000),
			"binance/BTC/EUR": symbolRecords("binance", "102", 1000),
		}}
		tasks := []model.Task{
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "BTC/EUR"},
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := newTestScheduler(source, schedules).Run(ctx, tasks)
		require.Len(t, results, 1)
		assert.Equal(t, model.StatusCancelled, results[0].Status)
		assert.Empty(t, results[0].Opportunities)
	})

	t.Run("every requested task appears exactly once", func(t *testing.T) {
		source := &stubSource{streams: map[string][]model.TradeRecord{}}
		tasks := []model.Task{
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "BTC/EUR"},
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "ETH/EUR"},
			{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "LTC/EUR"},
		}

		results := newTestScheduler(source, schedules).Run(context.Background(), tasks)
		require.Len(t, results, len(tasks))
		seen := map[string]bool{}
		for _, r := range results {
			seen[r.Task.String()] = true
			assert.Equal(t, model.StatusFailed, r.Status, "no data configured, so tasks fail explicitly")
		}
		assert.Len(t, seen, len(tasks))
	})
}
