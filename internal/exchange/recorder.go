package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"arbtest/internal/model"
	"arbtest/internal/stream"
)

// Recorder captures an exchange's live trade feed into the CSV layout that
// the backtest stream source reads. It is a thin collaborator at the data
// collection boundary, not part of the backtest core.
type Recorder struct {
	logger *slog.Logger
	dir    string
}

// NewRecorder writes data files under dir.
func NewRecorder(logger *slog.Logger, dir string) *Recorder {
	return &Recorder{logger: logger, dir: dir}
}

// Record appends trades for symbol to the exchange's data file until the
// context is cancelled. A fresh file gets a header row; an existing file is
// appended to as-is.
func (r *Recorder) Record(ctx context.Context, client Client, symbol string) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(r.dir, stream.Filename(client.Name(), symbol))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open data file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	writeHeader := info.Size() == 0

	r.logger.Info("recording trades", "exchange", client.Name(), "symbol", symbol, "file", path)

	trades := make(chan model.TradeRecord, 256)
	rows := make(chan interface{})
	streamErr := make(chan error, 1)

	go func() {
		streamErr <- client.StreamTrades(ctx, trades, symbol)
		close(trades)
	}()
	go func() {
		defer close(rows)
		for rec := range trades {
			rows <- stream.CSVTrade{
				Timestamp: rec.Timestamp.UnixMilli(),
				Price:     rec.Price,
				Volume:    rec.Volume,
			}
		}
	}()

	writer := gocsv.NewSafeCSVWriter(csv.NewWriter(f))
	var marshalErr error
	if writeHeader {
		marshalErr = gocsv.MarshalChan(rows, writer)
	} else {
		marshalErr = gocsv.MarshalChanWithoutHeaders(rows, writer)
	}

	if err := <-streamErr; err != nil {
		return fmt.Errorf("trade stream for %s %s: %w", client.Name(), symbol, err)
	}
	return marshalErr
}
