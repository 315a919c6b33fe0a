package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"arbtest/internal/model"
)

// CSVTrade is the on-disk row layout: epoch-millisecond timestamp, price and
// volume as decimal strings. Shared with the recorder, which appends rows in
// this shape.
type CSVTrade struct {
	Timestamp int64           `csv:"timestamp"`
	Price     decimal.Decimal `csv:"price"`
	Volume    decimal.Decimal `csv:"volume"`
}

// CSVSource reads trade streams from a directory of per-(symbol, exchange)
// CSV files named BASE_QUOTE_exchange.csv, e.g. BTC_EUR_kraken.csv.
type CSVSource struct {
	Dir string
}

// NewCSVSource creates a source rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Filename returns the data file name for one (exchange, symbol).
func Filename(exchange, symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_") + "_" + exchange + ".csv"
}

// Open loads the file for (exchange, symbol) and returns a stream over its
// records. A missing file is a configuration error; a row that fails the
// data-model constraints is a data defect.
func (s *CSVSource) Open(ctx context.Context, exchange, symbol string) (TradeStream, error) {
	path := filepath.Join(s.Dir, Filename(exchange, symbol))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &model.ConfigurationError{Detail: "no trade data for " + exchange + " " + symbol + " at " + path}
		}
		return nil, fmt.Errorf("open trade data %s: %w", path, err)
	}
	defer f.Close()

	var rows []*CSVTrade
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, &model.DataDefectError{Exchange: exchange, Symbol: symbol, Detail: "malformed csv: " + err.Error()}
	}

	records := make([]model.TradeRecord, 0, len(rows))
	for i, row := range rows {
		if row.Price.Sign() <= 0 {
			return nil, &model.DataDefectError{Exchange: exchange, Symbol: symbol, Detail: fmt.Sprintf("row %d: non-positive price %s", i+1, row.Price)}
		}
		if row.Volume.Sign() < 0 {
			return nil, &model.DataDefectError{Exchange: exchange, Symbol: symbol, Detail: fmt.Sprintf("row %d: negative volume %s", i+1, row.Volume)}
		}
		records = append(records, model.TradeRecord{
			Exchange:  exchange,
			Symbol:    symbol,
			Timestamp: time.UnixMilli(row.Timestamp).UTC(),
			Price:     row.Price,
			Volume:    row.Volume,
		})
	}

	return NewSliceStream(records), nil
}
