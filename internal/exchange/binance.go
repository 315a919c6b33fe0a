package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbtest/internal/model"
)

const (
	binanceWSURL  = "wss://stream.binance.com:9443/ws"
	binanceAPIURL = "https://api.binance.com/api/v3/exchangeInfo"
)

// Binance charges a flat spot taker fee at the base VIP tier; the fee
// endpoint requires an authenticated account, so the published rate is used.
var binanceTakerFeeRate = decimal.New(1, -3)

var binanceWithdrawalFees = map[string]string{
	"BTC": "0.0002",
	"ETH": "0.0012",
	"LTC": "0.001",
	"XRP": "0.2",
}

// BinanceClient implements the Client interface for Binance.
type BinanceClient struct {
	logger *slog.Logger
	http   *http.Client
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *slog.Logger) *BinanceClient {
	return &BinanceClient{
		logger: logger,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BinanceClient) Name() string {
	return "binance"
}

type binanceSymbolInfo struct {
	QuotePrecision int32 `json:"quotePrecision"`
	Filters        []struct {
		FilterType string          `json:"filterType"`
		MinQty     decimal.Decimal `json:"minQty"`
		MaxQty     decimal.Decimal `json:"maxQty"`
	} `json:"filters"`
}

type binanceExchangeInfo struct {
	Symbols []binanceSymbolInfo `json:"symbols"`
}

func (b *BinanceClient) symbolInfo(ctx context.Context, asset string) (binanceSymbolInfo, error) {
	url := binanceAPIURL + "?symbol=" + asset + "EUR"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return binanceSymbolInfo{}, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return binanceSymbolInfo{}, fmt.Errorf("binance exchange info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return binanceSymbolInfo{}, fmt.Errorf("binance exchange info: status %d", resp.StatusCode)
	}

	var decoded binanceExchangeInfo
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return binanceSymbolInfo{}, fmt.Errorf("binance exchange info response: %w", err)
	}
	if len(decoded.Symbols) == 0 {
		return binanceSymbolInfo{}, fmt.Errorf("binance has no symbol for asset %s", asset)
	}
	return decoded.Symbols[0], nil
}

func (b *BinanceClient) FetchFeeRate(ctx context.Context, asset string) (decimal.Decimal, error) {
	return binanceTakerFeeRate, nil
}

func (b *BinanceClient) FetchPrecision(ctx context.Context, asset string) (int32, error) {
	info, err := b.symbolInfo(ctx, asset)
	if err != nil {
		return 0, err
	}
	return info.QuotePrecision, nil
}

// FetchLimits returns the LOT_SIZE filter bounds.
func (b *BinanceClient) FetchLimits(ctx context.Context, asset string) (decimal.Decimal, decimal.Decimal, error) {
	info, err := b.symbolInfo(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	for _, f := range info.Filters {
		if f.FilterType == "LOT_SIZE" {
			return f.MinQty, f.MaxQty, nil
		}
	}
	return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("binance LOT_SIZE filter missing for %s", asset)
}

func (b *BinanceClient) FetchWithdrawalFee(ctx context.Context, asset string) (decimal.Decimal, decimal.Decimal, error) {
	fixed, ok := binanceWithdrawalFees[asset]
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("no known binance withdrawal fee for %s", asset)
	}
	d, err := decimal.NewFromString(fixed)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return d, decimal.Decimal{}, nil
}

type binanceTradeEvent struct {
	EventType string          `json:"e"`
	TradeTime int64           `json:"T"`
	Price     decimal.Decimal `json:"p"`
	Quantity  decimal.Decimal `json:"q"`
}

// StreamTrades connects to the Binance WebSocket API and forwards public
// trades for symbol until the context is cancelled.
func (b *BinanceClient) StreamTrades(ctx context.Context, tradeChan chan<- model.TradeRecord, symbol string) error {
	streamName := strings.ToLower(strings.ReplaceAll(symbol, "/", "")) + "@trade"
	wsURL := binanceWSURL + "/" + streamName
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("BinanceClient: context cancelled, shutting down")
			return nil
		default:
			b.logger.Info("BinanceClient: connecting to WebSocket", "url", wsURL, "backoff", backoff)
			c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				b.logger.Error("BinanceClient: WebSocket connection failed", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoff):
					backoff *= 2
					if backoff > 16*time.Second {
						backoff = 16 * time.Second
					}
				}
				continue
			}

			// Reset backoff on successful connection
			backoff = time.Second
			b.logger.Info("BinanceClient: subscribed to trades", "stream", streamName)

			if err := b.readTrades(ctx, c, tradeChan, symbol); err != nil {
				b.logger.Error("BinanceClient: stream interrupted", "error", err)
				c.Close()
				continue
			}
			c.Close()
			return nil
		}
	}
}

func (b *BinanceClient) readTrades(ctx context.Context, c *websocket.Conn, tradeChan chan<- model.TradeRecord, symbol string) error {
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("BinanceClient: context cancelled, closing connection")
			return nil
		default:
			_, message, err := c.ReadMessage()
			if err != nil {
				return err
			}

			var event binanceTradeEvent
			if err := json.Unmarshal(message, &event); err != nil {
				b.logger.Warn("BinanceClient: failed to parse message", "error", err)
				continue
			}
			if event.EventType != "trade" {
				continue
			}

			rec := model.TradeRecord{
				Exchange:  "binance",
				Symbol:    symbol,
				Timestamp: time.UnixMilli(event.TradeTime).UTC(),
				Price:     event.Price,
				Volume:    event.Quantity,
			}
			select {
			case tradeChan <- rec:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
