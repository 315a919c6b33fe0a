package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbtest/internal/model"
)

const (
	krakenWSURL  = "wss://ws.kraken.com"
	krakenAPIURL = "https://api.kraken.com/0/public/AssetPairs"
)

// krakenAssets maps common asset codes to Kraken's legacy codes.
var krakenAssets = map[string]string{
	"BTC": "XBT",
}

// Withdrawal fees are not exposed by Kraken's public API; these are the
// published flat fees for the majors.
var krakenWithdrawalFees = map[string]string{
	"BTC": "0.00015",
	"ETH": "0.0035",
	"LTC": "0.002",
	"XRP": "0.02",
}

// KrakenClient implements the Client interface for Kraken.
type KrakenClient struct {
	logger *slog.Logger
	http   *http.Client
}

// NewKrakenClient creates a new KrakenClient.
func NewKrakenClient(logger *slog.Logger) *KrakenClient {
	return &KrakenClient{
		logger: logger,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (k *KrakenClient) Name() string {
	return "kraken"
}

type krakenPairInfo struct {
	PairDecimals int32               `json:"pair_decimals"`
	OrderMin     decimal.Decimal     `json:"ordermin"`
	Fees         [][]decimal.Decimal `json:"fees"`
}

type krakenPairResponse struct {
	Error  []string                  `json:"error"`
	Result map[string]krakenPairInfo `json:"result"`
}

// pairInfo fetches the AssetPairs metadata for asset quoted in EUR.
func (k *KrakenClient) pairInfo(ctx context.Context, asset string) (krakenPairInfo, error) {
	code := asset
	if mapped, ok := krakenAssets[asset]; ok {
		code = mapped
	}
	url := krakenAPIURL + "?pair=" + code + "EUR"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return krakenPairInfo{}, err
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return krakenPairInfo{}, fmt.Errorf("kraken asset pairs request: %w", err)
	}
	defer resp.Body.Close()

	var decoded krakenPairResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return krakenPairInfo{}, fmt.Errorf("kraken asset pairs response: %w", err)
	}
	if len(decoded.Error) > 0 {
		return krakenPairInfo{}, fmt.Errorf("kraken asset pairs: %s", strings.Join(decoded.Error, "; "))
	}
	for _, info := range decoded.Result {
		return info, nil
	}
	return krakenPairInfo{}, fmt.Errorf("kraken has no pair for asset %s", asset)
}

// FetchFeeRate returns the base-tier taker fee as a rate in [0,1).
func (k *KrakenClient) FetchFeeRate(ctx context.Context, asset string) (decimal.Decimal, error) {
	info, err := k.pairInfo(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(info.Fees) == 0 || len(info.Fees[0]) < 2 {
		return decimal.Decimal{}, fmt.Errorf("kraken fee schedule missing for %s", asset)
	}
	return info.Fees[0][1].Shift(-2), nil
}

func (k *KrakenClient) FetchPrecision(ctx context.Context, asset string) (int32, error) {
	info, err := k.pairInfo(ctx, asset)
	if err != nil {
		return 0, err
	}
	return info.PairDecimals, nil
}

// FetchLimits returns the minimum order volume; Kraken publishes no maximum,
// reported here as zero (unbounded).
func (k *KrakenClient) FetchLimits(ctx context.Context, asset string) (decimal.Decimal, decimal.Decimal, error) {
	info, err := k.pairInfo(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return info.OrderMin, decimal.Decimal{}, nil
}

func (k *KrakenClient) FetchWithdrawalFee(ctx context.Context, asset string) (decimal.Decimal, decimal.Decimal, error) {
	fixed, ok := krakenWithdrawalFees[asset]
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("no known kraken withdrawal fee for %s", asset)
	}
	d, err := decimal.NewFromString(fixed)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return d, decimal.Decimal{}, nil
}

// wsPair converts BASE/QUOTE to Kraken's websocket pair name.
func wsPair(symbol string) string {
	base, quote, _ := strings.Cut(symbol, "/")
	if mapped, ok := krakenAssets[base]; ok {
		base = mapped
	}
	return base + "/" + quote
}

// StreamTrades connects to the Kraken WebSocket API and forwards public
// trades for symbol until the context is cancelled.
func (k *KrakenClient) StreamTrades(ctx context.Context, tradeChan chan<- model.TradeRecord, symbol string) error {
	pair := wsPair(symbol)
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("KrakenClient: context cancelled, shutting down")
			return nil
		default:
			k.logger.Info("KrakenClient: connecting to WebSocket", "url", krakenWSURL, "backoff", backoff)
			c, _, err := websocket.DefaultDialer.Dial(krakenWSURL, nil)
			if err != nil {
				k.logger.Error("KrakenClient: WebSocket connection failed", "error", err)
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

			subscription := map[string]interface{}{
				"event": "subscribe",
				"pair":  []string{pair},
				"subscription": map[string]string{
					"name": "trade",
				},
			}
			if err := c.WriteJSON(subscription); err != nil {
				k.logger.Error("KrakenClient: failed to send subscription", "error", err)
				c.Close()
				continue
			}
			k.logger.Info("KrakenClient: subscribed to trades", "pair", pair)

			if err := k.readTrades(ctx, c, tradeChan, symbol); err != nil {
				k.logger.Error("KrakenClient: stream interrupted", "error", err)
				c.Close()
				continue
			}
			c.Close()
			return nil
		}
	}
}

// readTrades consumes one websocket session. Returns nil on context
// cancellation, an error when the connection drops and a reconnect is
// needed.
func (k *KrakenClient) readTrades(ctx context.Context, c *websocket.Conn, tradeChan chan<- model.TradeRecord, symbol string) error {
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("KrakenClient: context cancelled, closing connection")
			return nil
		default:
			_, message, err := c.ReadMessage()
			if err != nil {
				return err
			}

			// Event messages (subscription status, heartbeats) are JSON
			// objects; trade payloads are arrays.
			var parts []json.RawMessage
			if err := json.Unmarshal(message, &parts); err != nil || len(parts) < 4 {
				continue
			}

			var channel string
			if err := json.Unmarshal(parts[2], &channel); err != nil || channel != "trade" {
				continue
			}

			var trades [][]string
			if err := json.Unmarshal(parts[1], &trades); err != nil {
				k.logger.Warn("KrakenClient: failed to parse trade payload", "error", err)
				continue
			}

			for _, t := range trades {
				if len(t) < 3 {
					continue
				}
				price, err := decimal.NewFromString(t[0])
				if err != nil {
					k.logger.Warn("KrakenClient: failed to parse trade price", "error", err)
					continue
				}
				volume, err := decimal.NewFromString(t[1])
				if err != nil {
					k.logger.Warn("KrakenClient: failed to parse trade volume", "error", err)
					continue
				}
				seconds, err := strconv.ParseFloat(t[2], 64)
				if err != nil {
					k.logger.Warn("KrakenClient: failed to parse trade time", "error", err)
					continue
				}

				rec := model.TradeRecord{
					Exchange:  "kraken",
					Symbol:    symbol,
					Timestamp: time.UnixMilli(int64(seconds * 1000)).UTC(),
					Price:     price,
					Volume:    volume,
				}
				select {
				case tradeChan <- rec:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}
