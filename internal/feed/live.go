package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// DefaultStreamURL is the Binance combined-stream websocket endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

const (
	reconnectBackoff    = 5 * time.Second
	maxReconnectBackoff = time.Minute
)

// CandleHandler receives each closed bar from the stream.
type CandleHandler func(sub Subscription, candle types.Candle)

// LiveFeed streams closed klines over a websocket. Only finished bars are
// forwarded; partial updates of the forming bar are dropped so downstream
// consumers see the same bar exactly once.
type LiveFeed struct {
	url  string
	subs []Subscription
	log  *logger.Logger
}

// NewLiveFeed creates a websocket feed for the given subscriptions.
// An empty url falls back to DefaultStreamURL.
func NewLiveFeed(url string, subs []Subscription, log *logger.Logger) *LiveFeed {
	if url == "" {
		url = DefaultStreamURL
	}

	return &LiveFeed{url: url, subs: subs, log: log}
}

// Subscriptions implements Feed.
func (f *LiveFeed) Subscriptions() []Subscription {
	out := make([]Subscription, len(f.subs))
	copy(out, f.subs)

	return out
}

// Candles is not supported for live feeds; consume via Run instead.
func (f *LiveFeed) Candles(sub Subscription) func(yield func(types.Candle, error) bool) {
	return func(yield func(types.Candle, error) bool) {
		yield(types.Candle{}, errors.New(errors.ErrCodeFeedExhausted,
			"live feed has no replayable series, use Run"))
	}
}

// History is not available over the stream.
func (f *LiveFeed) History(sub Subscription, before time.Time, count int) ([]types.Candle, error) {
	return nil, errors.New(errors.ErrCodeInsufficientHistory,
		"live feed carries no history, warm up from a historical feed")
}

// Count implements Feed.
func (f *LiveFeed) Count(sub Subscription) (int, error) { return 0, nil }

// Close implements Feed. Run owns the connection, so nothing to release.
func (f *LiveFeed) Close() error { return nil }

// streamName is the Binance stream identifier for a subscription,
// e.g. btcusdt@kline_1m.
func streamName(sub Subscription) string {
	return fmt.Sprintf("%s@kline_%s", strings.ToLower(sub.Asset.Symbol), sub.Timeframe)
}

// combinedStreamEnvelope is the outer message of a combined stream.
type combinedStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent is the kline payload of the Binance stream.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// Run connects and pumps closed bars to handler until ctx is cancelled.
// Connection drops are transient: Run backs off and reconnects.
func (f *LiveFeed) Run(ctx context.Context, handler CandleHandler) error {
	backoff := reconnectBackoff

	for {
		err := f.pump(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}

		f.log.Warn("stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

func (f *LiveFeed) pump(ctx context.Context, handler CandleHandler) error {
	streams := make([]string, 0, len(f.subs))
	bySymbol := make(map[string]Subscription, len(f.subs))

	for _, sub := range f.subs {
		streams = append(streams, streamName(sub))
		bySymbol[strings.ToUpper(sub.Asset.Symbol)+"|"+string(sub.Timeframe)] = sub
	}

	url := f.url + "?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransientVenue, "websocket dial failed", err)
	}
	defer conn.Close()

	f.log.Info("stream connected", zap.Int("subscriptions", len(f.subs)))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(errors.ErrCodeTransientVenue, "websocket read failed", err)
		}

		var envelope combinedStreamEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			f.log.Warn("dropping malformed stream message", zap.Error(err))

			continue
		}

		var event klineEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil || event.EventType != "kline" {
			continue
		}

		if !event.Kline.Closed {
			continue
		}

		sub, ok := bySymbol[event.Symbol+"|"+event.Kline.Interval]
		if !ok {
			continue
		}

		candle, err := f.parseCandle(sub, event)
		if err != nil {
			f.log.Warn("dropping unparseable kline",
				zap.String("symbol", event.Symbol),
				zap.Error(err),
			)

			continue
		}

		handler(sub, candle)
	}
}

func (f *LiveFeed) parseCandle(sub Subscription, event klineEvent) (types.Candle, error) {
	open, err := strconv.ParseFloat(event.Kline.Open, 64)
	if err != nil {
		return types.Candle{}, err
	}

	high, err := strconv.ParseFloat(event.Kline.High, 64)
	if err != nil {
		return types.Candle{}, err
	}

	low, err := strconv.ParseFloat(event.Kline.Low, 64)
	if err != nil {
		return types.Candle{}, err
	}

	close, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil {
		return types.Candle{}, err
	}

	volume, err := strconv.ParseFloat(event.Kline.Volume, 64)
	if err != nil {
		return types.Candle{}, err
	}

	candle := types.Candle{
		Asset:     sub.Asset,
		Timestamp: time.UnixMilli(event.Kline.StartTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}

	if err := candle.Validate(); err != nil {
		return types.Candle{}, err
	}

	return candle, nil
}
