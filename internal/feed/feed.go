// Package feed supplies candle series to the event loop: a DuckDB-backed
// historical feed for simulation and a websocket feed for live trading.
package feed

import (
	"time"

	"github.com/rxtech-lab/tradeloop/internal/types"
)

// Subscription names one candle series a feed serves.
type Subscription struct {
	Asset     types.Asset
	Timeframe types.Timeframe
}

// Key returns the canonical series key.
func (s Subscription) Key() string {
	return s.Asset.Key(s.Timeframe)
}

// Feed hands out candle series lazily. Candles arrive in ascending
// timestamp order per subscription.
type Feed interface {
	// Subscriptions lists the series this feed serves.
	Subscriptions() []Subscription

	// Candles returns a lazy iterator over the series. Iteration stops on
	// the first yielded error.
	Candles(sub Subscription) func(yield func(types.Candle, error) bool)

	// History returns up to count candles strictly before the cutoff, in
	// ascending order, for indicator warmup.
	History(sub Subscription, before time.Time, count int) ([]types.Candle, error)

	// Count reports the number of candles available for the series.
	Count(sub Subscription) (int, error)

	// Close releases underlying resources.
	Close() error
}
