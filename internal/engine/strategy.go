package engine

import (
	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// Strategy is the trading logic the engine drives. Implementations keep
// their own state; the engine never inspects it.
type Strategy interface {
	// Name identifies the strategy in logs, orders and portfolio events.
	Name() string

	// EngineVersion returns the engine API version the strategy was
	// written against, checked at registration.
	EngineVersion() string

	// Initialize receives the raw config document before the first bar.
	Initialize(config string) error

	// Subscriptions lists the candle series the strategy wants callbacks
	// for. Series absent from the feed are ignored.
	Subscriptions() []feed.Subscription

	// OnCandle is invoked once per bar of a subscribed series, after
	// prices are marked, resting orders evaluated, and indicators updated.
	OnCandle(ctx *Context, candle types.Candle, tf types.Timeframe) error
}
