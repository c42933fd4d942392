package engine

import (
	"time"

	"github.com/rxtech-lab/tradeloop/internal/broker"
	"github.com/rxtech-lab/tradeloop/internal/clock"
	"github.com/rxtech-lab/tradeloop/internal/indicator"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// Context is the read-only view a strategy gets during a callback. The
// only mutation it allows is emitting signals; sizing, order creation
// and routing stay inside the engine.
type Context struct {
	strategyName string
	clk          clock.Clock
	indicators   *indicator.Manager
	brokers      *broker.Manager
	queue        *eventQueue

	// currentBar is the open time of the bar being processed. Emitted
	// signals default their root candle timestamp to it.
	currentBar time.Time
}

// CurrentTime returns the engine clock's notion of now.
func (c *Context) CurrentTime() time.Time {
	return c.clk.CurrentTime()
}

// Indicators exposes the indicator graph for reads and lazy node creation.
func (c *Context) Indicators() *indicator.Manager {
	return c.indicators
}

// CurrentPrice returns the last marked price for the asset on its venue.
func (c *Context) CurrentPrice(asset types.Asset) (float64, bool) {
	b, err := c.brokers.Broker(asset.Exchange)
	if err != nil {
		return 0, false
	}

	return b.CurrentPrice(asset)
}

// HasOpenedPosition reports whether the venue's portfolio holds an open
// leg for the asset.
func (c *Context) HasOpenedPosition(asset types.Asset, direction types.Direction) bool {
	b, err := c.brokers.Broker(asset.Exchange)
	if err != nil {
		return false
	}

	return b.HasOpenedPosition(asset, direction)
}

// Position returns a copy of the open leg, if any.
func (c *Context) Position(asset types.Asset, direction types.Direction) (types.Position, bool) {
	b, err := c.brokers.Broker(asset.Exchange)
	if err != nil {
		return types.Position{}, false
	}

	pos, ok := b.Portfolio().Position(asset, direction)
	if !ok {
		return types.Position{}, false
	}

	return *pos, true
}

// PendingOrders returns the venue's resting order book.
func (c *Context) PendingOrders(exchange string) []types.Order {
	b, err := c.brokers.Broker(exchange)
	if err != nil {
		return nil
	}

	return b.PendingOrders()
}

// Cash returns the venue portfolio's free cash.
func (c *Context) Cash(exchange string) (float64, bool) {
	b, err := c.brokers.Broker(exchange)
	if err != nil {
		return 0, false
	}

	return b.Portfolio().CashFloat(), true
}

// EmitSignal queues a trade intent for processing after the current bar
// batch. The strategy name and generation time are stamped here; the
// root candle timestamp defaults to the bar being processed.
func (c *Context) EmitSignal(sig types.Signal) {
	sig.Strategy = c.strategyName
	sig.GenerationTime = c.clk.CurrentTime()

	if sig.RootCandleTimestamp.IsZero() {
		sig.RootCandleTimestamp = c.currentBar
	}

	c.queue.push(Event{
		Kind:      EventSignal,
		Timestamp: sig.GenerationTime,
		Signal:    sig,
	})
}
