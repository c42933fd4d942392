// Package broker executes orders against a venue, simulated or live, and
// keeps the portfolio that venue is responsible for. One broker owns one
// portfolio; cross-venue concerns live in the Manager.
package broker

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/tradeloop/internal/portfolio"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// TransactionCallback is invoked once per confirmed fill, after the
// portfolio has been updated.
type TransactionCallback func(tx types.Transaction, order types.Order)

// Broker is the execution interface shared by the simulated and live
// variants.
type Broker interface {
	// Exchange returns the venue this broker trades on.
	Exchange() string

	// UpdatePrice marks the latest bar, advances trailing stops, expires
	// stale resting orders, and fills any resting order the bar triggers.
	UpdatePrice(candle types.Candle) error

	// ExecuteOrder dispatches the order per its type: market orders fill
	// immediately, everything else rests until triggered or expired.
	ExecuteOrder(order types.Order) error

	// CurrentPrice returns the last marked price for the asset.
	CurrentPrice(asset types.Asset) (float64, bool)

	// HasOpenedPosition reports whether the portfolio holds an open leg.
	HasOpenedPosition(asset types.Asset, direction types.Direction) bool

	// MaxEntryOrderSize returns the largest affordable entry size after
	// fees and lot truncation. When cash is None the broker uses its
	// portfolio's full cash balance.
	MaxEntryOrderSize(asset types.Asset, direction types.Direction, cash optional.Option[float64]) (float64, error)

	// Synchronize reconciles local state with venue truth. Simulated
	// brokers are their own truth and return immediately.
	Synchronize(ctx context.Context) error

	// CancelOrder removes a resting order by ID. Unknown IDs are not an
	// error; the order may have filled or expired already.
	CancelOrder(orderID string) error

	// PendingOrders returns the resting order book.
	PendingOrders() []types.Order

	// LotSize returns the venue's minimum tradable increment for an asset.
	LotSize(asset types.Asset) float64

	// Portfolio exposes the broker's portfolio for read access.
	Portfolio() *portfolio.Portfolio

	// OnTransaction registers a callback fired for every confirmed fill.
	OnTransaction(cb TransactionCallback)
}
