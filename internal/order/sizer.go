// Package order turns strategy signals into sized, routable orders and
// mediates between signals, the sizer, the creator, and the brokers.
package order

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/tradeloop/internal/broker"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// PositionSizer computes the largest affordable size for an entry signal,
// scaled by the signal's confidence level and floored to either whole
// units or the venue lot size.
type PositionSizer struct {
	brokers *broker.Manager
	// integerSize floors sizes to whole units, for venues that trade
	// whole shares regardless of lot filters.
	integerSize bool
}

// NewPositionSizer creates a sizer over the broker manager.
func NewPositionSizer(brokers *broker.Manager, integerSize bool) *PositionSizer {
	return &PositionSizer{brokers: brokers, integerSize: integerSize}
}

// Size returns the order size for a signal along with the reference price
// used. Entry signals are sized against the isolation-scoped cash budget;
// exit signals are sized to the open leg.
func (s *PositionSizer) Size(signal types.Signal) (float64, float64, error) {
	b, err := s.brokers.Broker(signal.Asset.Exchange)
	if err != nil {
		return 0, 0, err
	}

	price, ok := b.CurrentPrice(signal.Asset)
	if !ok || price <= 0 {
		return 0, 0, errors.Newf(errors.ErrCodeDataGap, "no price yet for %s", signal.Asset.String())
	}

	if signal.IsExit {
		pos, ok := b.Portfolio().Position(signal.Asset, signal.Direction)
		if !ok {
			return 0, price, nil
		}

		return pos.AbsNetSize(), price, nil
	}

	confidence := signal.ConfidenceLevel
	if confidence <= 0 || confidence > 1 {
		return 0, 0, errors.Newf(errors.ErrCodeConfig,
			"signal confidence level %v outside (0, 1]", signal.ConfidenceLevel)
	}

	scope := broker.SizingScope{
		Asset:        signal.Asset,
		Timeframe:    signal.Timeframe,
		StrategyName: signal.Strategy,
	}

	budget, err := s.brokers.AvailableCash(scope)
	if err != nil {
		return 0, 0, err
	}

	size, err := b.MaxEntryOrderSize(signal.Asset, signal.Direction, optional.Some(budget*confidence))
	if err != nil {
		return 0, 0, err
	}

	if s.integerSize {
		size = math.Floor(size)
	}

	return size, price, nil
}
