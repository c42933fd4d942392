package order

import (
	"github.com/google/uuid"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// OrderStyle selects the shape of the order set built for an entry signal.
type OrderStyle string

const (
	// StyleSingle emits just the entry order.
	StyleSingle OrderStyle = "single"
	// StyleBracket pairs the entry with a target and a protective stop.
	StyleBracket OrderStyle = "bracket"
	// StyleCover pairs the entry with a protective stop only.
	StyleCover OrderStyle = "cover"
)

// Signal parameter keys that override creator defaults per signal.
const (
	ParamLimitOrderPct   = "limit_order_pct"
	ParamTargetPct       = "target_pct"
	ParamStopPct         = "stop_pct"
	ParamTrailingStopPct = "trailing_stop_order_pct"
)

// CreatorConfig sets the defaults a creator translates signals with.
type CreatorConfig struct {
	// FixedOrderType is the entry order type, MARKET or LIMIT.
	FixedOrderType types.OrderType `yaml:"fixed_order_type" json:"fixed_order_type" validate:"required,oneof=MARKET LIMIT"`
	Style          OrderStyle      `yaml:"style" json:"style" validate:"omitempty,oneof=single bracket cover"`
	// TrailingStop replaces protective stops with trailing stops.
	TrailingStop bool `yaml:"trailing_stop" json:"trailing_stop"`

	LimitOrderPct   float64 `yaml:"limit_order_pct" json:"limit_order_pct" validate:"gte=0,lt=1"`
	TargetPct       float64 `yaml:"target_pct" json:"target_pct" validate:"gte=0,lt=1"`
	StopPct         float64 `yaml:"stop_pct" json:"stop_pct" validate:"gte=0,lt=1"`
	TrailingStopPct float64 `yaml:"trailing_stop_order_pct" json:"trailing_stop_order_pct" validate:"gte=0,lt=1"`
}

// OrderCreator translates a sized signal into one or more orders.
type OrderCreator struct {
	cfg CreatorConfig
}

// NewOrderCreator creates a creator with the given defaults.
func NewOrderCreator(cfg CreatorConfig) *OrderCreator {
	return &OrderCreator{cfg: cfg}
}

// pct returns the signal parameter override for key, or fallback.
func pct(signal types.Signal, key string, fallback float64) float64 {
	if v, ok := signal.Parameters[key]; ok {
		return v
	}

	return fallback
}

// CreateOrders builds the order set for a signal sized at size around the
// reference price. Exit signals produce a single closing order; entry
// signals produce the configured entry plus bracket legs.
func (c *OrderCreator) CreateOrders(signal types.Signal, size, price float64) ([]types.Order, error) {
	if size <= 0 {
		return nil, errors.Newf(errors.ErrCodeOrderRejected,
			"cannot create orders for non-positive size %v", size)
	}

	base := types.Order{
		OrderID:        uuid.New().String(),
		Asset:          signal.Asset,
		Timeframe:      signal.Timeframe,
		Action:         signal.Action,
		Direction:      signal.Direction,
		Size:           size,
		SignalID:       signal.ID(),
		TimeInForce:    signal.TimeInForce,
		Status:         types.OrderStatusCreated,
		GenerationTime: signal.GenerationTime,
		StrategyName:   signal.Strategy,
		IsExit:         signal.IsExit,
	}

	entry := base

	switch c.cfg.FixedOrderType {
	case types.OrderTypeMarket:
		entry.Type = types.OrderTypeMarket
	case types.OrderTypeLimit:
		entry.Type = types.OrderTypeLimit
		entry.Limit = optional.Some(limitPrice(signal.Action, price, pct(signal, ParamLimitOrderPct, c.cfg.LimitOrderPct)))
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidOrderType,
			"fixed order type must be MARKET or LIMIT, got %q", c.cfg.FixedOrderType)
	}

	if signal.IsExit || c.cfg.Style == StyleSingle || c.cfg.Style == "" {
		return []types.Order{entry}, nil
	}

	// bracket legs close the position the entry opens
	exitAction := types.ActionSell
	if signal.Action == types.ActionSell {
		exitAction = types.ActionBuy
	}

	orders := []types.Order{entry}

	if c.cfg.Style == StyleBracket {
		target := base
		target.OrderID = uuid.New().String()
		target.Action = exitAction
		target.Type = types.OrderTypeTarget
		target.Target = optional.Some(targetPrice(signal.Action, price, pct(signal, ParamTargetPct, c.cfg.TargetPct)))
		target.IsExit = true
		orders = append(orders, target)
	}

	protective := base
	protective.OrderID = uuid.New().String()
	protective.Action = exitAction
	protective.IsExit = true

	if c.cfg.TrailingStop {
		protective.Type = types.OrderTypeTrailingStop
		protective.StopPct = optional.Some(pct(signal, ParamTrailingStopPct, c.cfg.TrailingStopPct))
	} else {
		protective.Type = types.OrderTypeStop
		protective.Stop = optional.Some(stopPrice(signal.Action, price, pct(signal, ParamStopPct, c.cfg.StopPct)))
	}

	orders = append(orders, protective)

	return orders, nil
}

// limitPrice shades the reference price in the order's favor: buys bid
// below, sells offer above.
func limitPrice(action types.Action, price, p float64) float64 {
	if action == types.ActionBuy {
		return price * (1 - p)
	}

	return price * (1 + p)
}

// targetPrice is the profit level of the entry: above for buys, below
// for sells.
func targetPrice(entryAction types.Action, price, p float64) float64 {
	if entryAction == types.ActionBuy {
		return price * (1 + p)
	}

	return price * (1 - p)
}

// stopPrice is the loss level of the entry: below for buys, above for
// sells.
func stopPrice(entryAction types.Action, price, p float64) float64 {
	if entryAction == types.ActionBuy {
		return price * (1 - p)
	}

	return price * (1 + p)
}
