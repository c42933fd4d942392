package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Action is the side of an order.
type Action string

// Direction is the position leg an order targets.
type Direction string

// OrderType is the execution style of an order.
type OrderType string

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStop         OrderType = "STOP"
	OrderTypeTarget       OrderType = "TARGET"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// Order is a sized, routable trading instruction derived from a Signal.
// Price fields are optional and required exactly when Type demands them.
type Order struct {
	OrderID   string    `yaml:"order_id" json:"order_id" csv:"order_id"`
	Asset     Asset     `yaml:"asset" json:"asset" csv:"asset"`
	Timeframe Timeframe `yaml:"timeframe" json:"timeframe" csv:"timeframe"`
	Action    Action    `yaml:"action" json:"action" csv:"action" validate:"required,oneof=BUY SELL"`
	Direction Direction `yaml:"direction" json:"direction" csv:"direction" validate:"required,oneof=LONG SHORT"`
	Size      float64   `yaml:"size" json:"size" csv:"size" validate:"required,gt=0"`
	SignalID  string    `yaml:"signal_id" json:"signal_id" csv:"signal_id" validate:"required"`
	Type      OrderType `yaml:"type" json:"type" csv:"type" validate:"required,oneof=MARKET LIMIT STOP TARGET TRAILING_STOP"`

	Limit   optional.Option[float64] `yaml:"limit" json:"limit" csv:"limit"`
	Stop    optional.Option[float64] `yaml:"stop" json:"stop" csv:"stop"`
	Target  optional.Option[float64] `yaml:"target" json:"target" csv:"target"`
	StopPct optional.Option[float64] `yaml:"stop_pct" json:"stop_pct" csv:"stop_pct"`

	// TimeInForce is the maximum lifetime of the order from GenerationTime.
	// Zero means immediate.
	TimeInForce    time.Duration `yaml:"time_in_force" json:"time_in_force" csv:"time_in_force" validate:"gte=0"`
	Status         OrderStatus   `yaml:"status" json:"status" csv:"status"`
	GenerationTime time.Time     `yaml:"generation_time" json:"generation_time" csv:"generation_time" validate:"required"`
	StrategyName   string        `yaml:"strategy_name" json:"strategy_name" csv:"strategy_name"`

	// IsExit marks the order as closing an existing position leg. Exit
	// orders have their size clamped to the open size instead of failing.
	IsExit bool `yaml:"is_exit" json:"is_exit" csv:"is_exit"`
}

// IsEntry reports whether the (action, direction) pair opens a position:
// BUY LONG or SELL SHORT.
func (o *Order) IsEntry() bool {
	return (o.Action == ActionBuy && o.Direction == DirectionLong) ||
		(o.Action == ActionSell && o.Direction == DirectionShort)
}

// ExpiresAt returns the instant the order stops being valid. Immediate
// orders expire at their generation time.
func (o *Order) ExpiresAt() time.Time {
	return o.GenerationTime.Add(o.TimeInForce)
}

// Validate validates the Order struct, including the per-type price field
// requirements.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	switch o.Type {
	case OrderTypeLimit:
		if o.Limit.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a limit price")
		}
	case OrderTypeStop:
		if o.Stop.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "stop order requires a stop price")
		}
	case OrderTypeTarget:
		if o.Target.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "target order requires a target price")
		}
	case OrderTypeTrailingStop:
		if o.StopPct.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "trailing stop order requires stop_pct")
		}
	case OrderTypeMarket:
	default:
		return errors.Newf(errors.ErrCodeInvalidOrderType, "unknown order type %q", o.Type)
	}

	return nil
}
