package broker

import (
	"math"
)

// FeeModel prices the commission of a fill and inverts itself to size the
// largest entry affordable for a cash budget.
type FeeModel interface {
	// Commission returns the fee charged for trading size units at price.
	Commission(price, size float64) float64
	// MaxSizeForCash returns the largest size whose cost plus commission
	// fits inside cash at the given price.
	MaxSizeForCash(cash, price float64) float64
}

// FeeModelName selects a fee model in configuration.
type FeeModelName string

const (
	FeeModelZero              FeeModelName = "zero_commission"
	FeeModelInteractiveBroker FeeModelName = "interactive_broker"
	FeeModelPercentage        FeeModelName = "percentage"
)

// GetFeeModel returns the model for a configured name, defaulting to zero
// commission for unknown names.
func GetFeeModel(name FeeModelName) FeeModel {
	switch name {
	case FeeModelInteractiveBroker:
		return NewInteractiveBrokerFee()
	case FeeModelPercentage:
		return NewPercentageFee(0.001, 0)
	case FeeModelZero:
		return NewZeroFee()
	default:
		return NewZeroFee()
	}
}

// ZeroFee charges nothing.
type ZeroFee struct{}

func NewZeroFee() *ZeroFee { return &ZeroFee{} }

func (f *ZeroFee) Commission(price, size float64) float64 { return 0 }

func (f *ZeroFee) MaxSizeForCash(cash, price float64) float64 {
	if price <= 0 || cash <= 0 {
		return 0
	}

	return cash / price
}

// InteractiveBrokerFee charges per share with a minimum per order.
type InteractiveBrokerFee struct {
	perShare float64
	minimum  float64
}

func NewInteractiveBrokerFee() *InteractiveBrokerFee {
	return &InteractiveBrokerFee{perShare: 0.005, minimum: 1.0}
}

func (f *InteractiveBrokerFee) Commission(price, size float64) float64 {
	return math.Max(f.perShare*size, f.minimum)
}

func (f *InteractiveBrokerFee) MaxSizeForCash(cash, price float64) float64 {
	return invertFee(f, cash, price)
}

// PercentageFee charges a fraction of notional with an optional minimum,
// the shape of most crypto venues.
type PercentageFee struct {
	rate    float64
	minimum float64
}

func NewPercentageFee(rate, minimum float64) *PercentageFee {
	return &PercentageFee{rate: rate, minimum: minimum}
}

func (f *PercentageFee) Commission(price, size float64) float64 {
	return math.Max(price*size*f.rate, f.minimum)
}

func (f *PercentageFee) MaxSizeForCash(cash, price float64) float64 {
	return invertFee(f, cash, price)
}

// invertFee refines a fee-free estimate until cost plus commission fits the
// budget. Converges in a few iterations for any monotone fee model.
func invertFee(f FeeModel, cash, price float64) float64 {
	if price <= 0 || cash <= 0 {
		return 0
	}

	size := cash / price

	for i := 0; i < 10; i++ {
		total := size*price + f.Commission(price, size)
		if total <= cash {
			break
		}

		size *= cash / total
	}

	if size <= 0 {
		return 0
	}

	return size
}
