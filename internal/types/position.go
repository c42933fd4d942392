package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position tracks one leg (LONG or SHORT) of holdings in an asset. Buy and
// sell quantities accumulate separately so average entry and exit prices
// stay recoverable.
type Position struct {
	Asset     Asset     `csv:"asset"`
	Direction Direction `csv:"direction"`
	Timeframe Timeframe `csv:"timeframe"`

	// BuySize is the total bought quantity; SellSize the total sold. For a
	// LONG leg buys are entries and sells are exits, for SHORT the reverse.
	BuySize  float64 `csv:"buy_size"`
	SellSize float64 `csv:"sell_size"`

	BuyAmount  decimal.Decimal `csv:"buy_amount"`
	SellAmount decimal.Decimal `csv:"sell_amount"`

	BuyCommission  decimal.Decimal `csv:"buy_commission"`
	SellCommission decimal.Decimal `csv:"sell_commission"`

	LastPrice     float64         `csv:"last_price"`
	RealisedPnl   decimal.Decimal `csv:"realised_pnl"`
	OpenTimestamp time.Time       `csv:"open_timestamp"`
	StrategyName  string          `csv:"strategy_name"`
}

// NetSize is the signed quantity currently held: positive for an open LONG,
// negative for an open SHORT.
func (p *Position) NetSize() float64 {
	return p.BuySize - p.SellSize
}

// AbsNetSize is the unsigned open quantity of the leg.
func (p *Position) AbsNetSize() float64 {
	n := p.NetSize()
	if n < 0 {
		return -n
	}

	return n
}

// IsOpen reports whether the leg holds at least one lot.
func (p *Position) IsOpen(lotSize float64) bool {
	return p.AbsNetSize() >= lotSize
}

// EntrySize is the total entered quantity of the leg.
func (p *Position) EntrySize() float64 {
	if p.Direction == DirectionShort {
		return p.SellSize
	}

	return p.BuySize
}

// ExitSize is the total exited quantity of the leg.
func (p *Position) ExitSize() float64 {
	if p.Direction == DirectionShort {
		return p.BuySize
	}

	return p.SellSize
}

// AvgEntryPrice calculates the average entry price including commission.
func (p *Position) AvgEntryPrice() float64 {
	size := p.EntrySize()
	if size == 0 {
		return 0
	}

	var amount, fee decimal.Decimal
	if p.Direction == DirectionShort {
		amount, fee = p.SellAmount, p.SellCommission.Neg()
	} else {
		amount, fee = p.BuyAmount, p.BuyCommission
	}

	avg, _ := amount.Add(fee).Div(decimal.NewFromFloat(size)).Float64()

	return avg
}

// AvgExitPrice calculates the average exit price including commission.
func (p *Position) AvgExitPrice() float64 {
	size := p.ExitSize()
	if size == 0 {
		return 0
	}

	var amount, fee decimal.Decimal
	if p.Direction == DirectionShort {
		amount, fee = p.BuyAmount, p.BuyCommission
	} else {
		amount, fee = p.SellAmount, p.SellCommission.Neg()
	}

	avg, _ := amount.Add(fee).Div(decimal.NewFromFloat(size)).Float64()

	return avg
}

// EntryCost is the cash currently tied up in the open quantity of the
// leg, valued at the average entry price.
func (p *Position) EntryCost() decimal.Decimal {
	open := p.AbsNetSize()
	if open == 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat(p.AvgEntryPrice()).Mul(decimal.NewFromFloat(open))
}

// UnrealisedPnl marks the open quantity against the last seen price.
func (p *Position) UnrealisedPnl() decimal.Decimal {
	open := p.AbsNetSize()
	if open == 0 {
		return decimal.Zero
	}

	entry := decimal.NewFromFloat(p.AvgEntryPrice())
	last := decimal.NewFromFloat(p.LastPrice)
	qty := decimal.NewFromFloat(open)

	if p.Direction == DirectionShort {
		return entry.Sub(last).Mul(qty)
	}

	return last.Sub(entry).Mul(qty)
}
