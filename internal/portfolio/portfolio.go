// Package portfolio maintains cash, open positions, and the append-only
// event history. A portfolio is owned exclusively by its broker; strategies
// only ever observe it through the read-only context.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Portfolio tracks cash in a base currency, per-asset per-direction
// positions, and the ordered history of portfolio events.
type Portfolio struct {
	currency     string
	cash         decimal.Decimal
	initialFunds decimal.Decimal
	deposits     decimal.Decimal
	withdrawals  decimal.Decimal
	closedPnl    decimal.Decimal
	positions    map[types.Asset]map[types.Direction]*types.Position
	history      []types.PortfolioEvent
	log          *logger.Logger
}

// NewPortfolio creates a portfolio funded with initialFunds of currency.
func NewPortfolio(currency string, initialFunds float64, log *logger.Logger) *Portfolio {
	return &Portfolio{
		currency:     currency,
		cash:         decimal.NewFromFloat(initialFunds),
		initialFunds: decimal.NewFromFloat(initialFunds),
		positions:    make(map[types.Asset]map[types.Direction]*types.Position),
		log:          log,
	}
}

// Currency returns the base currency.
func (p *Portfolio) Currency() string { return p.currency }

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// CashFloat returns the cash balance as a float64 for sizing math.
func (p *Portfolio) CashFloat() float64 {
	f, _ := p.cash.Float64()

	return f
}

// ClosedPnl returns the accumulated realised PnL of destroyed positions.
func (p *Portfolio) ClosedPnl() decimal.Decimal { return p.closedPnl }

// History returns the ordered portfolio events.
func (p *Portfolio) History() []types.PortfolioEvent { return p.history }

// Position returns the position for (asset, direction) if one is open.
func (p *Portfolio) Position(asset types.Asset, direction types.Direction) (*types.Position, bool) {
	byDir, ok := p.positions[asset]
	if !ok {
		return nil, false
	}

	pos, ok := byDir[direction]

	return pos, ok
}

// Positions returns all tracked positions.
func (p *Portfolio) Positions() []*types.Position {
	var out []*types.Position

	for _, byDir := range p.positions {
		for _, pos := range byDir {
			out = append(out, pos)
		}
	}

	return out
}

// UpdatePrice marks every position in the asset to the latest price.
func (p *Portfolio) UpdatePrice(asset types.Asset, price float64) {
	for _, pos := range p.positions[asset] {
		pos.LastPrice = price
	}
}

// ApplyTransaction applies a confirmed fill: it moves cash, creates the
// position on first contact, mutates it, destroys it when the net size
// drops below lotSize, and appends a symbol_transaction event.
//
// Cash may not go negative; a transaction that would overdraw is an
// invariant violation because sizing happens before execution.
func (p *Portfolio) ApplyTransaction(tx types.Transaction, lotSize float64) error {
	newCash := p.cash.Add(tx.Cost())
	if newCash.IsNegative() {
		return errors.Newf(errors.ErrCodeInsufficientFunds,
			"transaction %s would overdraw cash: have %s, need %s",
			tx.TransactionID, p.cash.String(), tx.Cost().Neg().String())
	}

	byDir, ok := p.positions[tx.Asset]
	if !ok {
		byDir = make(map[types.Direction]*types.Position)
		p.positions[tx.Asset] = byDir
	}

	pos, ok := byDir[tx.Direction]
	if !ok {
		pos = &types.Position{
			Asset:         tx.Asset,
			Direction:     tx.Direction,
			Timeframe:     tx.Timeframe,
			StrategyName:  tx.StrategyName,
			OpenTimestamp: tx.Timestamp,
		}
		byDir[tx.Direction] = pos
	}

	price, _ := tx.Price.Float64()
	qty := decimal.NewFromFloat(tx.Size)

	if tx.Action == types.ActionBuy {
		pos.BuySize += tx.Size
		pos.BuyAmount = pos.BuyAmount.Add(tx.Price.Mul(qty))
		pos.BuyCommission = pos.BuyCommission.Add(tx.Commission)
	} else {
		pos.SellSize += tx.Size
		pos.SellAmount = pos.SellAmount.Add(tx.Price.Mul(qty))
		pos.SellCommission = pos.SellCommission.Add(tx.Commission)
	}

	pos.LastPrice = price

	// realised pnl accrues on the exit side of the leg
	isExit := (tx.Direction == types.DirectionLong && tx.Action == types.ActionSell) ||
		(tx.Direction == types.DirectionShort && tx.Action == types.ActionBuy)
	if isExit {
		entry := decimal.NewFromFloat(pos.AvgEntryPrice())

		if tx.Direction == types.DirectionLong {
			pos.RealisedPnl = pos.RealisedPnl.Add(tx.Price.Sub(entry).Mul(qty)).Sub(tx.Commission)
		} else {
			pos.RealisedPnl = pos.RealisedPnl.Add(entry.Sub(tx.Price).Mul(qty)).Sub(tx.Commission)
		}
	}

	p.cash = newCash

	p.history = append(p.history, types.PortfolioEvent{
		Type:        types.PortfolioEventTransaction,
		Timestamp:   tx.Timestamp,
		Asset:       tx.Asset,
		Transaction: &tx,
		CashAfter:   p.cash,
		Description: string(tx.Action) + " " + string(tx.Direction),
	})

	// destroy the position once it no longer holds a lot
	if !pos.IsOpen(lotSize) {
		p.closedPnl = p.closedPnl.Add(pos.RealisedPnl)
		delete(byDir, tx.Direction)

		if len(byDir) == 0 {
			delete(p.positions, tx.Asset)
		}

		p.log.Info("position closed",
			zap.String("asset", tx.Asset.String()),
			zap.String("direction", string(tx.Direction)),
			zap.String("realised_pnl", pos.RealisedPnl.String()),
		)
	}

	return nil
}

// RecordEvent appends a non-transaction event (rejection,
// synchronization, strategy halt) to the history.
func (p *Portfolio) RecordEvent(event types.PortfolioEvent) {
	event.CashAfter = p.cash
	p.history = append(p.history, event)
}

// Deposit adds funds and records a cash_deposit event.
func (p *Portfolio) Deposit(amount float64, event types.PortfolioEvent) {
	p.cash = p.cash.Add(decimal.NewFromFloat(amount))
	p.deposits = p.deposits.Add(decimal.NewFromFloat(amount))
	event.Type = types.PortfolioEventCashDeposit
	p.RecordEvent(event)
}

// Withdraw removes funds and records a cash_withdrawal event.
func (p *Portfolio) Withdraw(amount float64, event types.PortfolioEvent) error {
	dec := decimal.NewFromFloat(amount)
	if dec.GreaterThan(p.cash) {
		return errors.Newf(errors.ErrCodeInsufficientFunds,
			"cannot withdraw %s: cash is %s", dec.String(), p.cash.String())
	}

	p.cash = p.cash.Sub(dec)
	p.withdrawals = p.withdrawals.Add(dec)
	event.Type = types.PortfolioEventCashWithdrawal
	p.RecordEvent(event)

	return nil
}

// ReconcilePosition forces a position's net size to the venue-reported
// size, recording a synchronization event. The venue is the source of
// truth; local bookkeeping absorbs the difference on the entry side.
func (p *Portfolio) ReconcilePosition(asset types.Asset, direction types.Direction, venueSize float64, ts time.Time) {
	byDir, ok := p.positions[asset]
	if !ok {
		return
	}

	pos, ok := byDir[direction]
	if !ok {
		return
	}

	diff := venueSize - pos.AbsNetSize()
	if diff == 0 {
		return
	}

	if direction == types.DirectionLong {
		pos.BuySize += diff
	} else {
		pos.SellSize += diff
	}

	p.log.Warn("position reconciled to venue size",
		zap.String("asset", asset.String()),
		zap.String("direction", string(direction)),
		zap.Float64("venue_size", venueSize),
		zap.Float64("adjustment", diff),
	)

	p.RecordEvent(types.PortfolioEvent{
		Type:        types.PortfolioEventSynchronization,
		Timestamp:   ts,
		Asset:       asset,
		Description: "venue size override",
	})
}

// OpenCost returns the total entry cost currently tied up in positions.
func (p *Portfolio) OpenCost() decimal.Decimal {
	total := decimal.Zero

	for _, pos := range p.Positions() {
		entry := decimal.NewFromFloat(pos.AvgEntryPrice())
		total = total.Add(entry.Mul(decimal.NewFromFloat(pos.AbsNetSize())))
	}

	return total
}

// Equity returns cash plus the signed marked value of open positions.
// A short leg is a buy-to-cover liability, so its mark subtracts.
func (p *Portfolio) Equity() decimal.Decimal {
	total := p.cash

	for _, pos := range p.Positions() {
		total = total.Add(decimal.NewFromFloat(pos.LastPrice).Mul(decimal.NewFromFloat(pos.NetSize())))
	}

	return total
}
