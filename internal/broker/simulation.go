package broker

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/clock"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/portfolio"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/internal/utils"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// DefaultLotSize applies to assets without an explicit lot size entry.
const DefaultLotSize = 1.0

// SimulationConfig configures a simulated venue.
type SimulationConfig struct {
	Exchange       string             `yaml:"exchange" json:"exchange" validate:"required"`
	Currency       string             `yaml:"currency" json:"currency" validate:"required"`
	InitialFunds   float64            `yaml:"initial_funds" json:"initial_funds" validate:"gt=0"`
	FeeModel       FeeModelName       `yaml:"fee_model" json:"fee_model"`
	LotSizes       map[string]float64 `yaml:"lot_sizes" json:"lot_sizes"`
	DefaultLotSize float64            `yaml:"default_lot_size" json:"default_lot_size"`
}

// restingOrder is a non-market order waiting for its trigger. Trailing
// stops keep their current stop level here; it only ever tightens.
type restingOrder struct {
	order types.Order
	trail float64
}

// SimulationBroker fills orders against bar data. Market orders fill at
// the last bar's close; resting orders trigger when a later bar's range
// crosses their level.
type SimulationBroker struct {
	exchange   string
	clock      clock.Clock
	portfolio  *portfolio.Portfolio
	fee        FeeModel
	lotSizes   map[string]float64
	defaultLot float64
	lastCandle map[types.Asset]types.Candle
	resting    []*restingOrder
	callbacks  []TransactionCallback
	log        *logger.Logger
}

// NewSimulationBroker creates a simulated venue from config.
func NewSimulationBroker(cfg SimulationConfig, clk clock.Clock, log *logger.Logger) *SimulationBroker {
	defaultLot := cfg.DefaultLotSize
	if defaultLot <= 0 {
		defaultLot = DefaultLotSize
	}

	return &SimulationBroker{
		exchange:   cfg.Exchange,
		clock:      clk,
		portfolio:  portfolio.NewPortfolio(cfg.Currency, cfg.InitialFunds, log),
		fee:        GetFeeModel(cfg.FeeModel),
		lotSizes:   cfg.LotSizes,
		defaultLot: defaultLot,
		lastCandle: make(map[types.Asset]types.Candle),
		log:        log,
	}
}

func (b *SimulationBroker) Exchange() string { return b.exchange }

func (b *SimulationBroker) Portfolio() *portfolio.Portfolio { return b.portfolio }

func (b *SimulationBroker) OnTransaction(cb TransactionCallback) {
	b.callbacks = append(b.callbacks, cb)
}

func (b *SimulationBroker) LotSize(asset types.Asset) float64 {
	if size, ok := b.lotSizes[asset.Symbol]; ok {
		return size
	}

	return b.defaultLot
}

func (b *SimulationBroker) CurrentPrice(asset types.Asset) (float64, bool) {
	candle, ok := b.lastCandle[asset]
	if !ok {
		return 0, false
	}

	return candle.Close, true
}

func (b *SimulationBroker) HasOpenedPosition(asset types.Asset, direction types.Direction) bool {
	pos, ok := b.portfolio.Position(asset, direction)

	return ok && pos.IsOpen(b.LotSize(asset))
}

func (b *SimulationBroker) PendingOrders() []types.Order {
	out := make([]types.Order, 0, len(b.resting))
	for _, r := range b.resting {
		out = append(out, r.order)
	}

	return out
}

func (b *SimulationBroker) CancelOrder(orderID string) error {
	for i, r := range b.resting {
		if r.order.OrderID == orderID {
			r.order.Status = types.OrderStatusCancelled
			b.resting = slices.Delete(b.resting, i, i+1)

			return nil
		}
	}

	return nil
}

// Synchronize is a no-op: the simulation is its own source of truth.
func (b *SimulationBroker) Synchronize(ctx context.Context) error { return nil }

func (b *SimulationBroker) MaxEntryOrderSize(asset types.Asset, direction types.Direction, cash optional.Option[float64]) (float64, error) {
	price, ok := b.CurrentPrice(asset)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeDataGap, "no price yet for %s", asset.String())
	}

	budget := cash.TakeOr(b.portfolio.CashFloat())
	size := b.fee.MaxSizeForCash(budget, price)

	return utils.TruncateToLot(size, b.LotSize(asset)), nil
}

// UpdatePrice marks the bar, advances trailing stops, expires stale
// orders, then fills triggered ones. A resting order cannot fill on the
// bar that created it; it enters the book after that bar's processing.
func (b *SimulationBroker) UpdatePrice(candle types.Candle) error {
	b.lastCandle[candle.Asset] = candle
	b.portfolio.UpdatePrice(candle.Asset, candle.Close)

	b.expireOrders(candle)

	// triggers evaluate against the stop carried from prior bars: a bar
	// must not raise a trail and then fill through it in the same pass
	err := b.fillTriggered(candle)

	b.advanceTrailingStops(candle)

	return err
}

// ExecuteOrder validates, truncates to lot, clamps exits, and either fills
// now (market) or rests the order.
func (b *SimulationBroker) ExecuteOrder(order types.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	lot := b.LotSize(order.Asset)

	if order.IsExit {
		b.clampExit(&order)
	}

	order.Size = utils.TruncateToLot(order.Size, lot)
	if order.Size < lot {
		return b.reject(order, errors.Newf(errors.ErrCodeOrderRejected,
			"order %s size below lot size %v", order.OrderID, lot))
	}

	if order.Type == types.OrderTypeMarket {
		price, ok := b.CurrentPrice(order.Asset)
		if !ok {
			return b.reject(order, errors.Newf(errors.ErrCodeDataGap,
				"no price yet for %s", order.Asset.String()))
		}

		return b.fill(order, price)
	}

	order.Status = types.OrderStatusSubmitted
	r := &restingOrder{order: order}

	if order.Type == types.OrderTypeTrailingStop {
		price, ok := b.CurrentPrice(order.Asset)
		if !ok {
			return b.reject(order, errors.Newf(errors.ErrCodeDataGap,
				"no price yet for %s", order.Asset.String()))
		}

		pct := order.StopPct.TakeOr(0)
		if order.Action == types.ActionSell {
			r.trail = price * (1 - pct)
		} else {
			r.trail = price * (1 + pct)
		}
	}

	b.resting = append(b.resting, r)

	return nil
}

// clampExit shrinks an exit order to the open leg size. Oversized exits
// are a normal race between signal and fills, not an error.
func (b *SimulationBroker) clampExit(order *types.Order) {
	pos, ok := b.portfolio.Position(order.Asset, order.Direction)
	if !ok {
		return
	}

	open := pos.AbsNetSize()
	if order.Size > open {
		b.log.Info("clamping exit order to open position size",
			zap.String("order_id", order.OrderID),
			zap.Float64("requested", order.Size),
			zap.Float64("available", open),
		)

		order.Size = open
	}
}

func (b *SimulationBroker) advanceTrailingStops(candle types.Candle) {
	for _, r := range b.resting {
		if r.order.Type != types.OrderTypeTrailingStop || r.order.Asset != candle.Asset {
			continue
		}

		pct := r.order.StopPct.TakeOr(0)
		price := candle.Close

		if r.order.Action == types.ActionSell {
			// sell-side trail only ratchets up
			if candidate := price * (1 - pct); candidate > r.trail {
				r.trail = candidate
			}
		} else {
			if candidate := price * (1 + pct); candidate < r.trail {
				r.trail = candidate
			}
		}
	}
}

func (b *SimulationBroker) expireOrders(candle types.Candle) {
	now := candle.Timestamp

	kept := b.resting[:0]

	for _, r := range b.resting {
		if r.order.TimeInForce > 0 && now.After(r.order.ExpiresAt()) {
			r.order.Status = types.OrderStatusExpired
			b.log.Info("resting order expired",
				zap.String("order_id", r.order.OrderID),
				zap.Time("expires_at", r.order.ExpiresAt()),
			)

			continue
		}

		kept = append(kept, r)
	}

	b.resting = kept
}

// fillTriggered evaluates every resting order for this asset against the
// bar and fills those whose level the range crossed.
func (b *SimulationBroker) fillTriggered(candle types.Candle) error {
	var toFill []*restingOrder

	kept := b.resting[:0]

	for _, r := range b.resting {
		if r.order.Asset != candle.Asset {
			kept = append(kept, r)

			continue
		}

		price, triggered := b.triggerPrice(r, candle)
		if triggered {
			r.trail = price
			toFill = append(toFill, r)
		} else {
			kept = append(kept, r)
		}
	}

	b.resting = kept

	for _, r := range toFill {
		if err := b.fill(r.order, r.trail); err != nil {
			return err
		}
	}

	return nil
}

// triggerPrice reports whether the bar triggers the order and at what
// price it would fill. Stop and target levels clamp into the bar's range:
// a bar that gaps through the level fills at the nearest traded price, not
// at a price that never printed. A triggered trailing stop converts to
// market and fills at the bar close.
func (b *SimulationBroker) triggerPrice(r *restingOrder, candle types.Candle) (float64, bool) {
	mid := candle.Mid()

	switch r.order.Type {
	case types.OrderTypeLimit:
		limit := r.order.Limit.TakeOr(0)

		if r.order.Action == types.ActionBuy && candle.Low <= limit {
			// fill at the better of limit and the bar midpoint
			if mid < limit {
				return mid, true
			}

			return limit, true
		}

		if r.order.Action == types.ActionSell && candle.High >= limit {
			if mid > limit {
				return mid, true
			}

			return limit, true
		}
	case types.OrderTypeStop:
		stop := r.order.Stop.TakeOr(0)

		if r.order.Action == types.ActionBuy && candle.High >= stop {
			return clampToRange(stop, candle), true
		}

		if r.order.Action == types.ActionSell && candle.Low <= stop {
			return clampToRange(stop, candle), true
		}
	case types.OrderTypeTarget:
		target := r.order.Target.TakeOr(0)

		if r.order.Action == types.ActionBuy && candle.Low <= target {
			return clampToRange(target, candle), true
		}

		if r.order.Action == types.ActionSell && candle.High >= target {
			return clampToRange(target, candle), true
		}
	case types.OrderTypeTrailingStop:
		if r.order.Action == types.ActionSell && candle.Low <= r.trail {
			return candle.Close, true
		}

		if r.order.Action == types.ActionBuy && candle.High >= r.trail {
			return candle.Close, true
		}
	case types.OrderTypeMarket:
	}

	return 0, false
}

// clampToRange bounds a trigger level to the prices the bar actually traded.
func clampToRange(level float64, candle types.Candle) float64 {
	if level < candle.Low {
		return candle.Low
	}

	if level > candle.High {
		return candle.High
	}

	return level
}

// fill confirms the order at price, applies the transaction, and notifies
// listeners.
func (b *SimulationBroker) fill(order types.Order, price float64) error {
	if order.IsExit {
		b.clampExit(&order)

		lot := b.LotSize(order.Asset)

		order.Size = utils.TruncateToLot(order.Size, lot)
		if order.Size < lot {
			order.Status = types.OrderStatusCancelled

			return nil
		}
	}

	commission := b.fee.Commission(price, order.Size)

	tx := types.Transaction{
		TransactionID: uuid.New().String(),
		OrderID:       order.OrderID,
		Asset:         order.Asset,
		Timeframe:     order.Timeframe,
		StrategyName:  order.StrategyName,
		Action:        order.Action,
		Direction:     order.Direction,
		Size:          order.Size,
		Price:         decimal.NewFromFloat(price),
		Commission:    decimal.NewFromFloat(commission),
		Timestamp:     b.clock.CurrentTime(),
	}

	if err := b.portfolio.ApplyTransaction(tx, b.LotSize(order.Asset)); err != nil {
		if errors.HasCode(err, errors.ErrCodeInsufficientFunds) {
			return b.reject(order, err)
		}

		return err
	}

	order.Status = types.OrderStatusFilled

	b.log.Debug("order filled",
		zap.String("order_id", order.OrderID),
		zap.String("asset", order.Asset.String()),
		zap.Float64("price", price),
		zap.Float64("size", order.Size),
	)

	for _, cb := range b.callbacks {
		cb(tx, order)
	}

	return nil
}

// reject records the rejection in the portfolio history and returns a
// coded error.
func (b *SimulationBroker) reject(order types.Order, cause error) error {
	order.Status = types.OrderStatusRejected

	b.portfolio.RecordEvent(types.PortfolioEvent{
		Type:        types.PortfolioEventOrderRejected,
		Timestamp:   b.clock.CurrentTime(),
		Asset:       order.Asset,
		Description: cause.Error(),
	})

	b.log.Warn("order rejected",
		zap.String("order_id", order.OrderID),
		zap.Error(cause),
	)

	if errors.GetCode(cause) != errors.ErrCodeUnknown {
		return cause
	}

	return errors.Wrap(errors.ErrCodeOrderRejected, "order rejected", cause)
}
