package broker

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
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

// Throttle intervals for venue pulls. Prices and balances refresh often,
// lot sizes change rarely.
const (
	priceRefreshInterval   = 10 * time.Second
	balanceRefreshInterval = 10 * time.Second
	lotSizeRefreshInterval = 24 * time.Hour
)

// binanceDecimalPrecision is the fallback quantity precision when the
// exchange info has not been fetched yet.
const binanceDecimalPrecision = 8

// BinanceConfig configures the live Binance broker.
type BinanceConfig struct {
	APIKey     string `yaml:"api_key" json:"api_key" validate:"required"`
	SecretKey  string `yaml:"secret_key" json:"secret_key" validate:"required"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	UseTestnet bool   `yaml:"use_testnet" json:"use_testnet"`
	// Currency is the quote currency cash is denominated in (e.g. USDT).
	Currency string `yaml:"currency" json:"currency" validate:"required"`
	FeeModel FeeModelName `yaml:"fee_model" json:"fee_model"`
}

// binanceAPI is the slice of the Binance REST API the broker needs,
// abstracted for tests.
type binanceAPI interface {
	CreateOrder(ctx context.Context, symbol string, side binance.SideType, orderType binance.OrderType, quantity, price string, tif binance.TimeInForceType) (*binance.CreateOrderResponse, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	Account(ctx context.Context) (*binance.Account, error)
	OpenOrders(ctx context.Context) ([]*binance.Order, error)
	MyTrades(ctx context.Context, symbol string, since int64) ([]*binance.TradeV3, error)
	Price(ctx context.Context, symbol string) (float64, error)
	StepSize(ctx context.Context, symbol string) (float64, error)
}

// realBinanceAPI backs binanceAPI with the adshao client.
type realBinanceAPI struct {
	client *binance.Client
}

func (r *realBinanceAPI) CreateOrder(ctx context.Context, symbol string, side binance.SideType, orderType binance.OrderType, quantity, price string, tif binance.TimeInForceType) (*binance.CreateOrderResponse, error) {
	svc := r.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(orderType).
		Quantity(quantity)

	if orderType == binance.OrderTypeLimit {
		svc = svc.Price(price).TimeInForce(tif)
	}

	return svc.Do(ctx)
}

func (r *realBinanceAPI) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := r.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)

	return err
}

func (r *realBinanceAPI) Account(ctx context.Context) (*binance.Account, error) {
	return r.client.NewGetAccountService().Do(ctx)
}

func (r *realBinanceAPI) OpenOrders(ctx context.Context) ([]*binance.Order, error) {
	return r.client.NewListOpenOrdersService().Do(ctx)
}

func (r *realBinanceAPI) MyTrades(ctx context.Context, symbol string, since int64) ([]*binance.TradeV3, error) {
	svc := r.client.NewListTradesService().Symbol(symbol)
	if since > 0 {
		svc = svc.StartTime(since)
	}

	return svc.Do(ctx)
}

func (r *realBinanceAPI) Price(ctx context.Context, symbol string) (float64, error) {
	prices, err := r.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}

	if len(prices) == 0 {
		return 0, errors.Newf(errors.ErrCodeTransientVenue, "no price returned for %s", symbol)
	}

	return strconv.ParseFloat(prices[0].Price, 64)
}

func (r *realBinanceAPI) StepSize(ctx context.Context, symbol string) (float64, error) {
	info, err := r.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		if f := s.LotSizeFilter(); f != nil {
			return strconv.ParseFloat(f.StepSize, 64)
		}
	}

	return 0, errors.Newf(errors.ErrCodeLotSizeUnknown, "no LOT_SIZE filter for %s", symbol)
}

// liveResting is a locally held conditional order. Binance has no native
// TARGET or TRAILING_STOP on spot, so those rest here and convert to
// market submissions when triggered.
type liveResting struct {
	order        types.Order
	trail        float64
	venueID      int64
	venueResting bool
}

// cachedValue is a throttled venue pull.
type cachedValue struct {
	value     float64
	fetchedAt time.Time
}

// BinanceBroker trades spot on Binance. Market and limit orders go to the
// venue; stop, target, and trailing orders rest locally and trigger off
// the price stream.
type BinanceBroker struct {
	exchange  string
	api       binanceAPI
	clock     clock.Clock
	portfolio *portfolio.Portfolio
	fee       FeeModel
	log       *logger.Logger

	prices      map[string]cachedValue
	lotSizes    map[string]cachedValue
	lastBalance time.Time
	resting     []*liveResting
	callbacks   []TransactionCallback
}

// NewBinanceBroker creates a live broker. If cfg.BaseURL is set it takes
// precedence over UseTestnet.
func NewBinanceBroker(cfg BinanceConfig, clk clock.Clock, log *logger.Logger) (*BinanceBroker, error) {
	if cfg.UseTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	b := newBinanceBrokerWithAPI(&realBinanceAPI{client: client}, cfg, clk, log)

	return b, nil
}

// newBinanceBrokerWithAPI wires a custom API implementation, used by tests.
func newBinanceBrokerWithAPI(api binanceAPI, cfg BinanceConfig, clk clock.Clock, log *logger.Logger) *BinanceBroker {
	return &BinanceBroker{
		exchange:  "BINANCE",
		api:       api,
		clock:     clk,
		portfolio: portfolio.NewPortfolio(cfg.Currency, 0, log),
		fee:       GetFeeModel(cfg.FeeModel),
		log:       log,
		prices:    make(map[string]cachedValue),
		lotSizes:  make(map[string]cachedValue),
	}
}

func (b *BinanceBroker) Exchange() string { return b.exchange }

func (b *BinanceBroker) Portfolio() *portfolio.Portfolio { return b.portfolio }

func (b *BinanceBroker) OnTransaction(cb TransactionCallback) {
	b.callbacks = append(b.callbacks, cb)
}

func (b *BinanceBroker) LotSize(asset types.Asset) float64 {
	cached, ok := b.lotSizes[asset.Symbol]
	if ok && b.clock.CurrentTime().Sub(cached.fetchedAt) < lotSizeRefreshInterval {
		return cached.value
	}

	step, err := b.api.StepSize(context.Background(), asset.Symbol)
	if err != nil {
		b.log.Warn("lot size fetch failed, using cached or default",
			zap.String("symbol", asset.Symbol),
			zap.Error(err),
		)

		if ok {
			return cached.value
		}

		// satoshi-level fallback until exchange info is reachable
		return 1e-8
	}

	b.lotSizes[asset.Symbol] = cachedValue{value: step, fetchedAt: b.clock.CurrentTime()}

	return step
}

func (b *BinanceBroker) CurrentPrice(asset types.Asset) (float64, bool) {
	cached, ok := b.prices[asset.Symbol]
	if ok && b.clock.CurrentTime().Sub(cached.fetchedAt) < priceRefreshInterval {
		return cached.value, true
	}

	price, err := b.api.Price(context.Background(), asset.Symbol)
	if err != nil {
		b.log.Warn("price fetch failed",
			zap.String("symbol", asset.Symbol),
			zap.Error(err),
		)

		return cached.value, ok
	}

	b.prices[asset.Symbol] = cachedValue{value: price, fetchedAt: b.clock.CurrentTime()}

	return price, true
}

func (b *BinanceBroker) HasOpenedPosition(asset types.Asset, direction types.Direction) bool {
	pos, ok := b.portfolio.Position(asset, direction)

	return ok && pos.IsOpen(b.LotSize(asset))
}

func (b *BinanceBroker) PendingOrders() []types.Order {
	out := make([]types.Order, 0, len(b.resting))
	for _, r := range b.resting {
		out = append(out, r.order)
	}

	return out
}

func (b *BinanceBroker) CancelOrder(orderID string) error {
	for i, r := range b.resting {
		if r.order.OrderID != orderID {
			continue
		}

		if r.venueResting {
			if err := b.api.CancelOrder(context.Background(), r.order.Asset.Symbol, r.venueID); err != nil {
				return errors.Wrap(errors.ErrCodeTransientVenue, "cancel failed at venue", err)
			}
		}

		r.order.Status = types.OrderStatusCancelled
		b.resting = slices.Delete(b.resting, i, i+1)

		return nil
	}

	return nil
}

func (b *BinanceBroker) MaxEntryOrderSize(asset types.Asset, direction types.Direction, cash optional.Option[float64]) (float64, error) {
	price, ok := b.CurrentPrice(asset)
	if !ok || price <= 0 {
		return 0, errors.Newf(errors.ErrCodeTransientVenue, "no price available for %s", asset.String())
	}

	budget := cash.TakeOr(b.portfolio.CashFloat())
	size := b.fee.MaxSizeForCash(budget, price)

	return utils.TruncateToLot(size, b.LotSize(asset)), nil
}

// UpdatePrice marks the stream bar, advances trailing stops, expires
// stale local orders, and converts triggered conditionals to market
// submissions.
func (b *BinanceBroker) UpdatePrice(candle types.Candle) error {
	b.prices[candle.Asset.Symbol] = cachedValue{value: candle.Close, fetchedAt: b.clock.CurrentTime()}
	b.portfolio.UpdatePrice(candle.Asset, candle.Close)

	now := b.clock.CurrentTime()
	kept := b.resting[:0]

	var triggered []*liveResting

	for _, r := range b.resting {
		if r.order.Asset != candle.Asset {
			kept = append(kept, r)

			continue
		}

		if r.order.TimeInForce > 0 && now.After(r.order.ExpiresAt()) {
			b.expire(r)

			continue
		}

		if r.venueResting {
			// the venue owns the trigger for this one
			kept = append(kept, r)

			continue
		}

		if b.conditionTriggered(r, candle) {
			triggered = append(triggered, r)
		} else {
			b.advanceTrail(r, candle.Close)
			kept = append(kept, r)
		}
	}

	b.resting = kept

	for _, r := range triggered {
		market := r.order
		market.Type = types.OrderTypeMarket

		if err := b.submit(market); err != nil {
			b.log.Error("triggered order submission failed",
				zap.String("order_id", market.OrderID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (b *BinanceBroker) advanceTrail(r *liveResting, price float64) {
	if r.order.Type != types.OrderTypeTrailingStop {
		return
	}

	pct := r.order.StopPct.TakeOr(0)

	if r.order.Action == types.ActionSell {
		if candidate := price * (1 - pct); candidate > r.trail || r.trail == 0 {
			r.trail = candidate
		}
	} else {
		if candidate := price * (1 + pct); candidate < r.trail || r.trail == 0 {
			r.trail = candidate
		}
	}
}

func (b *BinanceBroker) conditionTriggered(r *liveResting, candle types.Candle) bool {
	switch r.order.Type {
	case types.OrderTypeStop:
		stop := r.order.Stop.TakeOr(0)

		return (r.order.Action == types.ActionBuy && candle.High >= stop) ||
			(r.order.Action == types.ActionSell && candle.Low <= stop)
	case types.OrderTypeTarget:
		target := r.order.Target.TakeOr(0)

		return (r.order.Action == types.ActionBuy && candle.Low <= target) ||
			(r.order.Action == types.ActionSell && candle.High >= target)
	case types.OrderTypeTrailingStop:
		return (r.order.Action == types.ActionSell && candle.Low <= r.trail) ||
			(r.order.Action == types.ActionBuy && candle.High >= r.trail)
	case types.OrderTypeMarket, types.OrderTypeLimit:
	}

	return false
}

func (b *BinanceBroker) expire(r *liveResting) {
	r.order.Status = types.OrderStatusExpired

	if r.venueResting {
		if err := b.api.CancelOrder(context.Background(), r.order.Asset.Symbol, r.venueID); err != nil {
			b.log.Warn("failed to cancel expired venue order",
				zap.String("order_id", r.order.OrderID),
				zap.Error(err),
			)
		}
	}

	b.log.Info("order expired", zap.String("order_id", r.order.OrderID))
}

// ExecuteOrder routes market and limit orders to the venue; stop, target,
// and trailing orders rest locally until their condition fires.
func (b *BinanceBroker) ExecuteOrder(order types.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	lot := b.LotSize(order.Asset)

	if order.IsExit {
		if pos, ok := b.portfolio.Position(order.Asset, order.Direction); ok {
			if open := pos.AbsNetSize(); order.Size > open {
				b.log.Info("clamping exit order to open position size",
					zap.String("order_id", order.OrderID),
					zap.Float64("requested", order.Size),
					zap.Float64("available", open),
				)

				order.Size = open
			}
		}
	}

	order.Size = utils.TruncateToLot(order.Size, lot)
	if order.Size < lot {
		return b.reject(order, errors.Newf(errors.ErrCodeOrderRejected,
			"order %s size below lot size %v", order.OrderID, lot))
	}

	switch order.Type {
	case types.OrderTypeMarket, types.OrderTypeLimit:
		return b.submit(order)
	case types.OrderTypeStop, types.OrderTypeTarget, types.OrderTypeTrailingStop:
		order.Status = types.OrderStatusSubmitted
		r := &liveResting{order: order}

		if order.Type == types.OrderTypeTrailingStop {
			if price, ok := b.CurrentPrice(order.Asset); ok {
				pct := order.StopPct.TakeOr(0)
				if order.Action == types.ActionSell {
					r.trail = price * (1 - pct)
				} else {
					r.trail = price * (1 + pct)
				}
			}
		}

		b.resting = append(b.resting, r)

		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidOrderType, "unknown order type %q", order.Type)
	}
}

// submit sends the order to the venue. A partial fill books a transaction
// for the executed quantity; the remainder stays resting at the venue
// until its time in force runs out.
func (b *BinanceBroker) submit(order types.Order) error {
	side := binance.SideTypeBuy
	if order.Action == types.ActionSell {
		side = binance.SideTypeSell
	}

	orderType := binance.OrderTypeMarket
	price := ""

	if order.Type == types.OrderTypeLimit {
		orderType = binance.OrderTypeLimit
		price = strconv.FormatFloat(order.Limit.TakeOr(0), 'f', -1, 64)
	}

	quantity := strconv.FormatFloat(order.Size, 'f', binanceDecimalPrecision, 64)

	res, err := b.api.CreateOrder(context.Background(), order.Asset.Symbol, side, orderType, quantity, price, binance.TimeInForceTypeGTC)
	if err != nil {
		return b.reject(order, errors.Wrap(errors.ErrCodeTransientVenue, "create order failed", err))
	}

	executed, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	if executed > 0 {
		fillPrice, commission := summarizeFills(res.Fills)
		if fillPrice == 0 {
			fillPrice, _ = b.CurrentPrice(order.Asset)
		}

		if err := b.book(order, executed, fillPrice, commission); err != nil {
			return err
		}
	}

	if executed < order.Size {
		// remainder rests at the venue
		remainder := order
		remainder.Size -= executed
		remainder.Status = types.OrderStatusSubmitted

		b.resting = append(b.resting, &liveResting{
			order:        remainder,
			venueID:      res.OrderID,
			venueResting: true,
		})
	}

	return nil
}

// summarizeFills returns the size-weighted average price and the total
// commission across the venue-reported fills.
func summarizeFills(fills []*binance.Fill) (float64, float64) {
	var notional, size, commission float64

	for _, f := range fills {
		p, _ := strconv.ParseFloat(f.Price, 64)
		q, _ := strconv.ParseFloat(f.Quantity, 64)
		c, _ := strconv.ParseFloat(f.Commission, 64)

		notional += p * q
		size += q
		commission += c
	}

	if size == 0 {
		return 0, commission
	}

	return notional / size, commission
}

func (b *BinanceBroker) book(order types.Order, size, price, commission float64) error {
	tx := types.Transaction{
		TransactionID: uuid.New().String(),
		OrderID:       order.OrderID,
		Asset:         order.Asset,
		Timeframe:     order.Timeframe,
		StrategyName:  order.StrategyName,
		Action:        order.Action,
		Direction:     order.Direction,
		Size:          size,
		Price:         decimal.NewFromFloat(price),
		Commission:    decimal.NewFromFloat(commission),
		Timestamp:     b.clock.CurrentTime(),
	}

	if err := b.portfolio.ApplyTransaction(tx, b.LotSize(order.Asset)); err != nil {
		return err
	}

	order.Status = types.OrderStatusFilled

	for _, cb := range b.callbacks {
		cb(tx, order)
	}

	return nil
}

func (b *BinanceBroker) reject(order types.Order, cause error) error {
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

	return cause
}

// Synchronize pulls balances and reconciles open positions with venue
// truth. Throttled; calls inside the refresh window return immediately.
func (b *BinanceBroker) Synchronize(ctx context.Context) error {
	now := b.clock.CurrentTime()
	if now.Sub(b.lastBalance) < balanceRefreshInterval {
		return nil
	}

	account, err := b.api.Account(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransientVenue, "account fetch failed", err)
	}

	b.lastBalance = now

	balances := make(map[string]float64, len(account.Balances))

	for _, bal := range account.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		balances[bal.Asset] = free + locked
	}

	// cash follows the venue's quote currency balance
	if venueCash, ok := balances[b.portfolio.Currency()]; ok {
		localCash := b.portfolio.CashFloat()
		if diff := venueCash - localCash; diff > 0 {
			b.portfolio.Deposit(diff, types.PortfolioEvent{Timestamp: now, Description: "venue balance sync"})
		} else if diff < 0 {
			if err := b.portfolio.Withdraw(-diff, types.PortfolioEvent{Timestamp: now, Description: "venue balance sync"}); err != nil {
				return err
			}
		}
	}

	// position sizes follow the venue's base asset balances
	for _, pos := range b.portfolio.Positions() {
		base := baseAsset(pos.Asset.Symbol, b.portfolio.Currency())

		venueSize, ok := balances[base]
		if !ok {
			continue
		}

		if venueSize != pos.AbsNetSize() {
			b.portfolio.ReconcilePosition(pos.Asset, pos.Direction, venueSize, now)
		}
	}

	return nil
}

// Trades fetches the account's fills for asset since the given time and
// translates them to Transactions. Spot fills are always long-side.
func (b *BinanceBroker) Trades(ctx context.Context, asset types.Asset, since time.Time) ([]types.Transaction, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	venueTrades, err := b.api.MyTrades(ctx, asset.Symbol, sinceMs)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeTransientVenue, err, "trade fetch failed for %s", asset.Symbol)
	}

	txs := make([]types.Transaction, 0, len(venueTrades))

	for _, t := range venueTrades {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "malformed trade price %q", t.Price)
		}

		size, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "malformed trade quantity %q", t.Quantity)
		}

		commission, err := decimal.NewFromString(t.Commission)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "malformed trade commission %q", t.Commission)
		}

		action := types.ActionSell
		if t.IsBuyer {
			action = types.ActionBuy
		}

		txs = append(txs, types.Transaction{
			TransactionID: strconv.FormatInt(t.ID, 10),
			OrderID:       strconv.FormatInt(t.OrderID, 10),
			Asset:         asset,
			Action:        action,
			Direction:     types.DirectionLong,
			Size:          size,
			Price:         price,
			Commission:    commission,
			Timestamp:     time.UnixMilli(t.Time).UTC(),
		})
	}

	return txs, nil
}

// baseAsset strips the quote currency suffix from a trading pair symbol,
// e.g. BTCUSDT with quote USDT yields BTC.
func baseAsset(symbol, quote string) string {
	if len(symbol) > len(quote) && symbol[len(symbol)-len(quote):] == quote {
		return symbol[:len(symbol)-len(quote)]
	}

	return symbol
}
