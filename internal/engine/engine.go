// Package engine runs the event loop: it pulls bar batches from the
// feed, advances the simulated clock, drives brokers, indicators and
// strategies in a fixed order, and drains the resulting signal and
// order events between batches. The loop is single threaded; given the
// same feed, configs and initial funds, two runs produce identical
// portfolio histories.
package engine

import (
	"context"
	"iter"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/broker"
	"github.com/rxtech-lab/tradeloop/internal/calendar"
	"github.com/rxtech-lab/tradeloop/internal/clock"
	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/indicator"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/order"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/internal/version"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Mode selects how strictly the engine treats data quality problems.
type Mode string

const (
	// ModeBacktest treats out-of-order bars as fatal.
	ModeBacktest Mode = "backtest"
	// ModeLive drops out-of-order bars with a warning and keeps running.
	ModeLive Mode = "live"
)

// Config holds the engine's run parameters.
type Config struct {
	Mode Mode `yaml:"mode" json:"mode"`

	// CloseAtEndOfDay flattens every open position before an exchange's
	// trading session closes. Requires a calendar for the exchange.
	CloseAtEndOfDay bool `yaml:"close_at_end_of_day" json:"close_at_end_of_day"`

	// MarkAtBarClose advances the clock to the bar's close time instead
	// of its open time.
	MarkAtBarClose bool `yaml:"mark_at_bar_close" json:"mark_at_bar_close"`

	// WarmupBars is the history depth loaded into the indicator graph
	// before the first live bar. Zero skips warmup.
	WarmupBars int `yaml:"warmup_bars" json:"warmup_bars"`
}

type strategyState struct {
	strategy Strategy
	ctx      *Context
	subs     map[string]bool
	halted   bool
}

// Engine owns the event loop and everything it drives.
type Engine struct {
	cfg        Config
	feed       feed.Feed
	clk        clock.Clock
	indicators *indicator.Manager
	orders     *order.Manager
	brokers    *broker.Manager
	recorder   Recorder
	calendars  map[string]calendar.MarketCalendar
	log        *logger.Logger

	queue      eventQueue
	strategies []*strategyState
	byName     map[string]*strategyState

	// lastSeen guards Step against duplicate and out-of-order live bars.
	lastSeen   map[string]time.Time
	subscribed bool
}

// NewEngine wires the loop's collaborators. Strategies and calendars
// are attached afterwards via Register and SetCalendar.
func NewEngine(
	cfg Config,
	f feed.Feed,
	clk clock.Clock,
	indicators *indicator.Manager,
	orders *order.Manager,
	brokers *broker.Manager,
	log *logger.Logger,
) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = ModeBacktest
	}

	return &Engine{
		cfg:        cfg,
		feed:       f,
		clk:        clk,
		indicators: indicators,
		orders:     orders,
		brokers:    brokers,
		recorder:   NopRecorder{},
		calendars:  make(map[string]calendar.MarketCalendar),
		log:        log,
		byName:     make(map[string]*strategyState),
		lastSeen:   make(map[string]time.Time),
	}
}

// SetRecorder attaches a persistence sink. Defaults to discarding.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// SetCalendar attaches the trading calendar for an exchange, used for
// end-of-day flattening.
func (e *Engine) SetCalendar(exchange string, cal calendar.MarketCalendar) {
	e.calendars[exchange] = cal
}

// Register checks the strategy's engine version, initializes it with
// its config document, and adds it to the loop.
func (e *Engine) Register(s Strategy, config string) error {
	if s.Name() == "" {
		return errors.New(errors.ErrCodeInvalidStrategy, "strategy has no name")
	}

	if _, exists := e.byName[s.Name()]; exists {
		return errors.Newf(errors.ErrCodeInvalidStrategy, "strategy %q already registered", s.Name())
	}

	if err := version.CheckCompatibility(version.Engine, s.EngineVersion()); err != nil {
		return err
	}

	if err := s.Initialize(config); err != nil {
		return errors.Wrapf(errors.ErrCodeEngineInitFailed, err, "failed to initialize strategy %q", s.Name())
	}

	subs := make(map[string]bool)
	for _, sub := range s.Subscriptions() {
		subs[sub.Key()] = true
	}

	st := &strategyState{
		strategy: s,
		subs:     subs,
		ctx: &Context{
			strategyName: s.Name(),
			clk:          e.clk,
			indicators:   e.indicators,
			brokers:      e.brokers,
			queue:        &e.queue,
		},
	}

	e.strategies = append(e.strategies, st)
	e.byName[s.Name()] = st

	return nil
}

func (e *Engine) preRunCheck() error {
	if e.feed == nil {
		return errors.New(errors.ErrCodeEngineNoFeed, "engine has no feed")
	}

	if len(e.strategies) == 0 {
		return errors.New(errors.ErrCodeEngineNoStrategy, "engine has no strategies")
	}

	if len(e.brokers.Brokers()) == 0 {
		return errors.New(errors.ErrCodeEngineInitFailed, "engine has no brokers")
	}

	return nil
}

// cursor pulls one subscription's candle series on demand.
type cursor struct {
	sub     feed.Subscription
	next    func() (types.Candle, error, bool)
	stop    func()
	cur     types.Candle
	done    bool
	started bool
	last    time.Time
}

// Run executes the loop until the feed is exhausted or the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.preRunCheck(); err != nil {
		return err
	}

	e.subscribeFills()

	subs := e.feed.Subscriptions()

	// bars sharing a timestamp are processed in a fixed order so reruns
	// are reproducible
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.Asset.Exchange != b.Asset.Exchange {
			return a.Asset.Exchange < b.Asset.Exchange
		}

		if a.Asset.Symbol != b.Asset.Symbol {
			return a.Asset.Symbol < b.Asset.Symbol
		}

		return a.Timeframe.Duration() < b.Timeframe.Duration()
	})

	cursors := make([]*cursor, 0, len(subs))

	for _, sub := range subs {
		var seq iter.Seq2[types.Candle, error] = e.feed.Candles(sub)
		next, stop := iter.Pull2(seq)
		c := &cursor{sub: sub, next: next, stop: stop}

		if err := e.advanceCursor(c); err != nil {
			return err
		}

		cursors = append(cursors, c)
	}

	defer func() {
		for _, c := range cursors {
			c.stop()
		}
	}()

	if err := e.warmUp(cursors); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := nextBatch(cursors)
		if len(batch) == 0 {
			return nil
		}

		batchTime := batch[0].cur.Timestamp
		e.advanceClock(batchTime, batch)

		for _, c := range batch {
			if err := e.processBar(c.sub, c.cur); err != nil {
				return err
			}
		}

		if err := e.drain(); err != nil {
			return err
		}

		for _, c := range batch {
			if err := e.advanceCursor(c); err != nil {
				return err
			}
		}

		if e.cfg.CloseAtEndOfDay {
			e.enqueueSessionCloses(batchTime, cursors)

			if err := e.drain(); err != nil {
				return err
			}
		}
	}
}

// Step processes one externally delivered bar and drains the resulting
// events. Live runners feed it from the websocket stream; duplicates
// are dropped silently, out-of-order bars per the engine mode.
func (e *Engine) Step(sub feed.Subscription, candle types.Candle) error {
	e.subscribeFills()

	key := sub.Key()

	if last, ok := e.lastSeen[key]; ok && !candle.Timestamp.After(last) {
		if candle.Timestamp.Equal(last) {
			return nil
		}

		if e.cfg.Mode == ModeBacktest {
			return errors.Newf(errors.ErrCodeOutOfOrderBar,
				"bar for %s at %s arrived after %s", key, candle.Timestamp, last)
		}

		e.log.Warn("dropping out-of-order bar",
			zap.String("series", key),
			zap.Time("timestamp", candle.Timestamp),
			zap.Time("last_seen", last),
		)

		return nil
	}

	e.lastSeen[key] = candle.Timestamp

	barClock := candle.Timestamp
	if e.cfg.MarkAtBarClose {
		barClock = barClock.Add(sub.Timeframe.Duration())
	}

	if sim, ok := e.clk.(*clock.SimulationClock); ok {
		sim.Advance(barClock)
	}

	if err := e.processBar(sub, candle); err != nil {
		return err
	}

	return e.drain()
}

// subscribeFills routes confirmed fills into the recorder, once.
func (e *Engine) subscribeFills() {
	if e.subscribed {
		return
	}

	e.subscribed = true

	for _, b := range e.brokers.Brokers() {
		b.OnTransaction(func(tx types.Transaction, o types.Order) {
			if err := e.recorder.RecordTransaction(tx, o); err != nil {
				e.log.Warn("failed to record transaction",
					zap.String("transaction_id", tx.TransactionID),
					zap.Error(err),
				)
			}
		})
	}
}

// warmUp primes the indicator graph with history preceding each series'
// first bar. Missing history is tolerated in live mode.
func (e *Engine) warmUp(cursors []*cursor) error {
	if e.cfg.WarmupBars <= 0 {
		return nil
	}

	for _, c := range cursors {
		if c.done {
			continue
		}

		history, err := e.feed.History(c.sub, c.cur.Timestamp, e.cfg.WarmupBars)
		if err != nil {
			if e.cfg.Mode == ModeLive {
				e.log.Warn("warmup history unavailable",
					zap.String("series", c.sub.Key()),
					zap.Error(err),
				)

				continue
			}

			return err
		}

		if err := e.indicators.WarmUp(c.sub.Asset, c.sub.Timeframe, history); err != nil {
			return err
		}
	}

	return nil
}

// advanceCursor pulls the next in-order bar, dropping duplicates. An
// out-of-order bar is fatal in backtests and a warning in live mode.
func (e *Engine) advanceCursor(c *cursor) error {
	for {
		candle, err, ok := c.next()
		if !ok {
			c.done = true
			c.stop()

			return nil
		}

		if err != nil {
			return err
		}

		if c.started && !candle.Timestamp.After(c.last) {
			if candle.Timestamp.Equal(c.last) {
				continue
			}

			if e.cfg.Mode == ModeBacktest {
				return errors.Newf(errors.ErrCodeOutOfOrderBar,
					"bar for %s at %s arrived after %s",
					c.sub.Key(), candle.Timestamp, c.last)
			}

			e.log.Warn("dropping out-of-order bar",
				zap.String("series", c.sub.Key()),
				zap.Time("timestamp", candle.Timestamp),
				zap.Time("last_seen", c.last),
			)

			continue
		}

		c.cur = candle
		c.last = candle.Timestamp
		c.started = true

		return nil
	}
}

// nextBatch returns every cursor sitting at the globally smallest
// timestamp. Cursor order is the deterministic subscription order.
func nextBatch(cursors []*cursor) []*cursor {
	var minTime time.Time

	found := false

	for _, c := range cursors {
		if c.done {
			continue
		}

		if !found || c.cur.Timestamp.Before(minTime) {
			minTime = c.cur.Timestamp
			found = true
		}
	}

	if !found {
		return nil
	}

	var batch []*cursor

	for _, c := range cursors {
		if !c.done && c.cur.Timestamp.Equal(minTime) {
			batch = append(batch, c)
		}
	}

	return batch
}

func (e *Engine) advanceClock(batchTime time.Time, batch []*cursor) {
	sim, ok := e.clk.(*clock.SimulationClock)
	if !ok {
		return
	}

	t := batchTime

	if e.cfg.MarkAtBarClose {
		base := batch[0].sub.Timeframe.Duration()
		for _, c := range batch[1:] {
			if d := c.sub.Timeframe.Duration(); d < base {
				base = d
			}
		}

		t = t.Add(base)
	}

	sim.Advance(t)
}

// processBar runs the fixed per-bar order: mark prices and evaluate
// resting orders, record, update indicators, then invoke strategies.
func (e *Engine) processBar(sub feed.Subscription, candle types.Candle) error {
	if err := e.brokers.UpdatePrice(candle); err != nil {
		if !errors.HasCode(err, errors.ErrCodeTransientVenue) {
			return err
		}

		e.log.Warn("transient venue error while marking price",
			zap.String("series", sub.Key()),
			zap.Error(err),
		)
	}

	if err := e.recorder.RecordCandle(sub, candle); err != nil {
		e.log.Warn("failed to record candle",
			zap.String("series", sub.Key()),
			zap.Error(err),
		)
	}

	e.indicators.Push(sub.Asset, sub.Timeframe, candle)

	key := sub.Key()

	for _, st := range e.strategies {
		if st.halted || !st.subs[key] {
			continue
		}

		st.ctx.currentBar = candle.Timestamp

		if err := st.strategy.OnCandle(st.ctx, candle, sub.Timeframe); err != nil {
			e.handleStrategyError(st, sub.Asset, candle.Timestamp, err)
		}
	}

	return nil
}

// handleStrategyError halts the strategy on an invariant violation;
// anything else is logged and the strategy keeps running. Other
// strategies are never affected.
func (e *Engine) handleStrategyError(st *strategyState, asset types.Asset, ts time.Time, err error) {
	if !errors.HasCode(err, errors.ErrCodeInvariantViolation) {
		e.log.Warn("strategy callback failed",
			zap.String("strategy", st.strategy.Name()),
			zap.Error(err),
		)

		return
	}

	st.halted = true

	e.log.Error("strategy halted on invariant violation",
		zap.String("strategy", st.strategy.Name()),
		zap.Error(err),
	)

	if b, berr := e.brokers.Broker(asset.Exchange); berr == nil {
		b.Portfolio().RecordEvent(types.PortfolioEvent{
			Type:        types.PortfolioEventStrategyHalted,
			Timestamp:   ts,
			Asset:       asset,
			CashAfter:   b.Portfolio().Cash(),
			Description: st.strategy.Name() + ": " + err.Error(),
		})
	}
}

// drain empties the event queue: signals become orders, orders are
// routed, market_eod events flatten an exchange. Events queued while
// draining are drained too.
func (e *Engine) drain() error {
	for {
		ev, ok := e.queue.pop()
		if !ok {
			return nil
		}

		switch ev.Kind {
		case EventSignal:
			e.drainSignal(ev)

		case EventOrder:
			if err := e.drainOrder(ev); err != nil {
				return err
			}

		case EventMarketEod:
			e.flattenExchange(ev)

		default:
			e.log.Warn("dropping event of unknown kind", zap.String("kind", string(ev.Kind)))
		}
	}
}

func (e *Engine) drainSignal(ev Event) {
	// a halted strategy may no longer open positions, but engine-forced
	// exits still flow through
	if st, ok := e.byName[ev.Signal.Strategy]; ok && st.halted && !ev.Signal.IsExit {
		return
	}

	if err := e.recorder.RecordSignal(ev.Signal); err != nil {
		e.log.Warn("failed to record signal",
			zap.String("signal_id", ev.Signal.ID()),
			zap.Error(err),
		)
	}

	orders, err := e.orders.PrepareOrders(ev.Signal)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeInvariantViolation) {
			e.haltByName(ev.Signal.Strategy, ev.Signal.Asset, ev.Timestamp, err)

			return
		}

		e.log.Warn("failed to prepare orders for signal",
			zap.String("signal_id", ev.Signal.ID()),
			zap.Error(err),
		)

		return
	}

	for _, o := range orders {
		e.queue.push(Event{Kind: EventOrder, Timestamp: ev.Timestamp, Order: o})
	}
}

func (e *Engine) drainOrder(ev Event) error {
	if err := e.recorder.RecordOrder(ev.Order); err != nil {
		e.log.Warn("failed to record order",
			zap.String("order_id", ev.Order.OrderID),
			zap.Error(err),
		)
	}

	err := e.orders.Route(ev.Order)
	if err == nil {
		return nil
	}

	switch {
	case errors.HasCode(err, errors.ErrCodeNoBrokerForVenue):
		return err

	case errors.HasCode(err, errors.ErrCodeInvariantViolation):
		e.haltByName(ev.Order.StrategyName, ev.Order.Asset, ev.Timestamp, err)

	default:
		// rejections are already recorded in the portfolio history
		e.log.Warn("order routing failed",
			zap.String("order_id", ev.Order.OrderID),
			zap.Error(err),
		)
	}

	return nil
}

func (e *Engine) haltByName(name string, asset types.Asset, ts time.Time, err error) {
	st, ok := e.byName[name]
	if !ok {
		return
	}

	e.handleStrategyError(st, asset, ts, err)
}

// enqueueSessionCloses emits a market_eod event for every exchange whose
// current session will have ended before the next bar arrives.
func (e *Engine) enqueueSessionCloses(batchTime time.Time, cursors []*cursor) {
	var nextTime time.Time

	haveNext := false

	for _, c := range cursors {
		if c.done {
			continue
		}

		if !haveNext || c.cur.Timestamp.Before(nextTime) {
			nextTime = c.cur.Timestamp
			haveNext = true
		}
	}

	for exchange, cal := range e.calendars {
		session, ok := cal.SessionAt(batchTime)
		if !ok {
			continue
		}

		if haveNext && session.Contains(nextTime) {
			continue
		}

		e.queue.push(Event{
			Kind:      EventMarketEod,
			Timestamp: batchTime,
			Exchange:  exchange,
		})
	}
}

// flattenExchange queues a market exit for every open leg on the
// exchange, attributed to the strategy that opened it.
func (e *Engine) flattenExchange(ev Event) {
	b, err := e.brokers.Broker(ev.Exchange)
	if err != nil {
		e.log.Warn("cannot flatten unknown exchange", zap.String("exchange", ev.Exchange))

		return
	}

	for _, pos := range b.Portfolio().Positions() {
		if !pos.IsOpen(b.LotSize(pos.Asset)) {
			continue
		}

		action := types.ActionSell
		if pos.Direction == types.DirectionShort {
			action = types.ActionBuy
		}

		e.log.Info("flattening position at session close",
			zap.String("asset", pos.Asset.String()),
			zap.String("direction", string(pos.Direction)),
			zap.Float64("size", pos.AbsNetSize()),
		)

		e.queue.push(Event{
			Kind:      EventSignal,
			Timestamp: ev.Timestamp,
			Signal: types.Signal{
				Asset:               pos.Asset,
				Timeframe:           pos.Timeframe,
				Action:              action,
				Direction:           pos.Direction,
				ConfidenceLevel:     1,
				Strategy:            pos.StrategyName,
				RootCandleTimestamp: ev.Timestamp,
				GenerationTime:      e.clk.CurrentTime(),
				IsExit:              true,
			},
		})
	}
}
