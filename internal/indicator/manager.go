package indicator

import (
	"fmt"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"go.uber.org/zap"
)

// Manager is the memoizing indicator factory. Nodes are indexed by
// (asset, timeframe, kind, parameters) so two strategies requesting the
// same indicator share one node and it is computed once per tick.
//
// Every derived node hangs off the candle source for its (asset,
// timeframe); subscription order is creation order, which is the
// topological order the graph executes in.
type Manager struct {
	log   *logger.Logger
	nodes map[string]any
	roots map[string]*RollingWindow[types.Candle]
}

// DefaultSourceSize is the candle history kept per (asset, timeframe)
// source node when no warmup history dictates a larger window.
const DefaultSourceSize = 512

// NewManager creates an empty indicator manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		log:   log,
		nodes: make(map[string]any),
		roots: make(map[string]*RollingWindow[types.Candle]),
	}
}

func key(asset types.Asset, tf types.Timeframe, kind string, params string) string {
	return fmt.Sprintf("%s|%s|%s", asset.Key(tf), kind, params)
}

// CandleSource returns the root candle window for (asset, timeframe),
// creating it on first use. The event loop pushes every bar into it.
func (m *Manager) CandleSource(asset types.Asset, tf types.Timeframe) *RollingWindow[types.Candle] {
	k := asset.Key(tf)
	if root, ok := m.roots[k]; ok {
		return root
	}

	root, _ := NewRollingWindow[types.Candle](DefaultSourceSize)
	m.roots[k] = root

	return root
}

// Push feeds one bar into the source node for (asset, timeframe),
// synchronously propagating through every derived node.
func (m *Manager) Push(asset types.Asset, tf types.Timeframe, c types.Candle) {
	m.CandleSource(asset, tf).Push(c)
}

// WarmUp sizes the source window to the larger of its current size and the
// history length, then replays the history through the graph so every
// derived node is warm before the loop starts.
func (m *Manager) WarmUp(asset types.Asset, tf types.Timeframe, history []types.Candle) error {
	root := m.CandleSource(asset, tf)

	if len(history) > root.Size() {
		if err := root.Resize(len(history)); err != nil {
			return err
		}
	}

	for _, c := range history {
		root.Push(c)
	}

	m.log.Debug("indicator warmup complete",
		zap.String("asset", asset.Key(tf)),
		zap.Int("bars", len(history)),
	)

	return nil
}

// memoize returns the cached node for k or builds, stores, and returns a
// new one.
func memoize[T any](m *Manager, k string, build func() (T, error)) (T, error) {
	if cached, ok := m.nodes[k]; ok {
		return cached.(T), nil
	}

	node, err := build()
	if err != nil {
		var zero T

		return zero, err
	}

	m.nodes[k] = node

	return node, nil
}

// SMA returns the shared close-price moving average for the parameters.
func (m *Manager) SMA(asset types.Asset, tf types.Timeframe, period int) (*SMA, error) {
	return memoize(m, key(asset, tf, "sma", fmt.Sprintf("%d", period)), func() (*SMA, error) {
		node, err := NewSMA(period)
		if err != nil {
			return nil, err
		}

		m.CandleSource(asset, tf).Subscribe(func(c types.Candle) {
			node.Push(c.Close)
		})

		return node, nil
	})
}

// SMACrossover returns the shared crossover of a fast and slow moving
// average. It only emits once both averages have a full period.
func (m *Manager) SMACrossover(asset types.Asset, tf types.Timeframe, fast, slow int) (*Crossover, error) {
	fastMA, err := m.SMA(asset, tf, fast)
	if err != nil {
		return nil, err
	}

	slowMA, err := m.SMA(asset, tf, slow)
	if err != nil {
		return nil, err
	}

	return memoize(m, key(asset, tf, "sma_crossover", fmt.Sprintf("%d-%d", fast, slow)), func() (*Crossover, error) {
		node := NewCrossover()

		// subscribing after both averages keeps the update order: averages
		// first, then the crossover reads their fresh outputs
		m.CandleSource(asset, tf).Subscribe(func(types.Candle) {
			if fastMA.Filled() && slowMA.Filled() {
				node.Push(fastMA.Data, slowMA.Data)
			}
		})

		return node, nil
	})
}

// Peak returns the shared peak detector over highs (side above) or lows
// (side below).
func (m *Manager) Peak(asset types.Asset, tf types.Timeframe, side BOSSide, order int, method PeakMethod) (*Peak, error) {
	k := key(asset, tf, "peak", fmt.Sprintf("%s-%d-%s", side, order, method))

	return memoize(m, k, func() (*Peak, error) {
		cmp := GreaterThan
		if side == BOSSideBelow {
			cmp = LessThan
		}

		node, err := NewPeak(cmp, order, method)
		if err != nil {
			return nil, err
		}

		m.CandleSource(asset, tf).Subscribe(func(c types.Candle) {
			if side == BOSSideBelow {
				node.Push(c.Low)
			} else {
				node.Push(c.High)
			}
		})

		return node, nil
	})
}

// PreviousExtrema returns the shared extrema tracker for the peak detector
// with the given parameters.
func (m *Manager) PreviousExtrema(asset types.Asset, tf types.Timeframe, side BOSSide, order int, method PeakMethod) (*PreviousExtrema, error) {
	peak, err := m.Peak(asset, tf, side, order, method)
	if err != nil {
		return nil, err
	}

	k := key(asset, tf, "previous_extrema", fmt.Sprintf("%s-%d-%s", side, order, method))

	return memoize(m, k, func() (*PreviousExtrema, error) {
		return NewPreviousExtrema(peak), nil
	})
}

// CandleBOS returns the shared break-of-structure detector on the given
// side.
func (m *Manager) CandleBOS(asset types.Asset, tf types.Timeframe, side BOSSide, order int) (*CandleBOS, error) {
	extrema, err := m.PreviousExtrema(asset, tf, side, order, PeakMethodFractal)
	if err != nil {
		return nil, err
	}

	k := key(asset, tf, "candle_bos", fmt.Sprintf("%s-%d", side, order))

	return memoize(m, k, func() (*CandleBOS, error) {
		node := NewCandleBOS(extrema, side)

		m.CandleSource(asset, tf).Subscribe(node.Push)

		return node, nil
	})
}

// Imbalance returns the shared unfilled-gap tracker.
func (m *Manager) Imbalance(asset types.Asset, tf types.Timeframe) (*Imbalance, error) {
	return memoize(m, key(asset, tf, "imbalance", ""), func() (*Imbalance, error) {
		node := NewImbalance()

		m.CandleSource(asset, tf).Subscribe(node.Push)

		return node, nil
	})
}

// TightTradingRange returns the shared congestion detector.
func (m *Manager) TightTradingRange(asset types.Asset, tf types.Timeframe, windowSize, minCount int) (*TightTradingRange, error) {
	k := key(asset, tf, "tight_trading_range", fmt.Sprintf("%d-%d", windowSize, minCount))

	return memoize(m, k, func() (*TightTradingRange, error) {
		node, err := NewTightTradingRange(windowSize, minCount)
		if err != nil {
			return nil, err
		}

		m.CandleSource(asset, tf).Subscribe(node.Push)

		return node, nil
	})
}

// ResistanceLevels returns the shared level tracker fed by high-side
// fractal extrema.
func (m *Manager) ResistanceLevels(asset types.Asset, tf types.Timeframe, order int, accuracy float64) (*ResistanceLevels, error) {
	extrema, err := m.PreviousExtrema(asset, tf, BOSSideAbove, order, PeakMethodFractal)
	if err != nil {
		return nil, err
	}

	k := key(asset, tf, "resistance_levels", fmt.Sprintf("%d-%f", order, accuracy))

	return memoize(m, k, func() (*ResistanceLevels, error) {
		node, err := NewResistanceLevels(accuracy)
		if err != nil {
			return nil, err
		}

		extrema.Subscribe(node.Push)

		return node, nil
	})
}

// TimeframedCandles returns the shared aggregated-candle window emitting
// one candle per target-timeframe bucket.
func (m *Manager) TimeframedCandles(asset types.Asset, base types.Timeframe, target types.Timeframe, size int) (*TimeFramedCandleRollingWindow, error) {
	k := key(asset, base, "timeframed_candles", fmt.Sprintf("%s-%d", target, size))

	return memoize(m, k, func() (*TimeFramedCandleRollingWindow, error) {
		node, err := NewTimeFramedCandleRollingWindow(size, target)
		if err != nil {
			return nil, err
		}

		m.CandleSource(asset, base).Subscribe(node.PushCandle)

		return node, nil
	})
}
