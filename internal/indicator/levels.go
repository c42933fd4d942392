package indicator

import (
	"github.com/rxtech-lab/tradeloop/internal/indicator/intervaltree"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// ResistanceLevels maintains support/resistance bands derived from price
// extrema. Bands within the accuracy tolerance of each other merge into
// one, so the tree holds disjoint level ranges.
type ResistanceLevels struct {
	levels   *intervaltree.Tree
	accuracy float64

	// Data holds the merged level bands, ascending by price.
	Data []intervaltree.Interval
}

// NewResistanceLevels creates a level tracker. Accuracy is the half-width
// of the band built around each recorded level and the merge tolerance.
func NewResistanceLevels(accuracy float64) (*ResistanceLevels, error) {
	if accuracy <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "level accuracy must be positive, got %f", accuracy)
	}

	return &ResistanceLevels{
		levels:   intervaltree.New(),
		accuracy: accuracy,
	}, nil
}

// Push records a level (typically an extremum price), merging it with any
// band within tolerance.
func (r *ResistanceLevels) Push(level float64) {
	band := intervaltree.Interval{Low: level - r.accuracy, High: level + r.accuracy}

	for _, existing := range r.levels.Overlap(band) {
		r.levels.Remove(existing)

		if existing.Low < band.Low {
			band.Low = existing.Low
		}

		if existing.High > band.High {
			band.High = existing.High
		}
	}

	r.levels.Insert(band)
	r.Data = r.levels.All()
}

// Levels returns the merged bands.
func (r *ResistanceLevels) Levels() []intervaltree.Interval {
	return r.levels.All()
}

// At reports whether price falls inside a tracked band.
func (r *ResistanceLevels) At(price float64) bool {
	return len(r.levels.Overlap(intervaltree.Interval{Low: price, High: price + 1e-12})) > 0
}

// TightTradingRange identifies congestion: a price band covered by at
// least K overlapping candle bodies within a window of N candles.
type TightTradingRange struct {
	window    *RollingWindow[types.Candle]
	minCount  int
	ranges    *intervaltree.Tree

	// Data holds the congestion ranges found in the current window.
	Data []intervaltree.Interval
}

// NewTightTradingRange creates a congestion detector over a window of
// windowSize candles requiring minCount overlapping bodies.
func NewTightTradingRange(windowSize, minCount int) (*TightTradingRange, error) {
	if minCount < 2 || minCount > windowSize {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"minCount must be in [2, windowSize], got %d for window %d", minCount, windowSize)
	}

	window, err := NewRollingWindow[types.Candle](windowSize)
	if err != nil {
		return nil, err
	}

	return &TightTradingRange{
		window:   window,
		minCount: minCount,
		ranges:   intervaltree.New(),
	}, nil
}

// Push feeds the next candle and recomputes the congestion ranges for the
// window.
func (t *TightTradingRange) Push(c types.Candle) {
	t.window.Push(c)
	t.recompute()
}

// Ranges returns the current congestion ranges.
func (t *TightTradingRange) Ranges() []intervaltree.Interval {
	return t.ranges.All()
}

// recompute sweeps the body edges of the windowed candles and keeps the
// price segments covered by at least minCount bodies.
func (t *TightTradingRange) recompute() {
	t.ranges = intervaltree.New()
	t.Data = nil

	candles := t.window.Values()
	if len(candles) < t.minCount {
		return
	}

	type edge struct {
		price float64
		delta int
	}

	edges := make([]edge, 0, 2*len(candles))

	for i := range candles {
		low, high := candles[i].Open, candles[i].Close
		if low > high {
			low, high = high, low
		}

		edges = append(edges, edge{price: low, delta: 1}, edge{price: high, delta: -1})
	}

	// insertion sort keeps the hot path allocation-free for small windows
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j].price < edges[j-1].price; j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}

	depth := 0
	start := 0.0
	open := false

	for _, e := range edges {
		depth += e.delta

		if depth >= t.minCount && !open {
			start = e.price
			open = true
		} else if depth < t.minCount && open {
			if e.price > start {
				t.ranges.Insert(intervaltree.Interval{Low: start, High: e.price})
			}

			open = false
		}
	}

	t.Data = t.ranges.All()
}
