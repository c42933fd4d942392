package indicator

import (
	"github.com/rxtech-lab/tradeloop/internal/indicator/intervaltree"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// Imbalance detects unfilled gap ranges left by 2-bar explicit gaps and
// 3-bar imbalances, and tracks them in an interval tree until later bars
// retrace into them. A bar overlapping a stored gap trims it to the
// untouched remainder, or removes it entirely.
type Imbalance struct {
	window      *RollingWindow[types.Candle]
	gaps        *intervaltree.Tree
	subscribers []func([]intervaltree.Interval)

	// Data holds the currently unfilled gaps, ascending by price.
	Data []intervaltree.Interval
}

// NewImbalance creates an imbalance tracker.
func NewImbalance() *Imbalance {
	window, _ := NewRollingWindow[types.Candle](3)

	return &Imbalance{
		window: window,
		gaps:   intervaltree.New(),
	}
}

// Subscribe registers a downstream push function receiving the unfilled
// gap set after each tick.
func (im *Imbalance) Subscribe(push func([]intervaltree.Interval)) {
	im.subscribers = append(im.subscribers, push)
}

// Unfilled returns the current unfilled gap ranges.
func (im *Imbalance) Unfilled() []intervaltree.Interval {
	return im.gaps.All()
}

// Push feeds the next candle: first fills existing gaps the bar trades
// through, then records any new gap the bar completes.
func (im *Imbalance) Push(c types.Candle) {
	im.fill(intervaltree.Interval{Low: c.Low, High: c.High})
	im.window.Push(c)
	im.detect()

	im.Data = im.gaps.All()

	for _, push := range im.subscribers {
		push(im.Data)
	}
}

// addGap inserts a gap, merging it with any overlapping stored gap so the
// tree never holds duplicate or intersecting ranges.
func (im *Imbalance) addGap(gap intervaltree.Interval) {
	for _, existing := range im.gaps.Overlap(gap) {
		im.gaps.Remove(existing)

		if existing.Low < gap.Low {
			gap.Low = existing.Low
		}

		if existing.High > gap.High {
			gap.High = existing.High
		}
	}

	im.gaps.Insert(gap)
}

// fill trims every stored gap overlapped by the traded range. A gap fully
// inside the range disappears; a gap straddling it splits.
func (im *Imbalance) fill(traded intervaltree.Interval) {
	for _, gap := range im.gaps.Overlap(traded) {
		im.gaps.Remove(gap)

		if gap.Low < traded.Low {
			im.gaps.Insert(intervaltree.Interval{Low: gap.Low, High: traded.Low})
		}

		if gap.High > traded.High {
			im.gaps.Insert(intervaltree.Interval{Low: traded.High, High: gap.High})
		}
	}
}

func (im *Imbalance) detect() {
	count := im.window.Count()
	if count < 2 {
		return
	}

	cur, _ := im.window.Get(0)
	prev, _ := im.window.Get(-1)

	// 2-bar explicit gaps: price jumped clear of the previous bar's range.
	if prev.High < cur.Low {
		im.addGap(intervaltree.Interval{Low: prev.High, High: cur.Low})
	}

	if prev.Low > cur.High {
		im.addGap(intervaltree.Interval{Low: cur.High, High: prev.Low})
	}

	if count < 3 {
		return
	}

	// 3-bar imbalance: the outer bars never traded the range the middle
	// bar thrust through. The middle bar must be directional so retraces
	// do not register as fresh imbalances.
	first, _ := im.window.Get(-2)

	if first.High < cur.Low && prev.Close > prev.Open {
		im.addGap(intervaltree.Interval{Low: first.High, High: cur.Low})
	}

	if first.Low > cur.High && prev.Close < prev.Open {
		im.addGap(intervaltree.Interval{Low: cur.High, High: first.Low})
	}
}
