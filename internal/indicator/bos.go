package indicator

import (
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// BOSSide selects which side of structure the detector watches.
type BOSSide string

const (
	// BOSSideAbove fires on closes above the tracked high extremum.
	BOSSideAbove BOSSide = "above"
	// BOSSideBelow fires on closes below the tracked low extremum.
	BOSSideBelow BOSSide = "below"
)

// CandleBOS detects a break of structure: two consecutive non-pin-bar
// candles closing beyond the most recent extremum on the configured side,
// provided the extremum has not already been marked broken. On detection
// the extremum is marked broken so one structure level fires at most once.
type CandleBOS struct {
	extrema     *PreviousExtrema
	side        BOSSide
	prevBeyond  bool
	subscribers []func(float64)

	// Data is true when a break of structure fired on the latest candle.
	Data bool
	// Level is the extremum price that was broken, valid when Data is true.
	Level float64
}

// NewCandleBOS creates a break-of-structure detector fed by the given
// extrema tracker.
func NewCandleBOS(extrema *PreviousExtrema, side BOSSide) *CandleBOS {
	return &CandleBOS{
		extrema: extrema,
		side:    side,
	}
}

// Subscribe registers a downstream push function invoked with the broken
// level on every fire.
func (b *CandleBOS) Subscribe(push func(level float64)) {
	b.subscribers = append(b.subscribers, push)
}

// Push feeds the next candle. The feeding order must place the extrema
// tracker's own update before this call so the node sees current structure.
func (b *CandleBOS) Push(c types.Candle) {
	b.Data = false

	if !b.extrema.Seen || b.extrema.Broken {
		b.prevBeyond = false

		return
	}

	// pin bars cannot confirm a break
	beyond := !c.IsPinBar() && b.closesBeyond(c)

	if beyond && b.prevBeyond {
		b.Data = true
		b.Level = b.extrema.Data
		b.extrema.Broken = true
		b.prevBeyond = false

		for _, push := range b.subscribers {
			push(b.Level)
		}

		return
	}

	b.prevBeyond = beyond
}

func (b *CandleBOS) closesBeyond(c types.Candle) bool {
	if b.side == BOSSideAbove {
		return c.Close > b.extrema.Data
	}

	return c.Close < b.extrema.Data
}
