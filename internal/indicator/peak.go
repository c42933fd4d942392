package indicator

// PeakMethod selects how a local extremum is detected.
type PeakMethod string

const (
	// PeakMethodFractal requires monotone progression toward the center
	// from both sides.
	PeakMethodFractal PeakMethod = "fractal"
	// PeakMethodLocalExtrema only compares the center against each
	// neighbor independently.
	PeakMethodLocalExtrema PeakMethod = "local_extrema"
)

// Comparator reports whether a dominates b. Use GreaterThan for peaks and
// LessThan for troughs.
type Comparator func(a, b float64) bool

// GreaterThan is the comparator for detecting maxima.
func GreaterThan(a, b float64) bool { return a > b }

// LessThan is the comparator for detecting minima.
func LessThan(a, b float64) bool { return a < b }

// PeakEvent is the per-tick output of a Peak node.
type PeakEvent struct {
	// IsPeak reports whether the window center was a strict local extremum
	// this tick.
	IsPeak bool
	// Value is the center value that was examined.
	Value float64
}

// Peak watches a window of 2*order+1 values and determines whether the
// center element is a strict local extremum under the comparator.
type Peak struct {
	window      *RollingWindow[float64]
	cmp         Comparator
	order       int
	method      PeakMethod
	subscribers []func(PeakEvent)

	// Data is the last emitted event.
	Data PeakEvent
}

// NewPeak creates a peak detector of the given order.
func NewPeak(cmp Comparator, order int, method PeakMethod) (*Peak, error) {
	window, err := NewRollingWindow[float64](2*order + 1)
	if err != nil {
		return nil, err
	}

	return &Peak{
		window: window,
		cmp:    cmp,
		order:  order,
		method: method,
	}, nil
}

// Subscribe registers a downstream push function.
func (p *Peak) Subscribe(push func(PeakEvent)) {
	p.subscribers = append(p.subscribers, push)
}

// Push feeds the next value. The node emits once per tick; before the
// window fills it emits non-peak events.
func (p *Peak) Push(value float64) {
	p.window.Push(value)

	event := PeakEvent{}

	if p.window.Filled() {
		center, _ := p.window.Get(-p.order)
		event.Value = center
		event.IsPeak = p.isExtremum(center)
	}

	p.Data = event

	for _, push := range p.subscribers {
		push(event)
	}
}

func (p *Peak) isExtremum(center float64) bool {
	values := p.window.Values()

	switch p.method {
	case PeakMethodFractal:
		// strictly monotone toward the center from the left, strictly
		// monotone away from it on the right, in comparator order
		for i := 0; i < p.order; i++ {
			if !p.cmp(values[i+1], values[i]) {
				return false
			}
		}

		for i := p.order; i < 2*p.order; i++ {
			if !p.cmp(values[i], values[i+1]) {
				return false
			}
		}

		return true

	case PeakMethodLocalExtrema:
		for i, v := range values {
			if i == p.order {
				continue
			}

			if !p.cmp(center, v) {
				return false
			}
		}

		return true
	}

	return false
}

// PreviousExtrema tracks the value of the most recent extremum seen by an
// upstream Peak node.
type PreviousExtrema struct {
	subscribers []func(float64)

	// Data is the most recent extremum value.
	Data float64
	// Seen reports whether any extremum has occurred yet.
	Seen bool
	// Broken marks the extremum as consumed by a break-of-structure. Reset
	// when a new extremum arrives.
	Broken bool
}

// NewPreviousExtrema creates the node and subscribes it to the source peak
// detector.
func NewPreviousExtrema(source *Peak) *PreviousExtrema {
	e := &PreviousExtrema{}
	source.Subscribe(e.push)

	return e
}

func (e *PreviousExtrema) push(event PeakEvent) {
	if !event.IsPeak {
		return
	}

	e.Data = event.Value
	e.Seen = true
	e.Broken = false

	for _, push := range e.subscribers {
		push(event.Value)
	}
}

// Subscribe registers a downstream push function invoked whenever a new
// extremum is recorded.
func (e *PreviousExtrema) Subscribe(push func(float64)) {
	e.subscribers = append(e.subscribers, push)
}

// ExtremaChange reports whether the tracked extremum changed this tick.
type ExtremaChange struct {
	source *PreviousExtrema
	last   float64
	seen   bool

	// Data is true when the extremum changed on the most recent tick.
	Data bool
}

// NewExtremaChange creates the node and subscribes it to the source peak
// detector. The extrema tracker must already be subscribed to the same
// source so the tracker updates first in topological order.
func NewExtremaChange(source *Peak, extrema *PreviousExtrema) *ExtremaChange {
	c := &ExtremaChange{source: extrema}

	source.Subscribe(func(PeakEvent) {
		c.Data = extrema.Seen && (!c.seen || extrema.Data != c.last)

		if extrema.Seen {
			c.last = extrema.Data
			c.seen = true
		}
	})

	return c
}
