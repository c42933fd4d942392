package indicator

// CrossoverState is the internal state of the crossover state machine.
type CrossoverState string

const (
	CrossoverIdle         CrossoverState = "IDLE"
	CrossoverIdlePosTrend CrossoverState = "IDLE_POS_TREND"
	CrossoverIdleNegTrend CrossoverState = "IDLE_NEG_TREND"
	CrossoverPos          CrossoverState = "POS"
	CrossoverNeg          CrossoverState = "NEG"
)

// Crossover tracks the sign of a-b and emits +1 on a rising cross, -1 on a
// falling cross, and 0 otherwise. Equal inputs extend the current trend
// instead of breaking it, so a cross only fires after the sign actually
// flips through or past zero.
type Crossover struct {
	subscribers []func(int)

	// State is the current machine state.
	State CrossoverState
	// Data is the last emitted cross value: +1, -1 or 0.
	Data int
}

// NewCrossover creates a crossover node in the IDLE state.
func NewCrossover() *Crossover {
	return &Crossover{State: CrossoverIdle}
}

// Subscribe registers a downstream push function.
func (c *Crossover) Subscribe(push func(int)) {
	c.subscribers = append(c.subscribers, push)
}

// Push feeds the next (a, b) pair through the state machine.
func (c *Crossover) Push(a, b float64) {
	sign := 0

	switch {
	case a > b:
		sign = 1
	case a < b:
		sign = -1
	}

	c.State, c.Data = transition(c.State, sign)

	for _, push := range c.subscribers {
		push(c.Data)
	}
}

// transition implements the state table. Rows are the current state,
// columns the sign of a-b.
func transition(state CrossoverState, sign int) (CrossoverState, int) {
	switch state {
	case CrossoverIdle:
		if sign < 0 {
			return CrossoverIdleNegTrend, 0
		}

		return CrossoverIdlePosTrend, 0

	case CrossoverIdlePosTrend:
		if sign < 0 {
			return CrossoverNeg, -1
		}

		return CrossoverIdlePosTrend, 0

	case CrossoverIdleNegTrend:
		if sign > 0 {
			return CrossoverPos, 1
		}

		return CrossoverIdleNegTrend, 0

	case CrossoverPos:
		if sign < 0 {
			return CrossoverNeg, -1
		}

		return CrossoverIdlePosTrend, 0

	case CrossoverNeg:
		if sign >= 0 {
			return CrossoverPos, 1
		}

		return CrossoverIdleNegTrend, 0
	}

	return CrossoverIdle, 0
}
