package indicator

// SMA is a simple moving average over the last period values. Before the
// window fills it averages the values seen so far.
type SMA struct {
	window      *RollingWindow[float64]
	sum         float64
	subscribers []func(float64)

	// Data is the current average.
	Data float64
}

// NewSMA creates a moving average of the given period.
func NewSMA(period int) (*SMA, error) {
	window, err := NewRollingWindow[float64](period)
	if err != nil {
		return nil, err
	}

	return &SMA{window: window}, nil
}

// Period returns the configured period.
func (s *SMA) Period() int { return s.window.Size() }

// Filled reports whether a full period has been seen.
func (s *SMA) Filled() bool { return s.window.Filled() }

// Subscribe registers a downstream push function.
func (s *SMA) Subscribe(push func(float64)) {
	s.subscribers = append(s.subscribers, push)
}

// Push feeds the next value and emits the updated average.
func (s *SMA) Push(value float64) {
	if s.window.Filled() {
		oldest, _ := s.window.Get(-(s.window.Size() - 1))
		s.sum -= oldest
	}

	s.window.Push(value)
	s.sum += value
	s.Data = s.sum / float64(s.window.Count())

	for _, push := range s.subscribers {
		push(s.Data)
	}
}
