// Package indicator implements the reactive indicator graph: a DAG of
// stateful stream nodes updated exactly once per input tick, in topological
// order. A node pushes to its subscribers synchronously, and only after its
// own state reflects the pushed value.
package indicator

// Stream is the base node of the graph. It applies a transform to each
// pushed input, stores the result as its latest output, and fans the output
// out to subscribers in subscription order.
type Stream[I, O any] struct {
	transform   func(I) O
	subscribers []func(O)

	// Data is the latest output. After a push it equals what subscribers
	// last received.
	Data O
	// Ticks counts how many values have been pushed.
	Ticks int
}

// NewStream creates a stream node with the given transform.
func NewStream[I, O any](transform func(I) O) *Stream[I, O] {
	return &Stream[I, O]{transform: transform}
}

// Subscribe registers a downstream push function. Subscribers are invoked
// synchronously in registration order on every push.
func (s *Stream[I, O]) Subscribe(push func(O)) {
	s.subscribers = append(s.subscribers, push)
}

// Push applies the transform, updates Data, then notifies subscribers.
func (s *Stream[I, O]) Push(value I) {
	s.Data = s.transform(value)
	s.Ticks++
	s.emit(s.Data)
}

// emit fans a value out without touching Data. Derived nodes that manage
// Data themselves call it directly.
func (s *Stream[I, O]) emit(value O) {
	for _, push := range s.subscribers {
		push(value)
	}
}
