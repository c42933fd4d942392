package indicator

import (
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// RollingWindow is a fixed-capacity ring buffer over the last N pushed
// values. Index 0 is the newest value and negative offsets reach older
// ones: w.Get(-k) is the value pushed k ticks ago.
//
// The buffer is allocated once; warmup may grow it but never shrink it
// after ticks have been pushed.
type RollingWindow[T any] struct {
	buf         []T
	head        int // position of the newest value
	count       int
	subscribers []func(T)

	// Data is the last pushed value.
	Data T
}

// NewRollingWindow creates a window of the given size.
func NewRollingWindow[T any](size int) (*RollingWindow[T], error) {
	if size <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidWindowSize, "window size must be positive, got %d", size)
	}

	return &RollingWindow[T]{
		buf:  make([]T, size),
		head: -1,
	}, nil
}

// Size returns the window capacity.
func (w *RollingWindow[T]) Size() int { return len(w.buf) }

// Count returns how many values have been pushed, capped at Size.
func (w *RollingWindow[T]) Count() int { return w.count }

// Filled reports whether the window has seen at least Size values.
func (w *RollingWindow[T]) Filled() bool { return w.count >= len(w.buf) }

// Subscribe registers a downstream push function.
func (w *RollingWindow[T]) Subscribe(push func(T)) {
	w.subscribers = append(w.subscribers, push)
}

// Push inserts a value, evicting the oldest when full, then notifies
// subscribers.
func (w *RollingWindow[T]) Push(value T) {
	w.insert(value)

	for _, push := range w.subscribers {
		push(value)
	}
}

func (w *RollingWindow[T]) insert(value T) {
	w.head = (w.head + 1) % len(w.buf)
	w.buf[w.head] = value

	if w.count < len(w.buf) {
		w.count++
	}

	w.Data = value
}

// Get returns the value at a non-positive offset: Get(0) is the newest,
// Get(-k) the value k ticks older. Offsets outside the seen window are an
// error.
func (w *RollingWindow[T]) Get(offset int) (T, error) {
	var zero T

	if offset > 0 || -offset >= w.count {
		return zero, errors.Newf(errors.ErrCodeWindowOutOfRange,
			"offset %d out of range for window with %d values", offset, w.count)
	}

	idx := (w.head + offset + len(w.buf)*2) % len(w.buf)

	return w.buf[idx], nil
}

// Slice returns a contiguous logical view [from, to] of non-positive
// offsets, oldest first, regardless of the underlying ring position.
// Slice(-2, 0) returns the last three values in push order.
func (w *RollingWindow[T]) Slice(from, to int) ([]T, error) {
	if from > to {
		return nil, errors.Newf(errors.ErrCodeWindowOutOfRange, "invalid slice range [%d, %d]", from, to)
	}

	out := make([]T, 0, to-from+1)

	for offset := from; offset <= to; offset++ {
		v, err := w.Get(offset)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

// Values returns all seen values, oldest first.
func (w *RollingWindow[T]) Values() []T {
	if w.count == 0 {
		return nil
	}

	out, _ := w.Slice(-(w.count - 1), 0)

	return out
}

// Prefill seeds the window with historical values without firing
// subscribers for any but the last value. Used during warmup so downstream
// nodes see exactly one tick.
func (w *RollingWindow[T]) Prefill(values []T) {
	if len(values) == 0 {
		return
	}

	for _, v := range values[:len(values)-1] {
		w.insert(v)
	}

	w.Push(values[len(values)-1])
}

// Resize grows the window to newSize, preserving existing values in order.
// Shrinking after ticks have been pushed is not permitted.
func (w *RollingWindow[T]) Resize(newSize int) error {
	if newSize == len(w.buf) {
		return nil
	}

	if newSize < len(w.buf) && w.count > 0 {
		return errors.Newf(errors.ErrCodeWindowShrink,
			"cannot shrink window from %d to %d after values have been pushed", len(w.buf), newSize)
	}

	if newSize <= 0 {
		return errors.Newf(errors.ErrCodeInvalidWindowSize, "window size must be positive, got %d", newSize)
	}

	values := w.Values()
	w.buf = make([]T, newSize)
	w.head = -1
	w.count = 0

	for _, v := range values {
		w.insert(v)
	}

	return nil
}
