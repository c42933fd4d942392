// Package intervaltree implements an augmented binary search tree over
// half-open price ranges [low, high). The hot path only needs Insert,
// Overlap, and Remove, so the tree stays unbalanced; the handful of live
// intervals tracked per indicator keeps lookups cheap.
package intervaltree

// Interval is a half-open range [Low, High).
type Interval struct {
	Low  float64
	High float64
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Low < other.High && other.Low < i.High
}

// Contains reports whether v falls inside the interval.
func (i Interval) Contains(v float64) bool {
	return v >= i.Low && v < i.High
}

type node struct {
	interval    Interval
	maxHigh     float64
	left, right *node
}

// Tree is an interval tree keyed by Low, augmented with the subtree
// maximum High for pruned overlap queries.
type Tree struct {
	root *node
	size int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{}
}

// Len returns the number of stored intervals.
func (t *Tree) Len() int { return t.size }

// Insert adds an interval. Degenerate ranges (High <= Low) are ignored.
func (t *Tree) Insert(iv Interval) {
	if iv.High <= iv.Low {
		return
	}

	t.root = insert(t.root, iv)
	t.size++
}

func insert(n *node, iv Interval) *node {
	if n == nil {
		return &node{interval: iv, maxHigh: iv.High}
	}

	if iv.Low < n.interval.Low {
		n.left = insert(n.left, iv)
	} else {
		n.right = insert(n.right, iv)
	}

	if iv.High > n.maxHigh {
		n.maxHigh = iv.High
	}

	return n
}

// Overlap returns every stored interval intersecting query, in ascending
// Low order.
func (t *Tree) Overlap(query Interval) []Interval {
	var out []Interval

	overlap(t.root, query, &out)

	return out
}

func overlap(n *node, query Interval, out *[]Interval) {
	if n == nil || n.maxHigh <= query.Low {
		return
	}

	overlap(n.left, query, out)

	if n.interval.Overlaps(query) {
		*out = append(*out, n.interval)
	}

	if n.interval.Low < query.High {
		overlap(n.right, query, out)
	}
}

// Remove deletes the exact interval if present and reports whether it was
// found.
func (t *Tree) Remove(iv Interval) bool {
	var removed bool

	t.root = remove(t.root, iv, &removed)
	if removed {
		t.size--
	}

	return removed
}

func remove(n *node, iv Interval, removed *bool) *node {
	if n == nil {
		return nil
	}

	switch {
	case iv.Low < n.interval.Low:
		n.left = remove(n.left, iv, removed)
	case n.interval == iv && !*removed:
		*removed = true

		if n.left == nil {
			return n.right
		}

		if n.right == nil {
			return n.left
		}

		// replace with successor
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}

		n.interval = succ.interval

		var dummy bool

		n.right = remove(n.right, succ.interval, &dummy)
	default:
		n.right = remove(n.right, iv, removed)
	}

	n.maxHigh = n.interval.High
	if n.left != nil && n.left.maxHigh > n.maxHigh {
		n.maxHigh = n.left.maxHigh
	}

	if n.right != nil && n.right.maxHigh > n.maxHigh {
		n.maxHigh = n.right.maxHigh
	}

	return n
}

// All returns every stored interval in ascending Low order.
func (t *Tree) All() []Interval {
	var out []Interval

	walk(t.root, &out)

	return out
}

func walk(n *node, out *[]Interval) {
	if n == nil {
		return
	}

	walk(n.left, out)
	*out = append(*out, n.interval)
	walk(n.right, out)
}
