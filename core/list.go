package core

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Element is the intrusive hook a NonOwningList links. Callers embed it in
// their own objects; the list never allocates or frees elements.
//
// An element must be initialised with Init or InitMultiContainer before its
// first use, and must be unlinked (or never linked) before its owner drops it.
type Element[T any] struct {
	next  atomic.Pointer[link[T]]
	owner atomic.Pointer[NonOwningList[T]]
	refs  [tagCount]link[T]
	value T
	multi bool
}

// Init prepares a single-container element carrying value.
func (e *Element[T]) Init(value T) *Element[T] {
	e.init("Element.Init", value, false)
	return e
}

// InitMultiContainer prepares an element that may move between list
// instances. Such elements record their current owner, which lets Pop report
// ErrNotFound instead of unlinking from the wrong list.
func (e *Element[T]) InitMultiContainer(value T) *Element[T] {
	e.init("Element.InitMultiContainer", value, true)
	return e
}

func (e *Element[T]) init(op string, value T, multi bool) {
	if e.next.Load() != nil {
		abortf(op, "element is still linked")
	}
	for t := range tagCount {
		e.refs[t] = link[T]{target: e, tag: t}
	}
	e.value = value
	e.multi = multi
	e.owner.Store(nil)
}

// Value returns the value the element was initialised with.
func (e *Element[T]) Value() T { return e.value }

// Linked reports whether the element currently sits in (or is entering or
// leaving) a list.
func (e *Element[T]) Linked() bool { return e.next.Load() != nil }

func (e *Element[T]) ref(t Tag) *link[T] {
	r := &e.refs[t]
	if r.target != e {
		abortf("Element", "element used before Init")
	}
	return r
}

// ListOption configures a NonOwningList.
type ListOption func(*listOptions)

type listOptions struct {
	retryCeiling int
}

// WithRetryCeiling aborts with an InvariantViolation when a single operation
// retries more than n times. Zero (the default) retries without bound.
func WithRetryCeiling(n int) ListOption {
	return func(o *listOptions) { o.retryCeiling = n }
}

// NonOwningList is a lock-free intrusive list bounded by two permanent
// sentinels. Elements are pushed next to the front sentinel and may be popped
// from any position, by any number of goroutines concurrently.
//
// Older elements drift toward the back, so PopBack gives approximately FIFO
// order. Concurrent pushes may be observed in either relative order.
type NonOwningList[T any] struct {
	front Element[T]
	_     cpu.CacheLinePad
	back  Element[T]
	_     cpu.CacheLinePad
	size  atomic.Int64

	retryCeiling int
	// spliceHook runs between marking a multi-node splice and verifying its
	// run. Nil outside tests.
	spliceHook func()
}

// NewList creates an empty list: front -> back.
func NewList[T any](opts ...ListOption) *NonOwningList[T] {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}
	var zero T
	l := &NonOwningList[T]{retryCeiling: o.retryCeiling}
	l.front.init("NewList", zero, false)
	l.back.init("NewList", zero, false)
	l.front.next.Store(l.back.ref(TagStable))
	return l
}

// Size returns the element counter. While operations are in flight it may
// briefly lag behind the linked structure; a Pop that overtakes the PushFront
// it removes would make it negative, so it is clamped at zero.
func (l *NonOwningList[T]) Size() int { return int(max(l.size.Load(), 0)) }

// Empty reports whether the element counter is zero.
func (l *NonOwningList[T]) Empty() bool { return l.size.Load() <= 0 }

// Front returns the most recently pushed element, or nil.
func (l *NonOwningList[T]) Front() *Element[T] {
	n := targetOf(l.front.next.Load())
	if n == &l.back {
		return nil
	}
	return n
}

// Back returns the oldest element, or nil. The list has no reverse links, so
// this walks the chain.
func (l *NonOwningList[T]) Back() *Element[T] {
	prev, _, ok := l.findPrevious(&l.back)
	if !ok {
		abortf("Back", "back sentinel unreachable from front")
	}
	if prev == &l.front {
		return nil
	}
	return prev
}

// PushFront links e right after the front sentinel.
func (l *NonOwningList[T]) PushFront(e *Element[T]) error {
	var attempts int
	for {
		frontNext := l.front.next.Load()
		if !e.next.CompareAndSwap(nil, retag(frontNext, TagInserting)) {
			return ErrElementAlreadyInserted
		}
		// e is reserved; publishing it is the last step, so a discoverable
		// element is always consistent.
		if l.front.next.CompareAndSwap(frontNext, e.ref(TagStable)) {
			break
		}
		e.next.Store(nil)
		l.spin("PushFront", &attempts)
	}

	if e.multi {
		e.owner.Store(l)
	}
	l.settle("PushFront", e, TagInserting, TagStable)
	l.size.Add(1)
	return nil
}

// Pop unlinks e from wherever it sits in the chain.
func (l *NonOwningList[T]) Pop(e *Element[T]) error {
	var attempts int
	for {
		cur := e.next.Load()
		if cur == nil || cur.tag == TagInserting || cur.tag == TagDeleting {
			return ErrElementAlreadyRemoved
		}
		if e.next.CompareAndSwap(cur, cur.target.ref(TagInserting)) {
			break
		}
		l.spin("Pop", &attempts)
	}

	if e.multi && e.owner.Load() != l {
		l.settle("Pop", e, TagInserting, TagStable)
		return ErrNotFound
	}

	// From here no other operation can insert or remove e.
	l.settle("Pop", e, TagInserting, TagDeleting)
	l.unlink(e)

	// Detach last: e becomes insertable again only once it is out of the chain.
	e.next.Store(nil)
	l.size.Add(-1)
	return nil
}

// PopBack removes and returns the oldest element.
func (l *NonOwningList[T]) PopBack() (*Element[T], bool) {
	var attempts int
	for {
		e := l.Back()
		if e == nil {
			return nil, false
		}
		if l.Pop(e) == nil {
			return e, true
		}
		l.spin("PopBack", &attempts)
	}
}

// Clear pops every element and returns how many were removed.
func (l *NonOwningList[T]) Clear() int {
	n := 0
	for {
		if _, ok := l.PopBack(); !ok {
			return n
		}
		n++
	}
}

// unlink removes e, already tagged deleting, from the chain.
func (l *NonOwningList[T]) unlink(e *Element[T]) {
	var attempts int
	for ; ; l.spin("Pop", &attempts) {
		nodeNext := targetOf(e.next.Load())
		if nodeNext == nil {
			abortf("Pop", "deleting element lost its next link")
		}

		prev, raw, ok := l.findPrevious(e)
		if !ok {
			// A concurrent splice took e out together with its own node.
			return
		}

		// Predecessors that are themselves being deleted have frozen links.
		// Walk back to the first live one and splice the whole run.
		distance := 1
		for ok && raw.tag == TagDeleting {
			prev, raw, ok = l.findPrevious(prev)
			distance++
		}
		if !ok {
			continue
		}

		marked := false
		if distance > 1 {
			switch raw.tag {
			case TagStable:
				weak := raw.target.ref(TagWeak)
				if !prev.next.CompareAndSwap(raw, weak) {
					continue
				}
				raw, marked = weak, true
			case TagWeak:
				// Reserved by a splice whose run is a prefix of ours.
			case TagInserting:
				// prev is not the front sentinel, nothing can be re-linked
				// behind it while we verify the run.
			}
			if l.spliceHook != nil {
				l.spliceHook()
			}
			if !l.runIntact(raw.target, distance-1, e) {
				if marked {
					prev.next.CompareAndSwap(raw, raw.target.ref(TagStable))
				}
				continue
			}
		}

		replacement := nodeNext.ref(TagStable)
		if raw.tag == TagInserting {
			replacement = nodeNext.ref(TagInserting)
		}
		if prev.next.CompareAndSwap(raw, replacement) {
			return
		}
		if marked {
			prev.next.CompareAndSwap(raw, raw.target.ref(TagStable))
		}
	}
}

// runIntact reports whether following hops deleting links from first ends at e.
func (l *NonOwningList[T]) runIntact(first *Element[T], hops int, e *Element[T]) bool {
	node := first
	for range hops {
		next := node.next.Load()
		if next == nil || next.tag != TagDeleting {
			return false
		}
		node = next.target
	}
	return node == e
}

// findPrevious searches for the node whose next link points at target. It
// returns that node and the raw link value it observed.
//
// A nil link means the node was detached under us; the search restarts from
// front, never from the vanished node, so it stays correct even if that node
// was meanwhile moved into another list.
func (l *NonOwningList[T]) findPrevious(target *Element[T]) (*Element[T], *link[T], bool) {
	var restarts int
	node := &l.front
	for node != &l.back {
		raw := node.next.Load()
		if raw == nil {
			l.spin("findPrevious", &restarts)
			node = &l.front
			continue
		}
		if raw.target == target {
			return node, raw, true
		}
		node = raw.target
	}
	return nil, nil, false
}

// settle moves e's next link from tag from to tag to. Only the goroutine that
// set from may do this; others can change the link target but never its tag.
func (l *NonOwningList[T]) settle(op string, e *Element[T], from, to Tag) {
	var attempts int
	for {
		cur := e.next.Load()
		if cur == nil || cur.tag != from {
			abortf(op, "expected a %s link, found %s", from, describeLink(cur))
		}
		if e.next.CompareAndSwap(cur, cur.target.ref(to)) {
			return
		}
		l.spin(op, &attempts)
	}
}

func (l *NonOwningList[T]) spin(op string, attempts *int) {
	*attempts++
	if l.retryCeiling > 0 && *attempts > l.retryCeiling {
		abortf(op, "no progress after %d retries", l.retryCeiling)
	}
	if *attempts&63 == 0 {
		runtime.Gosched()
	}
}

// SanityCheck walks the chain while no operation is in flight and verifies
// that every link is stable, every element is visited once, a predecessor
// search finds each element's true predecessor, and the walk length matches
// Size. check, if non-nil, is applied to every value.
func (l *NonOwningList[T]) SanityCheck(check func(T) bool) (int, error) {
	seen := make(map[*Element[T]]struct{})
	prev := &l.front
	n := 0
	for {
		raw := prev.next.Load()
		if raw == nil {
			return n, fmt.Errorf("%w: nil link after %d elements", ErrListCorrupted, n)
		}
		if raw.tag != TagStable {
			return n, fmt.Errorf("%w: %s link after %d elements", ErrListCorrupted, raw.tag, n)
		}
		node := raw.target
		if node == &l.back {
			break
		}
		if _, dup := seen[node]; dup {
			return n, fmt.Errorf("%w: element visited twice", ErrListCorrupted)
		}
		seen[node] = struct{}{}

		if p, _, ok := l.findPrevious(node); !ok || p != prev {
			return n, fmt.Errorf("%w: predecessor search disagrees at element %d", ErrListCorrupted, n)
		}
		if node.multi && node.owner.Load() != l {
			return n, fmt.Errorf("%w: element %d owned by another list", ErrListCorrupted, n)
		}
		if check != nil && !check(node.value) {
			return n, fmt.Errorf("%w: element %d rejected by check", ErrListCorrupted, n)
		}
		n++
		prev = node
	}

	if size := l.Size(); size != n {
		return n, fmt.Errorf("%w: walked %d elements, size is %d", ErrListCorrupted, n, size)
	}
	if back := l.Back(); (prev == &l.front) != (back == nil) || (back != nil && back != prev) {
		return n, fmt.Errorf("%w: back does not match the last element", ErrListCorrupted)
	}
	return n, nil
}

func describeLink[T any](l *link[T]) string {
	if l == nil {
		return "nil"
	}
	return l.tag.String() + " link"
}
