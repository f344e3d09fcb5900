package core

import "sync/atomic"

// CancellationCallback is a one-time callback registered on a token.
type CancellationCallback struct {
	hook Element[*CancellationCallback]
	fn   func()
}

// CancellationToken is a one-shot trigger. Tokens form a tree: triggering a
// token triggers every token attached below it. Children and callbacks are
// kept in lock-free lists, and whoever pops an entry is the one that runs it,
// so each callback fires at most once.
type CancellationToken struct {
	hook      Element[*CancellationToken]
	triggered atomic.Bool
	parent    atomic.Pointer[CancellationToken]
	children  *NonOwningList[*CancellationToken]
	callbacks *NonOwningList[*CancellationCallback]
}

func NewCancellationToken() *CancellationToken {
	t := &CancellationToken{
		children:  NewList[*CancellationToken](),
		callbacks: NewList[*CancellationCallback](),
	}
	t.hook.Init(t)
	return t
}

// Triggered reports whether Trigger has been called on t or an ancestor.
func (t *CancellationToken) Triggered() bool { return t.triggered.Load() }

// Trigger sets the token, runs its pending callbacks, triggers its children
// and detaches it from its parent. Only the first call does anything; it
// returns true.
func (t *CancellationToken) Trigger() bool {
	if !t.triggered.CompareAndSwap(false, true) {
		return false
	}
	for {
		e, ok := t.callbacks.PopBack()
		if !ok {
			break
		}
		e.Value().fn()
	}
	for {
		e, ok := t.children.PopBack()
		if !ok {
			break
		}
		child := e.Value()
		child.parent.CompareAndSwap(t, nil)
		child.Trigger()
	}
	t.Detach()
	return true
}

// AttachTo makes parent propagate its trigger to t. Attaching to a triggered
// parent triggers t immediately. A token has at most one parent.
func (t *CancellationToken) AttachTo(parent *CancellationToken) error {
	if parent == t {
		abortf("AttachTo", "token attached to itself")
	}
	if !t.parent.CompareAndSwap(nil, parent) {
		return ErrElementAlreadyInserted
	}
	if err := parent.children.PushFront(&t.hook); err != nil {
		t.parent.CompareAndSwap(parent, nil)
		return err
	}
	if parent.Triggered() && parent.children.Pop(&t.hook) == nil {
		// Parent's trigger drained its children before we got in.
		t.parent.CompareAndSwap(parent, nil)
		t.Trigger()
	}
	return nil
}

// Detach removes t from its parent. Detaching an unattached token does
// nothing.
func (t *CancellationToken) Detach() {
	if parent := t.parent.Swap(nil); parent != nil {
		_ = parent.children.Pop(&t.hook)
	}
}

// OnTrigger registers fn to run once when t is triggered. If t is already
// triggered, fn runs before OnTrigger returns.
func (t *CancellationToken) OnTrigger(fn func()) *CancellationCallback {
	cb := &CancellationCallback{fn: fn}
	cb.hook.Init(cb)
	if err := t.callbacks.PushFront(&cb.hook); err != nil {
		abortf("OnTrigger", "fresh callback already linked: %v", err)
	}
	if t.Triggered() && t.callbacks.Pop(&cb.hook) == nil {
		fn()
	}
	return cb
}

// RemoveCallback unregisters cb. It reports whether cb was removed before it
// fired.
func (t *CancellationToken) RemoveCallback(cb *CancellationCallback) bool {
	if cb == nil {
		return false
	}
	return t.callbacks.Pop(&cb.hook) == nil
}
