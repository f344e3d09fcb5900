package core

import "fmt"

// Tag is the 2-bit state discriminant carried by every link of a NonOwningList.
// The tag of an element's next link decides which concurrent operation may act
// on that element next.
type Tag uint8

const (
	// TagStable marks a linked, quiescent node.
	TagStable Tag = iota
	// TagInserting marks a node that is mid-insertion, or claimed by a remover
	// that has not yet upgraded its claim.
	TagInserting
	// TagDeleting marks a node reserved for removal by exactly one remover.
	// A deleting link is frozen until its remover detaches the node.
	TagDeleting
	// TagWeak marks the head of a multi-node splice in progress.
	TagWeak

	tagCount
)

func (t Tag) String() string {
	switch t {
	case TagStable:
		return "stable"
	case TagInserting:
		return "inserting"
	case TagDeleting:
		return "deleting"
	case TagWeak:
		return "weak"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// link is the value of a tagged link: the node it points at plus its tag.
//
// Links are never allocated per operation. Each element owns the four links
// that can point at it (see Element.refs), so comparing two *link values
// compares (target, tag) pairs, exactly like a low-bit tagged pointer.
type link[T any] struct {
	target *Element[T]
	tag    Tag
}

// retag returns the link pointing at the same node as l with tag t.
// A nil link stays nil.
func retag[T any](l *link[T], t Tag) *link[T] {
	if l == nil {
		return nil
	}
	return l.target.ref(t)
}

func tagOf[T any](l *link[T]) Tag {
	if l == nil {
		return TagStable
	}
	return l.tag
}

func targetOf[T any](l *link[T]) *Element[T] {
	if l == nil {
		return nil
	}
	return l.target
}
