// ABOUTME: GC root model and one-pass enumeration over root sources
// ABOUTME: Roots carry kind, flags and the object address they keep alive

// Package gcroot enumerates the target's GC roots: statics, stack
// locals, handle-table entries and the finalizer queue. The enumerator
// surfaces whatever the runtime exposes, including heuristic roots
// flagged as possible false positives; filtering is the consumer's job.
package gcroot

import (
	"fmt"

	"github.com/clrlens/clrlens/clrheap"
	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/typesys"
)

// Kind classifies the source a root came from.
type Kind uint8

const (
	KindStatic Kind = iota
	KindThreadStatic
	KindLocal
	KindStrongHandle
	KindWeakHandle
	KindPinnedHandle
	KindAsyncPinnedHandle
	KindRefCountHandle
	KindFinalizer
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindThreadStatic:
		return "thread static"
	case KindLocal:
		return "local"
	case KindStrongHandle:
		return "strong handle"
	case KindWeakHandle:
		return "weak handle"
	case KindPinnedHandle:
		return "pinned handle"
	case KindAsyncPinnedHandle:
		return "async pinned handle"
	case KindRefCountHandle:
		return "refcount handle"
	case KindFinalizer:
		return "finalizer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Flags carries per-root qualifiers.
type Flags uint8

const (
	// FlagInterior marks a root pointing into the middle of an object
	// rather than at its start.
	FlagInterior Flags = 1 << iota

	// FlagPinned marks an object the GC may not move.
	FlagPinned

	// FlagPossibleFalsePositive marks a heuristic root. Some runtime
	// versions cannot report exact liveness; the root is surfaced
	// anyway and the consumer decides whether to trust it.
	FlagPossibleFalsePositive
)

// Root is one entry point keeping an object reachable: the slot at
// Address references the object at Object. Roots are produced
// transiently during one enumeration pass and never retained across
// target state changes.
type Root struct {
	Kind    Kind
	Name    string
	Address uint64 // address of the root slot itself
	Object  uint64 // address of the referenced object
	Flags   Flags
	Type    *typesys.Type // nil when the object's type cannot be resolved
}

// Interior reports the interior-pointer flag.
func (r *Root) Interior() bool { return r.Flags&FlagInterior != 0 }

// Pinned reports the pinned flag.
func (r *Root) Pinned() bool { return r.Flags&FlagPinned != 0 }

// PossibleFalsePositive reports the heuristic-root flag.
func (r *Root) PossibleFalsePositive() bool { return r.Flags&FlagPossibleFalsePositive != 0 }

// Enumerator produces the root set for one pass over a paused target.
type Enumerator struct {
	provider dac.Provider
	heap     *clrheap.Heap
}

// NewEnumerator creates an enumerator over the given provider and heap.
func NewEnumerator(provider dac.Provider, heap *clrheap.Heap) *Enumerator {
	return &Enumerator{provider: provider, heap: heap}
}

// EnumerateRoots returns every root the runtime reports, in the
// provider's order, which is deterministic for a paused target. Each
// root's type is resolved from its object's method table where
// possible; roots whose type or name is missing are still returned.
// Only a revision mismatch is an error.
func (e *Enumerator) EnumerateRoots() ([]*Root, error) {
	raw, err := e.provider.Roots()
	if err != nil {
		return nil, fmt.Errorf("enumerating roots: %w", err)
	}
	roots := make([]*Root, 0, len(raw))
	for _, rd := range raw {
		r := &Root{
			Kind:    Kind(rd.Kind),
			Name:    rd.Name,
			Address: rd.Address,
			Object:  rd.Object,
			Flags:   Flags(rd.Flags),
		}
		if rd.Object != 0 {
			t, err := e.heap.GetObjectType(rd.Object)
			if err != nil {
				return nil, err
			}
			r.Type = t
		}
		roots = append(roots, r)
	}
	return roots, nil
}
