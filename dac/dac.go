// ABOUTME: Contract for the runtime-metadata backend (DAC equivalent)
// ABOUTME: Supplies raw segment, type, field and root data to the core

// Package dac defines the interface to the component that translates a
// target's raw memory into structured runtime metadata: heap segments,
// type layouts, field tables and GC roots. The inspection core treats it
// as an opaque collaborator; one implementation exists per runtime
// flavor and transport (snapshot, live process, remote debugger).
package dac

// Flavor tags the runtime variant the provider understands. It drives
// provider construction at session open; there is no subclassing beyond
// picking an implementation per flavor.
type Flavor int

const (
	FlavorUnknown Flavor = iota
	FlavorDesktop
	FlavorCore
)

func (f Flavor) String() string {
	switch f {
	case FlavorDesktop:
		return "desktop"
	case FlavorCore:
		return "core"
	default:
		return "unknown"
	}
}

// SegmentData is the raw descriptor of one heap segment as reported by
// the runtime.
type SegmentData struct {
	Start     uint64
	End       uint64 // committed end; object walks stop here
	Committed uint64
	Reserved  uint64
	Gen0Start uint64 // valid only when Ephemeral
	Gen1Start uint64 // valid only when Ephemeral
	Ephemeral bool
	Large     bool // large-object-heap segment
	HeapIndex int  // owning GC heap (server GC has several)
}

// TypeData is the raw descriptor of one type, keyed by method table.
type TypeData struct {
	MethodTable      uint64
	Name             string // fully qualified
	Token            uint32 // metadata token
	Module           string // declaring module name
	BaseSize         uint64
	ComponentSize    uint64 // element size for arrays/strings
	IsArray          bool
	IsString         bool
	ContainsPointers bool
}

// FieldData is the raw descriptor of one declared instance field.
type FieldData struct {
	Name             string
	Offset           uint64 // from object start, header included
	Kind             uint8  // typesys.ElemKind value
	FieldMethodTable uint64 // method table of the field's declared type
}

// Root kinds as reported by the runtime. Mirrored (not imported) to keep
// this package a leaf.
const (
	RootStatic uint8 = iota
	RootThreadStatic
	RootLocal
	RootStrongHandle
	RootWeakHandle
	RootPinnedHandle
	RootAsyncPinnedHandle
	RootRefCountHandle
	RootFinalizer
)

// Root flag bits.
const (
	RootFlagInterior uint8 = 1 << iota
	RootFlagPinned
	RootFlagPossibleFalsePositive
)

// RootData is one GC root as reported by the runtime: a slot at Address
// keeping the object at Object alive.
type RootData struct {
	Kind    uint8
	Name    string
	Address uint64
	Object  uint64
	Flags   uint8
}

// Provider supplies structured runtime metadata for one target. All
// data is valid only for the revision it was read at; consumers compare
// Revision before trusting cached results.
type Provider interface {
	Flavor() Flavor
	Revision() uint64

	// HeapSegments returns the raw segment descriptors for all GC heaps.
	HeapSegments() ([]SegmentData, error)

	// TypeData resolves a method table to its raw type descriptor. The
	// second result is false for unrecognized method tables.
	TypeData(methodTable uint64) (*TypeData, bool)

	// FieldData returns the declared instance fields of a type.
	FieldData(methodTable uint64) ([]FieldData, error)

	// EnumerateTypes visits every known type until fn returns false.
	// Best effort: a live runtime only knows types already constructed.
	EnumerateTypes(fn func(*TypeData) bool)

	// Roots returns the GC roots from all root sources in one pass:
	// statics, thread stacks, the handle table and the finalizer queue.
	Roots() ([]RootData, error)
}
