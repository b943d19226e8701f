// ABOUTME: Heap segment model with generation sub-ranges
// ABOUTME: Alignment math for stepping object-to-object within a segment

// Package clrheap models the managed heap: segments with generation
// boundaries, address-to-segment lookup and the per-object walk over
// live memory. All data is a snapshot at one revision of the target;
// accessors fail with ErrRevisionChanged once the target moves on.
package clrheap

import "github.com/clrlens/clrlens/dac"

// Align rounds size up to the allocation granularity: pointer-size
// alignment on the small-object heap, one granularity step more for
// large-object-heap entries. The mask is 3 low bits for 4-byte pointers
// off the large heap, 7 low bits otherwise. Getting this wrong corrupts
// every next-object computation in a segment, so it lives in one place.
func Align(size uint64, ptrSize int, large bool) uint64 {
	var mask uint64 = 7
	if ptrSize == 4 && !large {
		mask = 3
	}
	return (size + mask) &^ mask
}

// Range is a half-open address interval [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Contains reports whether addr falls inside the range.
func (r Range) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// Empty reports whether the range spans no addresses.
func (r Range) Empty() bool { return r.Start >= r.End }

// Length returns the range's size in bytes.
func (r Range) Length() uint64 {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Segment is one contiguous region of heap memory. Segments are built
// once per heap snapshot and immutable; after a revision change the
// whole list is rebuilt.
type Segment struct {
	Start     uint64
	End       uint64 // committed end; the object walk stops here
	Reserved  uint64
	Ephemeral bool
	Large     bool
	HeapIndex int

	Gen0 Range
	Gen1 Range
	Gen2 Range
}

// NewSegment computes the generation sub-ranges from a raw descriptor.
// The ephemeral segment carries all three generations: gen0 runs from
// the reported gen0 cursor to segment end, gen1 from the gen1 cursor to
// the start of gen0, gen2 from segment start to the start of gen1. A
// non-ephemeral segment is all gen2, with gen0 and gen1 collapsed to
// empty ranges at the end.
func NewSegment(d dac.SegmentData) *Segment {
	s := &Segment{
		Start:     d.Start,
		End:       d.End,
		Reserved:  d.Reserved,
		Ephemeral: d.Ephemeral,
		Large:     d.Large,
		HeapIndex: d.HeapIndex,
	}
	if d.Ephemeral {
		s.Gen0 = Range{Start: d.Gen0Start, End: d.End}
		s.Gen1 = Range{Start: d.Gen1Start, End: d.Gen0Start}
		s.Gen2 = Range{Start: d.Start, End: d.Gen1Start}
	} else {
		s.Gen0 = Range{Start: d.End, End: d.End}
		s.Gen1 = Range{Start: d.End, End: d.End}
		s.Gen2 = Range{Start: d.Start, End: d.End}
	}
	return s
}

// Contains reports whether addr falls inside the segment's committed
// range.
func (s *Segment) Contains(addr uint64) bool { return addr >= s.Start && addr < s.End }

// Length returns the committed size in bytes.
func (s *Segment) Length() uint64 { return s.End - s.Start }

// GetGeneration returns 0, 1 or 2 by range membership, or -1 when the
// address is in none of the computed ranges. Callers probe foreign
// addresses all the time, so a miss is reported, never an error.
func (s *Segment) GetGeneration(addr uint64) int {
	switch {
	case s.Gen0.Contains(addr):
		return 0
	case s.Gen1.Contains(addr):
		return 1
	case s.Gen2.Contains(addr):
		return 2
	default:
		return -1
	}
}

// FirstObject returns the address of the segment's first object: the
// start of generation 2. A segment whose gen2 range is empty and which
// is not ephemeral holds no objects.
func (s *Segment) FirstObject() (uint64, bool) {
	if s.Gen2.Empty() && !s.Ephemeral {
		return 0, false
	}
	if s.Start >= s.End {
		return 0, false
	}
	return s.Start, true
}
