// ABOUTME: Heap abstraction: sorted segments, address lookup, object walk
// ABOUTME: Rotating last-used-segment cache and revision-stamped accessors

package clrheap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/typesys"
)

// ErrRevisionChanged is the fatal error returned when heap data from an
// earlier revision is used after the target's heap state moved on.
// Continuing would read through addresses that may now belong to
// different objects, so callers must rebuild the heap, never retry.
var ErrRevisionChanged = errors.New("heap revision changed: segment data is stale")

// Heap owns the sorted segment list for one revision of the target and
// resolves addresses to segments and objects to types.
type Heap struct {
	provider dac.Provider
	reader   target.Reader
	resolver *typesys.Resolver
	logger   log.Logger

	revision uint64
	segments []*Segment // sorted by Start, non-overlapping
	minAddr  uint64
	maxAddr  uint64

	// Index of the most recently matched segment. Lookups probe it
	// first: walks and field chases hit the same segment repeatedly.
	lastIdx int
}

// NewHeap snapshots the provider's segment list at its current
// revision.
func NewHeap(provider dac.Provider, reader target.Reader, resolver *typesys.Resolver, logger log.Logger) (*Heap, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	h := &Heap{
		provider: provider,
		reader:   reader,
		resolver: resolver,
		logger:   logger,
		revision: provider.Revision(),
	}

	raw, err := provider.HeapSegments()
	if err != nil {
		return nil, fmt.Errorf("enumerating heap segments: %w", err)
	}
	for _, d := range raw {
		if d.Start > d.End {
			return nil, fmt.Errorf("segment %#x-%#x: start after end", d.Start, d.End)
		}
		h.segments = append(h.segments, NewSegment(d))
	}
	sort.Slice(h.segments, func(i, j int) bool {
		return h.segments[i].Start < h.segments[j].Start
	})
	if len(h.segments) > 0 {
		h.minAddr = h.segments[0].Start
		h.maxAddr = h.segments[len(h.segments)-1].End
	}
	level.Debug(logger).Log("msg", "heap built", "segments", len(h.segments), "revision", h.revision)
	return h, nil
}

// Revision returns the revision this heap was built at.
func (h *Heap) Revision() uint64 { return h.revision }

// checkRevision compares the build-time stamp against the live target.
func (h *Heap) checkRevision() error {
	if h.provider.Revision() != h.revision {
		return ErrRevisionChanged
	}
	return nil
}

// Segments returns the segment list sorted by start address.
func (h *Heap) Segments() ([]*Segment, error) {
	if err := h.checkRevision(); err != nil {
		return nil, err
	}
	return h.segments, nil
}

// Size returns the total committed bytes across all segments.
func (h *Heap) Size() (uint64, error) {
	if err := h.checkRevision(); err != nil {
		return 0, err
	}
	var total uint64
	for _, s := range h.segments {
		total += s.Length()
	}
	return total, nil
}

// GetSegmentByAddress returns the segment containing addr. The probe
// starts at the most recently matched index and scans forward with
// wrap-around, stopping once it returns to where it started, so the
// cost is bounded by segment count and the sequential access pattern of
// a walk stays O(1) amortized. Correct for any access order.
func (h *Heap) GetSegmentByAddress(addr uint64) (*Segment, bool, error) {
	if err := h.checkRevision(); err != nil {
		return nil, false, err
	}
	if len(h.segments) == 0 || addr < h.minAddr || addr >= h.maxAddr {
		return nil, false, nil
	}
	idx := h.lastIdx
	for {
		if s := h.segments[idx]; s.Contains(addr) {
			h.lastIdx = idx
			return s, true, nil
		}
		idx++
		if idx == len(h.segments) {
			idx = 0
		}
		if idx == h.lastIdx {
			return nil, false, nil
		}
	}
}

// GetObjectType resolves the type of the object at addr by reading its
// method table, the first pointer-sized word. A zero method table or an
// unrecognized one resolves to nil: the caller skips the object.
func (h *Heap) GetObjectType(addr uint64) (*typesys.Type, error) {
	if err := h.checkRevision(); err != nil {
		return nil, err
	}
	mt := h.reader.ReadPointerUnsafe(addr)
	if mt == 0 {
		return nil, nil
	}
	return h.resolver.GetTypeByMethodTable(mt, 0)
}

// EnumerateObjectAddresses walks every live object address, segment by
// segment in start order, stepping by each object's aligned size. The
// walk is forward-only and must be restarted from a fresh Heap after
// any revision change; a mismatch mid-walk fails fast rather than
// stepping through memory that may have been compacted. fn returning
// false stops the walk early.
func (h *Heap) EnumerateObjectAddresses(fn func(addr uint64) bool) error {
	if err := h.checkRevision(); err != nil {
		return err
	}
	ptrSize := h.reader.PointerSize()
	for _, seg := range h.segments {
		addr, ok := seg.FirstObject()
		if !ok {
			continue
		}
		for addr < seg.End {
			if err := h.checkRevision(); err != nil {
				return err
			}
			if !fn(addr) {
				return nil
			}
			typ, err := h.GetObjectType(addr)
			if err != nil {
				return err
			}
			if typ == nil {
				level.Debug(h.logger).Log("msg", "walk stopped at unresolvable object", "addr", fmt.Sprintf("%#x", addr), "segment", fmt.Sprintf("%#x", seg.Start))
				break
			}
			size, err := typ.Size(addr, h.reader)
			if err != nil || size == 0 {
				level.Debug(h.logger).Log("msg", "walk stopped at unsized object", "addr", fmt.Sprintf("%#x", addr))
				break
			}
			next := addr + Align(size, ptrSize, seg.Large)
			if next <= addr {
				break
			}
			addr = next
		}
	}
	return nil
}
