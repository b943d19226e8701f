// ABOUTME: Map-backed Provider implementation
// ABOUTME: Populated by snapshot parsing and by test fixtures

package dac

import (
	"sort"
	"sync"
)

// MemProvider is an in-memory Provider. Snapshot backends fill one while
// parsing; tests build fixture runtimes with it.
type MemProvider struct {
	mu       sync.RWMutex
	flavor   Flavor
	revision func() uint64 // nil means revision 0 forever
	segments []SegmentData
	types    map[uint64]*TypeData
	fields   map[uint64][]FieldData
	roots    []RootData
}

var _ Provider = (*MemProvider)(nil)

// NewMemProvider creates an empty provider for the given flavor.
func NewMemProvider(flavor Flavor) *MemProvider {
	return &MemProvider{
		flavor: flavor,
		types:  make(map[uint64]*TypeData),
		fields: make(map[uint64][]FieldData),
	}
}

// Flavor returns the runtime flavor tag.
func (p *MemProvider) Flavor() Flavor { return p.flavor }

// SetRevisionSource ties the provider's revision to an external counter,
// typically the backing target's. Without one the revision is always 0.
func (p *MemProvider) SetRevisionSource(fn func() uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revision = fn
}

// Revision returns the current revision stamp.
func (p *MemProvider) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.revision == nil {
		return 0
	}
	return p.revision()
}

// AddSegment records one raw segment descriptor.
func (p *MemProvider) AddSegment(s SegmentData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segments = append(p.segments, s)
}

// HeapSegments returns the recorded segments sorted by start address.
func (p *MemProvider) HeapSegments() ([]SegmentData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]SegmentData, len(p.segments))
	copy(out, p.segments)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// AddType records one type descriptor keyed by its method table.
func (p *MemProvider) AddType(t *TypeData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types[t.MethodTable] = t
}

// TypeData resolves a method table.
func (p *MemProvider) TypeData(methodTable uint64) (*TypeData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.types[methodTable]
	return t, ok
}

// SetFields records the declared fields of a type.
func (p *MemProvider) SetFields(methodTable uint64, fields []FieldData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[methodTable] = fields
}

// FieldData returns the declared fields of a type. Unknown method tables
// have no fields rather than being an error: field tables are optional
// metadata.
func (p *MemProvider) FieldData(methodTable uint64) ([]FieldData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fs := p.fields[methodTable]
	out := make([]FieldData, len(fs))
	copy(out, fs)
	return out, nil
}

// EnumerateTypes visits every recorded type in method-table order so the
// scan is deterministic.
func (p *MemProvider) EnumerateTypes(fn func(*TypeData) bool) {
	p.mu.RLock()
	mts := make([]uint64, 0, len(p.types))
	for mt := range p.types {
		mts = append(mts, mt)
	}
	p.mu.RUnlock()
	sort.Slice(mts, func(i, j int) bool { return mts[i] < mts[j] })
	for _, mt := range mts {
		p.mu.RLock()
		t := p.types[mt]
		p.mu.RUnlock()
		if t == nil {
			continue
		}
		if !fn(t) {
			return
		}
	}
}

// AddRoot records one GC root.
func (p *MemProvider) AddRoot(r RootData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots = append(p.roots, r)
}

// Roots returns the recorded roots in insertion order.
func (p *MemProvider) Roots() ([]RootData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]RootData, len(p.roots))
	copy(out, p.roots)
	return out, nil
}
