// ABOUTME: Method-table to Type resolution with a per-session LRU cache
// ABOUTME: Also reads managed string payloads and serves name lookups

package typesys

import (
	"fmt"
	"unicode/utf16"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/target"
)

// typeCacheSize bounds the method-table cache. Real heaps rarely touch
// more than a few thousand distinct types in one session.
const typeCacheSize = 4096

// maxStringChars caps managed string reads so a corrupted length field
// cannot drive a huge allocation.
const maxStringChars = 1 << 20

type typeKey struct {
	mt        uint64
	component uint64
}

// Resolver turns method tables into Type descriptors. The cache is
// owned by the resolver instance with a lifetime of one attach session;
// it must be invalidated explicitly when the target's revision bumps.
type Resolver struct {
	provider dac.Provider
	reader   target.Reader
	cache    *lru.Cache[typeKey, *Type]
}

// NewResolver creates a resolver over the given provider and reader.
func NewResolver(provider dac.Provider, reader target.Reader) *Resolver {
	cache, _ := lru.New[typeKey, *Type](typeCacheSize)
	return &Resolver{provider: provider, reader: reader, cache: cache}
}

// GetTypeByMethodTable resolves and caches a type descriptor. The
// component method table selects the element type for generic arrays
// and defaults to 0. An unrecognized method table resolves to nil, not
// an error: callers treat nil types as "skip this node".
func (r *Resolver) GetTypeByMethodTable(methodTable, component uint64) (*Type, error) {
	if methodTable == 0 {
		return nil, nil
	}
	key := typeKey{mt: methodTable, component: component}
	if t, ok := r.cache.Get(key); ok {
		return t, nil
	}

	td, ok := r.provider.TypeData(methodTable)
	if !ok {
		return nil, nil
	}
	t := &Type{
		MethodTable:      td.MethodTable,
		Component:        component,
		Name:             td.Name,
		Token:            td.Token,
		Module:           td.Module,
		BaseSize:         td.BaseSize,
		ComponentSize:    td.ComponentSize,
		IsArray:          td.IsArray,
		IsString:         td.IsString,
		ContainsPointers: td.ContainsPointers,
		r:                r,
	}
	r.cache.Add(key, t)
	return t, nil
}

// GetTypeByName finds a type by its fully qualified name. Best effort:
// the scan only sees types the provider knows about, so generic
// instantiations and types never constructed in the target will miss.
func (r *Resolver) GetTypeByName(name string) (*Type, bool) {
	var found *Type
	r.provider.EnumerateTypes(func(td *dac.TypeData) bool {
		if td.Name != name {
			return true
		}
		t, err := r.GetTypeByMethodTable(td.MethodTable, 0)
		if err == nil && t != nil {
			found = t
		}
		return false
	})
	return found, found != nil
}

// Invalidate purges the cache. Must be called after a revision bump;
// a stale cache would resolve addresses against moved objects.
func (r *Resolver) Invalidate() {
	r.cache.Purge()
}

// ReadStringPayload decodes the managed string object at addr: a u32
// character count after the method table, then UTF-16 code units.
func (r *Resolver) ReadStringPayload(addr uint64) (string, error) {
	ptrSize := r.reader.PointerSize()
	head := make([]byte, 4)
	if _, err := r.reader.ReadMemory(addr+uint64(ptrSize), head); err != nil {
		return "", fmt.Errorf("reading string length at %#x: %w", addr, err)
	}
	n := uint64(head[0]) | uint64(head[1])<<8 | uint64(head[2])<<16 | uint64(head[3])<<24
	if n > maxStringChars {
		return "", fmt.Errorf("string at %#x too long: %d chars", addr, n)
	}
	raw := make([]byte, n*2)
	if _, err := r.reader.ReadMemory(addr+uint64(ptrSize)+4, raw); err != nil {
		return "", fmt.Errorf("reading string payload at %#x: %w", addr, err)
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}
