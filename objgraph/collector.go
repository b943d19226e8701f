// ABOUTME: Deduplicating depth-first collection of the live object tree
// ABOUTME: Scoped failures become leaves; only revision mismatch aborts

package objgraph

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"

	"github.com/clrlens/clrlens/clrheap"
	"github.com/clrlens/clrlens/gcroot"
	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/typesys"
)

// Collector builds the tree of live objects reachable from the GC
// roots. The visited set and in-progress tree are exclusively owned by
// one EnumerateObjects call; only the resolver's type cache outlives a
// pass.
type Collector struct {
	heap     *clrheap.Heap
	resolver *typesys.Resolver
	reader   target.Reader
	enum     *gcroot.Enumerator
	filter   *FilterConfig
	logger   log.Logger

	// Per-pass state, reset on every EnumerateObjects call.
	visited  map[uint64]struct{}
	warnings *multierror.Error
}

// NewCollector wires a collector over one heap snapshot. A nil filter
// uses DefaultFilterConfig; a nil logger discards.
func NewCollector(heap *clrheap.Heap, resolver *typesys.Resolver, reader target.Reader, enum *gcroot.Enumerator, filter *FilterConfig, logger log.Logger) *Collector {
	if filter == nil {
		filter = DefaultFilterConfig()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Collector{
		heap:     heap,
		resolver: resolver,
		reader:   reader,
		enum:     enum,
		filter:   filter,
		logger:   logger,
	}
}

// EnumerateObjects runs one traversal pass: seed from the roots, expand
// fields depth-first, deduplicate by address. Every expansion step must
// add a new address to the visited set, and the set only grows, so the
// walk terminates even on cyclic object graphs; an address seen twice
// stays a leaf under its second referrer. The only fatal error is a
// revision mismatch mid-walk; everything else is scoped to one node and
// recorded in Warnings.
func (c *Collector) EnumerateObjects() ([]*Node, error) {
	c.visited = make(map[uint64]struct{})
	c.warnings = nil

	roots, err := c.enum.EnumerateRoots()
	if err != nil {
		return nil, err
	}

	var out []*Node
	for _, root := range roots {
		if root.Type == nil || root.Name == "" {
			level.Debug(c.logger).Log("msg", "skipping root without type or name", "addr", fmt.Sprintf("%#x", root.Object), "kind", root.Kind)
			continue
		}
		name, ok := c.filter.CleanRootName(root.Name)
		if !ok {
			continue
		}
		if _, seen := c.visited[root.Object]; seen {
			continue
		}
		c.visited[root.Object] = struct{}{}

		n := &Node{Ref: root.Object, Type: root.Type, Name: name, c: c}
		if err := c.expand(n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Warnings returns the scoped failures recorded during the last pass,
// or nil when the pass was clean.
func (c *Collector) Warnings() error {
	return c.warnings.ErrorOrNil()
}

// expand enumerates n's fields, creating one child per kept field.
// Children exist before their reference is known so value-type fields
// always show. A zero reference, a failed read or an already-visited
// address leaves the child a leaf; a new address is marked visited and
// recursed into. Returns an error only on revision mismatch.
func (c *Collector) expand(n *Node) error {
	fields, err := n.Type.Fields()
	if err != nil {
		c.warn(fmt.Errorf("fields of %s at %#x: %w", n.Type.Name, n.Ref, err))
		return nil
	}

	for _, f := range fields {
		if c.filter.ExcludedField(f.Name) {
			continue
		}
		child := &Node{Name: f.Name, Field: f, Type: f.DeclaredType(), parent: n, c: c}
		n.Children = append(n.Children, child)

		if !f.Kind.Expandable() {
			continue
		}
		v, err := f.GetValue(c.reader, n.Ref)
		if err != nil {
			c.warn(fmt.Errorf("reading %s.%s: %w", n.Type.SimpleName(), f.Name, err))
			continue
		}
		if v.Ref == 0 {
			continue
		}
		if _, seen := c.visited[v.Ref]; seen {
			continue
		}

		childType, err := c.childType(f, v.Ref)
		if err != nil {
			if errors.Is(err, clrheap.ErrRevisionChanged) {
				return err
			}
			c.warn(fmt.Errorf("resolving %s.%s at %#x: %w", n.Type.SimpleName(), f.Name, v.Ref, err))
			continue
		}
		if childType == nil {
			continue
		}

		c.visited[v.Ref] = struct{}{}
		child.Ref = v.Ref
		child.Type = childType
		if err := c.expand(child); err != nil {
			return err
		}
	}

	n.sortChildren()
	return nil
}

// childType resolves the type to recurse into. Inline struct fields
// have no object header at their address, so their declared type is
// authoritative; reference fields resolve through the heap from the
// referenced object's method table.
func (c *Collector) childType(f *typesys.Field, ref uint64) (*typesys.Type, error) {
	if f.Kind.IsInline() {
		return f.DeclaredType(), nil
	}
	return c.heap.GetObjectType(ref)
}

func (c *Collector) warn(err error) {
	level.Debug(c.logger).Log("msg", "scoped failure", "err", err)
	c.warnings = multierror.Append(c.warnings, err)
}
