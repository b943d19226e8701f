// ABOUTME: Graph node: address + resolved type + display name + children
// ABOUTME: Per-node formatted-value read and value write-back

package objgraph

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/typesys"
)

// Node pairs a memory address with a resolved type and a display name.
// Children are ownership-exclusive; the parent back-reference exists
// for name-prefix computation only and is never used for traversal.
// The whole tree is discarded and rebuilt on every traversal pass.
type Node struct {
	Ref      uint64 // object address; 0 for unexpanded value fields
	Type     *typesys.Type
	Name     string
	Field    *typesys.Field // nil for root nodes
	Children []*Node

	parent *Node
	c      *Collector
}

// Path returns the dotted name chain from the root node down to this
// node, for display prefixes.
func (n *Node) Path() string {
	if n.parent == nil {
		return n.Name
	}
	return n.parent.Path() + "." + n.Name
}

// FormattedValue renders the node's value for display. Field nodes read
// their field out of the owning object; string references resolve to
// the quoted payload; root nodes render their address. A read failure
// is returned to the caller, scoped to this node.
func (n *Node) FormattedValue(useHex bool) (string, error) {
	if n.Field == nil || n.parent == nil {
		return fmt.Sprintf("0x%X", n.Ref), nil
	}
	v, err := n.Field.GetValue(n.c.reader, n.parent.Ref)
	if err != nil {
		return "", err
	}
	if n.Field.Kind == typesys.KindString && v.Ref != 0 {
		if s, err := n.c.resolver.ReadStringPayload(v.Ref); err == nil {
			return strconv.Quote(s), nil
		}
	}
	return v.Format(useHex), nil
}

// SetValue parses text and writes it back into the target. Only value
// fields are writable; reference-typed fields are rejected with
// typesys.ErrNotValueField, and read-only targets refuse all writes.
func (n *Node) SetValue(text string) error {
	if n.Field == nil || n.parent == nil {
		return typesys.ErrNotValueField
	}
	w, ok := n.c.reader.(target.Writer)
	if !ok {
		return fmt.Errorf("target does not support writes")
	}
	return typesys.WriteFieldValue(w, n.c.reader.PointerSize(), n.Field, n.parent.Ref, text)
}

// sortChildren orders children by name with ordinal comparison; absent
// names sort first. Applied after collection for stable display.
func (n *Node) sortChildren() {
	sort.SliceStable(n.Children, func(i, j int) bool {
		return n.Children[i].Name < n.Children[j].Name
	})
}
