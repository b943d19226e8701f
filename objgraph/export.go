// ABOUTME: JSON export of a collected object tree
// ABOUTME: Flat node records for consumption by a presentation layer

package objgraph

import (
	"encoding/json"
	"fmt"
	"io"
)

// jsonNode is the serialized form of one tree node.
type jsonNode struct {
	Ref      string      `json:"ref"`
	Type     string      `json:"type,omitempty"`
	Name     string      `json:"name"`
	Value    string      `json:"value,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

// WriteJSON serializes a collected tree. Formatted values are read at
// export time; a node whose value cannot be read is exported without
// one, never dropped, so the shape of the reachable graph stays
// trustworthy.
func WriteJSON(w io.Writer, roots []*Node, useHex bool) error {
	out := make([]*jsonNode, 0, len(roots))
	for _, n := range roots {
		out = append(out, toJSONNode(n, useHex))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding object tree: %w", err)
	}
	return nil
}

func toJSONNode(n *Node, useHex bool) *jsonNode {
	jn := &jsonNode{
		Ref:  fmt.Sprintf("0x%X", n.Ref),
		Name: n.Name,
	}
	if n.Type != nil {
		jn.Type = n.Type.Name
	}
	if v, err := n.FormattedValue(useHex); err == nil {
		jn.Value = v
	}
	for _, c := range n.Children {
		jn.Children = append(jn.Children, toJSONNode(c, useHex))
	}
	return jn
}
