package decode

import (
	"encoding/hex"
	"strings"
)

// Node is one field of a decoded record. Leaf nodes carry a string value,
// inner nodes carry children. BitLo/BitHi locate the field inside the raw
// message, counted from bit 0 of the payload.
type Node struct {
	Field    string  `msgpack:"field" json:"field"`
	Value    string  `msgpack:"value,omitempty" json:"value,omitempty"`
	Children []*Node `msgpack:"children,omitempty" json:"children,omitempty"`
	BitLo    int     `msgpack:"bit_lo" json:"bit_lo"`
	BitHi    int     `msgpack:"bit_hi" json:"bit_hi"`
	Raw      []byte  `msgpack:"raw,omitempty" json:"raw,omitempty"`
}

// Leaf reports whether the node carries a direct value.
func (n *Node) Leaf() bool {
	return len(n.Children) == 0
}

// Child returns the first child with the given field name, or nil.
func (n *Node) Child(field string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// Lookup walks a path of field names and returns the leaf value.
// Missing segments yield ("", false), never a panic.
func (n *Node) Lookup(path ...string) (string, bool) {
	cur := n
	for _, field := range path {
		cur = cur.Child(field)
		if cur == nil {
			return "", false
		}
	}
	return cur.Value, true
}

// HexRaw returns the node's raw bytes as upper-case hex text.
func (n *Node) HexRaw() string {
	if n == nil || len(n.Raw) == 0 {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(n.Raw))
}
