package decode

import (
	"fmt"
	"strings"
)

// Render formats a value tree as indented text, one field per line with
// its bit span. Used for the detail pane and CSV export.
func Render(n *Node) string {
	var b strings.Builder
	renderInto(&b, n, 0)
	return strings.TrimRight(b.String(), "\n")
}

func renderInto(b *strings.Builder, n *Node, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "[b%d-b%d] %s", n.BitLo, n.BitHi, n.Field)
	if n.Value != "" {
		b.WriteString(": ")
		b.WriteString(n.Value)
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		renderInto(b, c, depth+1)
	}
}
