package xmltree

import (
	"strings"
)

// splitLocator turns "ns2:customer/ns2:INN" or ".//customer/INN" into
// ["customer", "INN"].
func splitLocator(locator string) []string {
	locator = strings.TrimSpace(locator)
	locator = strings.TrimLeft(locator, "./")

	var parts []string
	for _, seg := range strings.Split(locator, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." {
			continue
		}
		if i := strings.LastIndex(seg, ":"); i >= 0 {
			seg = seg[i+1:]
		}
		parts = append(parts, seg)
	}
	return parts
}

// ResolveNodes returns the elements addressed by locator. The first segment
// matches at any depth below n, the remaining segments match direct children.
// Results are in document order.
func ResolveNodes(n *Node, locator string) []*Node {
	if n == nil {
		return nil
	}
	parts := splitLocator(locator)
	if len(parts) == 0 {
		return nil
	}

	var out []*Node
	var walk func(cur *Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Name == parts[0] {
				out = append(out, descend(c, parts[1:])...)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func descend(n *Node, rest []string) []*Node {
	if len(rest) == 0 {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == rest[0] {
			out = append(out, descend(c, rest[1:])...)
		}
	}
	return out
}

// Resolve returns the trimmed, non-empty text values addressed by locator.
// A missing match yields an empty slice.
func Resolve(n *Node, locator string) []string {
	var values []string
	for _, m := range ResolveNodes(n, locator) {
		if v := m.Text(); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// First returns the first value addressed by locator.
func First(n *Node, locator string) (string, bool) {
	values := Resolve(n, locator)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}
