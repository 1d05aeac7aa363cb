// Package xmltree parses XML documents into a namespace-agnostic element tree
// and resolves locators against it.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Node is a parsed element. Names are local names: namespace prefixes are
// dropped on elements and attributes alike.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node
	text     strings.Builder
}

// Text returns the character data before the element's first child, trimmed.
// Text following a child element is not part of it.
func (n *Node) Text() string {
	return strings.TrimSpace(n.text.String())
}

// Parse reads a whole document and returns its root element.
func Parse(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xmltree: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var root *Node
	var stack []*Node
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "xmltree: read token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				if n.Attrs == nil {
					n.Attrs = make(map[string]string, len(t.Attr))
				}
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				if n := stack[len(stack)-1]; len(n.Children) == 0 {
					n.text.Write(t)
				}
			}
		}
	}

	if root == nil {
		return nil, eris.New("xmltree: document has no root element")
	}
	if len(stack) != 0 {
		return nil, eris.Errorf("xmltree: unclosed element %q", stack[len(stack)-1].Name)
	}
	return root, nil
}

// ParseBytes parses an in-memory document.
func ParseBytes(data []byte) (*Node, error) {
	return Parse(bytes.NewReader(data))
}

// ParseFile parses the document stored at path.
func ParseFile(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xmltree: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	root, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "xmltree: parse %s", path)
	}
	return root, nil
}
