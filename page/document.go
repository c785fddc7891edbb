// Package page holds the HTML document that status content is rendered into.
//
// A [Document] is a parsed HTML page with elements addressed by their id
// attribute. Replacing an element's inner HTML parses the new markup in the
// element's context, so markup is inserted as markup and never escaped.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// DefaultElementID is the id of the element a status poller renders into.
const DefaultElementID = "task-status"

// ErrElementNotFound is returned when no element carries the requested id.
var ErrElementNotFound = errors.New("element not found")

const blankPage = `<!DOCTYPE html><html><head><title>Task status</title></head>` +
	`<body><div id="` + DefaultElementID + `"></div></body></html>`

// Document is an HTML document that is safe for concurrent use.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
}

// NewDocument returns a blank page containing one empty element with id
// [DefaultElementID].
func NewDocument() *Document {
	doc, err := Parse(strings.NewReader(blankPage))
	if err != nil {
		// blankPage is a constant; html.Parse only fails on reader errors
		panic(err)
	}
	return doc
}

// Parse reads an HTML page from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{root: root}, nil
}

// Has reports whether an element with the given id exists.
func (d *Document) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return findByID(d.root, id) != nil
}

// SetInnerHTML replaces the children of the element with the given id by
// the nodes parsed from markup.
func (d *Document) SetInnerHTML(_ context.Context, id string, markup []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el := findByID(d.root, id)
	if el == nil {
		return fmt.Errorf("%w: %q", ErrElementNotFound, id)
	}

	nodes, err := html.ParseFragment(bytes.NewReader(markup), el)
	if err != nil {
		return fmt.Errorf("failed to parse markup for %q: %w", id, err)
	}

	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		el.AppendChild(n)
	}
	return nil
}

// InnerHTML returns the serialized children of the element with the given id.
func (d *Document) InnerHTML(id string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	el := findByID(d.root, id)
	if el == nil {
		return "", fmt.Errorf("%w: %q", ErrElementNotFound, id)
	}

	var buf bytes.Buffer
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render %q: %w", id, err)
		}
	}
	return buf.String(), nil
}

// Render writes the whole document to w.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// findByID walks the tree depth-first and returns the first element whose
// id attribute equals id.
func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
