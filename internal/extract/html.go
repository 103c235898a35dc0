package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/babblebase/filecount/internal/markup"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// HTML returns the visible text of an HTML page. An element holding text
// directly, such as a paragraph with inline markup, becomes one section;
// other elements contribute their children's sections. Scripts, styles and
// comments are dropped, and runs of whitespace collapse to one space.
type HTML struct{}

var _ Extractor = HTML{}

func (HTML) Format() Format { return FormatHTML }

func (HTML) CanExtract(buf []byte, ext string) bool {
	switch ext {
	case "html", "htm", "htmlx", "xhtml":
		return true
	}
	return sniffed(buf, "text/html")
}

func (HTML) Extract(buf []byte) ([]string, error) {
	r, err := charset.NewReader(bytes.NewReader(buf), "text/html")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidEncoding, err, "html")
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedMarkup, err, "html")
	}
	return htmlSections(doc, nil), nil
}

func htmlSections(n *html.Node, out []string) []string {
	if hidden(n) {
		return out
	}
	if n.Type == html.TextNode {
		if s := collapse(n.Data); s != "" {
			out = append(out, s)
		}
		return out
	}
	if n.Type == html.ElementNode && hasTextChild(n) {
		var sb strings.Builder
		flatten(n, &sb)
		if s := collapse(sb.String()); s != "" {
			out = append(out, s)
		}
		return out
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = htmlSections(c, out)
	}
	return out
}

// flatten writes the text below n. Block elements are padded with spaces
// so their words do not run together; inline elements are not.
func flatten(n *html.Node, sb *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case hidden(c):
		case c.Type == html.TextNode:
			sb.WriteString(c.Data)
		case c.Type == html.ElementNode:
			block := isBlock(c.DataAtom)
			if block {
				sb.WriteByte(' ')
			}
			flatten(c, sb)
			if block {
				sb.WriteByte(' ')
			}
		}
	}
}

func hidden(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return true
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return true
		}
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Ul, atom.Ol, atom.Dl, atom.Dt, atom.Dd,
		atom.Table, atom.Tr, atom.Td, atom.Th, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Nav, atom.Aside,
		atom.Blockquote, atom.Pre, atom.Hr, atom.Figure, atom.Figcaption:
		return true
	}
	return false
}

func hasTextChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && !markup.IsBlank(c.Data) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
