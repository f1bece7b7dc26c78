// Package render applies the reply display rule (line breaks, **bold**,
// *italic*) for HTML and terminal sinks. Text from the server or the user is
// never interpreted as markup.
package render

import (
	"regexp"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	boldPattern   = regexp.MustCompile(`(?s)\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`(?s)\*(.*?)\*`)
)

type segment struct {
	text   string
	bold   bool
	italic bool
}

// segments splits text into emphasis runs. Bold is matched first, then
// italic inside and between the bold runs.
func segments(text string) []segment {
	var out []segment
	last := 0
	for _, m := range boldPattern.FindAllStringSubmatchIndex(text, -1) {
		out = appendItalic(out, text[last:m[0]], false)
		out = appendItalic(out, text[m[2]:m[3]], true)
		last = m[1]
	}
	return appendItalic(out, text[last:], false)
}

func appendItalic(out []segment, text string, bold bool) []segment {
	last := 0
	for _, m := range italicPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			out = append(out, segment{text: text[last:m[0]], bold: bold})
		}
		out = append(out, segment{text: text[m[2]:m[3]], bold: bold, italic: true})
		last = m[1]
	}
	if last < len(text) {
		out = append(out, segment{text: text[last:], bold: bold})
	}
	return out
}

// HTML renders text as an escaped HTML fragment.
func HTML(text string) string {
	var b strings.Builder
	for _, n := range Nodes(text) {
		// Rendering into a strings.Builder cannot fail.
		_ = html.Render(&b, n)
	}
	return b.String()
}

// Nodes returns the fragment HTML renders, for callers assembling larger
// documents.
func Nodes(text string) []*html.Node {
	var out []*html.Node
	last := 0
	for _, m := range boldPattern.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, italicNodes(text[last:m[0]])...)
		out = append(out, wrap(atom.Strong, italicNodes(text[m[2]:m[3]])))
		last = m[1]
	}
	return append(out, italicNodes(text[last:])...)
}

func italicNodes(text string) []*html.Node {
	var out []*html.Node
	last := 0
	for _, m := range italicPattern.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, textNodes(text[last:m[0]])...)
		out = append(out, wrap(atom.Em, textNodes(text[m[2]:m[3]])))
		last = m[1]
	}
	return append(out, textNodes(text[last:])...)
}

func textNodes(text string) []*html.Node {
	var out []*html.Node
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out = append(out, Element(atom.Br))
		}
		if line != "" {
			out = append(out, Text(line))
		}
	}
	return out
}

func wrap(a atom.Atom, children []*html.Node) *html.Node {
	n := Element(a)
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

// Element returns an empty element node with the given attributes, as
// alternating key/value pairs.
func Element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// Text returns a text node; its content is escaped when rendered.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Fragment renders a list of nodes.
func Fragment(nodes ...*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		_ = html.Render(&b, n)
	}
	return b.String()
}

// Escape HTML-escapes s.
func Escape(s string) string {
	return html.EscapeString(s)
}

var (
	boldStyle       = color.New(color.Bold)
	italicStyle     = color.New(color.Italic)
	boldItalicStyle = color.New(color.Bold, color.Italic)
)

// Terminal renders text for a terminal, using bold and italic attributes
// when colour output is enabled.
func Terminal(text string) string {
	var b strings.Builder
	for _, s := range segments(text) {
		switch {
		case s.bold && s.italic:
			b.WriteString(boldItalicStyle.Sprint(s.text))
		case s.bold:
			b.WriteString(boldStyle.Sprint(s.text))
		case s.italic:
			b.WriteString(italicStyle.Sprint(s.text))
		default:
			b.WriteString(s.text)
		}
	}
	return b.String()
}

// Plain removes emphasis markers.
func Plain(text string) string {
	var b strings.Builder
	for _, s := range segments(text) {
		b.WriteString(s.text)
	}
	return b.String()
}
