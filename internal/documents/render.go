package documents

import (
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kalambet/docchat/internal/render"
)

// EmptyMarker is shown in place of an empty document list.
const EmptyMarker = "No documents uploaded yet"

// ErrorMarker is shown when the list could not be loaded.
const ErrorMarker = "Error loading documents"

// RenderHTML renders the document list. Every server-supplied value is
// escaped, and the delete button identifies its document through a data
// attribute only.
func RenderHTML(docs []Document) string {
	if len(docs) == 0 {
		return render.Fragment(marker(EmptyMarker))
	}

	nodes := make([]*html.Node, 0, len(docs))
	for _, d := range docs {
		nodes = append(nodes, documentNode(d))
	}
	return render.Fragment(nodes...)
}

// RenderErrorHTML renders the marker shown when loading failed.
func RenderErrorHTML() string {
	return render.Fragment(marker(ErrorMarker))
}

func documentNode(d Document) *html.Node {
	length := "Unknown"
	if d.ContentLength > 0 {
		length = strconv.Itoa(d.ContentLength)
	}

	meta := render.Element(atom.Div, "class", "document-meta")
	meta.AppendChild(span(length + " chars"))
	meta.AppendChild(span(strconv.Itoa(d.ChunkCount) + " chunks"))

	info := render.Element(atom.Div, "class", "document-info")
	info.AppendChild(div("document-name", d.Filename))
	info.AppendChild(meta)
	info.AppendChild(div("document-preview", d.ContentPreview))

	del := render.Element(atom.Button,
		"class", "delete-btn",
		"data-document-id", d.ID,
		"title", "Delete document",
	)
	del.AppendChild(render.Text("×"))

	item := render.Element(atom.Div, "class", "document-item")
	item.AppendChild(info)
	item.AppendChild(del)
	return item
}

func marker(text string) *html.Node {
	return div("no-documents", text)
}

func div(class, text string) *html.Node {
	n := render.Element(atom.Div, "class", class)
	if text != "" {
		n.AppendChild(render.Text(text))
	}
	return n
}

func span(text string) *html.Node {
	n := render.Element(atom.Span)
	n.AppendChild(render.Text(text))
	return n
}
