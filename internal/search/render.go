package search

import (
	"fmt"
	"math"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kalambet/docchat/internal/render"
)

// EmptyMarker is shown when a search matched nothing.
const EmptyMarker = "No results found"

// Percent returns similarity as a rounded percentage.
func Percent(similarity float64) int {
	return int(math.Round(similarity * 100))
}

// RenderHTML renders a result set with every server value escaped.
func RenderHTML(rs ResultSet) string {
	if rs.Empty() {
		n := render.Element(atom.Div, "class", "search-result-item")
		n.AppendChild(render.Text(EmptyMarker))
		return render.Fragment(n)
	}

	nodes := make([]*html.Node, 0, len(rs.Results))
	for _, r := range rs.Results {
		score := render.Element(atom.Span, "class", "similarity-score")
		score.AppendChild(render.Text(fmt.Sprintf("%d%%", Percent(r.Similarity))))

		header := render.Element(atom.Div, "class", "search-result-header")
		header.AppendChild(render.Text(r.Filename))
		header.AppendChild(score)

		snippet := render.Element(atom.Div, "class", "search-result-snippet")
		snippet.AppendChild(render.Text(r.Content))

		item := render.Element(atom.Div, "class", "search-result-item")
		item.AppendChild(header)
		item.AppendChild(snippet)
		nodes = append(nodes, item)
	}
	return render.Fragment(nodes...)
}
