package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/docchat/internal/backendtest"
	"github.com/kalambet/docchat/internal/session"
	"github.com/kalambet/docchat/internal/transport"
)

type recordingView struct {
	results []ResultSet
	notices []string
}

func (v *recordingView) ShowResults(rs ResultSet) { v.results = append(v.results, rs) }
func (v *recordingView) Notify(msg string)        { v.notices = append(v.notices, msg) }

func newSearcher(t *testing.T) (*Searcher, *backendtest.Server, *recordingView) {
	t.Helper()
	srv := backendtest.New(t)
	client := transport.New(transport.Options{BaseURL: srv.URL(), HTTPClient: srv.Client()})
	view := &recordingView{}
	return New(client, session.WithID("user_search"), view), srv, view
}

func TestSearchReturnsResultsInOrder(t *testing.T) {
	s, srv, view := newSearcher(t)
	srv.SetSearchResults(
		backendtest.SearchResult{Filename: "b.txt", Content: "second", Similarity: 0.9},
		backendtest.SearchResult{Filename: "a.txt", Content: "first", Similarity: 0.4},
	)

	rs, err := s.Search(context.Background(), "  refunds  ", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if rs.Query != "refunds" {
		t.Errorf("Query = %q, want %q", rs.Query, "refunds")
	}
	if len(rs.Results) != 2 || rs.Results[0].Filename != "b.txt" || rs.Results[1].Filename != "a.txt" {
		t.Errorf("Results = %+v", rs.Results)
	}

	want := []string{`Found 2 relevant document sections for: "refunds"`}
	if !slices.Equal(view.notices, want) {
		t.Errorf("notices = %q, want %q", view.notices, want)
	}
	if len(view.results) != 1 {
		t.Errorf("view got %d result sets, want 1", len(view.results))
	}
}

func TestSearchNoMatches(t *testing.T) {
	s, _, view := newSearcher(t)

	rs, err := s.Search(context.Background(), "nothing", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !rs.Empty() {
		t.Errorf("Empty() = false, results %+v", rs.Results)
	}
	if len(view.results) != 1 || !view.results[0].Empty() {
		t.Errorf("view results = %+v, want one empty set", view.results)
	}
	if view.notices[0] != `Found 0 relevant document sections for: "nothing"` {
		t.Errorf("notice = %q", view.notices[0])
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	s, srv, view := newSearcher(t)

	for _, q := range []string{"", "   "} {
		if _, err := s.Search(context.Background(), q, 5); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Search(%q) error = %v, want ErrEmptyQuery", q, err)
		}
	}
	if n := len(srv.AllCalls()); n != 0 {
		t.Errorf("made %d requests, want 0", n)
	}
	if len(view.notices) != 0 {
		t.Errorf("notices = %q, want none", view.notices)
	}
}

func TestSearchFailure(t *testing.T) {
	s, srv, view := newSearcher(t)
	srv.FailSearch("index unavailable")

	if _, err := s.Search(context.Background(), "x", 5); err == nil {
		t.Fatal("expected error")
	}
	want := []string{"Search error: index unavailable"}
	if !slices.Equal(view.notices, want) {
		t.Errorf("notices = %q, want %q", view.notices, want)
	}
	if len(view.results) != 0 {
		t.Errorf("view got results on failure: %+v", view.results)
	}
}

func TestSearchLimit(t *testing.T) {
	s, srv, _ := newSearcher(t)
	var hits []backendtest.SearchResult
	for range 60 {
		hits = append(hits, backendtest.SearchResult{Filename: "f.txt", Content: "c", Similarity: 0.5})
	}
	srv.SetSearchResults(hits...)

	tests := []struct {
		limit int
		want  int
	}{
		{0, 5},
		{3, 3},
		{-4, 1},
		{500, 50},
	}
	for _, tt := range tests {
		rs, err := s.Search(context.Background(), "q", tt.limit)
		if err != nil {
			t.Fatalf("Search(limit=%d): %v", tt.limit, err)
		}
		if len(rs.Results) != tt.want {
			t.Errorf("Search(limit=%d) returned %d results, want %d", tt.limit, len(rs.Results), tt.want)
		}
	}
}

type blockingAPI struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAPI) PostJSON(ctx context.Context, _ string, _, _ any) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestSearchRejectsOverlap(t *testing.T) {
	api := &blockingAPI{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(api, session.New(), &recordingView{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Search(context.Background(), "first", 5)
	}()
	<-api.started

	if _, err := s.Search(context.Background(), "second", 5); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping Search error = %v, want ErrBusy", err)
	}
	close(api.release)
	wg.Wait()
	if s.Busy() {
		t.Error("Busy() = true after search finished")
	}
}

func TestRenderHTML(t *testing.T) {
	out := RenderHTML(ResultSet{Query: "q", Results: []Result{
		{Filename: "<b>x</b>.txt", Content: `"quoted" & <i>raw</i>`, Similarity: 0.876},
	}})

	for _, want := range []string{"&lt;b&gt;x&lt;/b&gt;.txt", "&amp; &lt;i&gt;raw&lt;/i&gt;", "88%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<i>") || strings.Contains(out, "<b>") {
		t.Errorf("output contains unescaped markup:\n%s", out)
	}
}

func TestRenderHTMLEmpty(t *testing.T) {
	if out := RenderHTML(ResultSet{Query: "q"}); !strings.Contains(out, EmptyMarker) {
		t.Errorf("output = %q", out)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.5, 50},
		{0.876, 88},
		{0.8749, 87},
		{1, 100},
	}
	for _, tt := range tests {
		if got := Percent(tt.in); got != tt.want {
			t.Errorf("Percent(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
