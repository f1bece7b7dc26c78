// Package search runs semantic searches over the session's documents.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/docchat/internal/session"
)

const (
	searchPath   = "/search"
	defaultLimit = 5
	maxLimit     = 50
)

var (
	// ErrEmptyQuery is returned for a blank query; nothing is sent.
	ErrEmptyQuery = errors.New("search query is empty")
	// ErrBusy is returned while another search is outstanding.
	ErrBusy = errors.New("a search is already in progress")
)

// Result is one matching document section.
type Result struct {
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ResultSet is the outcome of one search, in the backend's order.
type ResultSet struct {
	Query   string
	Results []Result
}

// Empty reports whether nothing matched.
func (r ResultSet) Empty() bool {
	return len(r.Results) == 0
}

// API is the transport call search needs.
type API interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

// View receives results and notices.
type View interface {
	ShowResults(rs ResultSet)
	Notify(msg string)
}

type request struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

// Searcher issues searches for one session.
type Searcher struct {
	api     API
	session *session.Session
	view    View
	logger  *slog.Logger
	gate    session.Gate
}

// New creates a Searcher.
func New(api API, s *session.Session, view View) *Searcher {
	return &Searcher{api: api, session: s, view: view, logger: slog.Default()}
}

// Busy reports whether a search is outstanding.
func (s *Searcher) Busy() bool {
	return s.gate.Busy()
}

// Search sends query and shows the results. A limit outside 1..50 is
// clamped, and zero means the default of 5.
func (s *Searcher) Search(ctx context.Context, query string, limit int) (ResultSet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ResultSet{}, ErrEmptyQuery
	}
	if !s.gate.TryEnter() {
		return ResultSet{}, ErrBusy
	}
	defer s.gate.Leave()

	var resp struct {
		Results []Result `json:"results"`
	}
	err := s.api.PostJSON(ctx, searchPath, request{
		UserID: s.session.ID(),
		Query:  query,
		Limit:  clampLimit(limit),
	}, &resp)
	if err != nil {
		s.logger.Warn("search failed", "query", query, "error", err)
		s.view.Notify("Search error: " + err.Error())
		return ResultSet{}, fmt.Errorf("searching documents: %w", err)
	}

	rs := ResultSet{Query: query, Results: resp.Results}
	if rs.Results == nil {
		rs.Results = []Result{}
	}
	s.view.ShowResults(rs)
	s.view.Notify(fmt.Sprintf("Found %d relevant document sections for: \"%s\"", len(rs.Results), query))
	return rs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return defaultLimit
	case limit < 1:
		return 1
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}
