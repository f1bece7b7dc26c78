// Package documents mirrors the backend's per-session document list and
// coordinates batches of uploads into it.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/kalambet/docchat/internal/session"
)

const (
	documentsPath = "/documents"
	deletePath    = "/delete-document"
	uploadPath    = "/upload"
)

// Document is one uploaded document as the backend reports it.
type Document struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	ContentLength  int    `json:"content_length"`
	ChunkCount     int    `json:"chunk_count"`
	ContentPreview string `json:"content_preview"`
}

// API is the subset of the transport the documents package needs.
type API interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	DeleteJSON(ctx context.Context, path string, body, out any) error
	Upload(ctx context.Context, path, filename string, content []byte, fields map[string]string, out any) error
}

// View is the presentation sink for document state and notices.
type View interface {
	ShowDocuments(docs []Document)
	ShowDocumentsError(err error)
	UploadProgress(active bool)
	Notify(msg string)
}

// Store is the client-side mirror of the session's documents. The list is
// only ever replaced wholesale from a backend fetch.
type Store struct {
	api     API
	session *session.Session
	view    View
	logger  *slog.Logger

	mu   sync.Mutex
	docs []Document
}

// NewStore creates an empty Store.
func NewStore(api API, s *session.Session, view View) *Store {
	return &Store{
		api:     api,
		session: s,
		view:    view,
		logger:  slog.Default(),
	}
}

// Refresh fetches the authoritative list and replaces the local one. When two
// refreshes overlap, whichever completes last is what remains and what the
// view shows last. On failure the previous list is kept.
func (s *Store) Refresh(ctx context.Context) ([]Document, error) {
	var resp struct {
		Documents []Document `json:"documents"`
	}
	err := s.api.GetJSON(ctx, documentsPath, url.Values{"user_id": {s.session.ID()}}, &resp)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("loading documents failed", "error", err)
		s.view.ShowDocumentsError(err)
		return nil, fmt.Errorf("loading documents: %w", err)
	}

	docs := resp.Documents
	if docs == nil {
		docs = []Document{}
	}
	s.docs = docs
	s.logger.Debug("loaded documents", "count", len(docs))
	s.view.ShowDocuments(clone(docs))
	return clone(docs), nil
}

// Remove deletes a document on the backend and refreshes on success. On
// failure the local list is left as it was and the returned error carries
// the server's text.
func (s *Store) Remove(ctx context.Context, documentID string) error {
	var resp struct {
		Message string `json:"message"`
	}
	err := s.api.DeleteJSON(ctx, deletePath, map[string]string{
		"user_id":     s.session.ID(),
		"document_id": documentID,
	}, &resp)
	if err != nil {
		s.logger.Warn("deleting document failed", "document_id", documentID, "error", err)
		s.view.Notify("Error: " + err.Error())
		return err
	}

	if resp.Message != "" {
		s.view.Notify(resp.Message)
	}
	// The deletion already happened; a failed refresh is reported by Refresh itself.
	_, _ = s.Refresh(ctx)
	return nil
}

// Documents returns a copy of the current list.
func (s *Store) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.docs)
}

func clone(docs []Document) []Document {
	if docs == nil {
		return nil
	}
	out := make([]Document, len(docs))
	copy(out, docs)
	return out
}
