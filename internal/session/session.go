// Package session holds the per-process client identity and the small amount
// of mutable state shared by the chat, document, and search components.
package session

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

const idPrefix = "user_"

// Session is the identity attached to every outbound request. The ID never
// changes after construction; the document-mode flag is last-write-wins.
type Session struct {
	id           string
	documentMode atomic.Bool
}

// New returns a Session with a freshly generated identifier.
func New() *Session {
	return &Session{id: newID()}
}

// WithID returns a Session that reuses an existing identifier, so separate
// CLI invocations can address the same backend session. An empty id falls
// back to a generated one.
func WithID(id string) *Session {
	id = strings.TrimSpace(id)
	if id == "" {
		return New()
	}
	return &Session{id: id}
}

func newID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return idPrefix + raw[:9]
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// DocumentMode reports whether replies should be grounded in uploaded documents.
func (s *Session) DocumentMode() bool {
	return s.documentMode.Load()
}

// SetDocumentMode sets the document-mode flag.
func (s *Session) SetDocumentMode(on bool) {
	s.documentMode.Store(on)
}

// Gate is a non-blocking busy flag. An operation that fails to enter must be
// rejected rather than queued.
type Gate struct {
	busy atomic.Bool
}

// TryEnter marks the gate busy and reports whether the caller now owns it.
func (g *Gate) TryEnter() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Leave releases the gate.
func (g *Gate) Leave() {
	g.busy.Store(false)
}

// Busy reports whether an operation currently holds the gate.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
