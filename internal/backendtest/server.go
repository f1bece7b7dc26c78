// Package backendtest provides an in-process fake of the chat backend for
// tests. It serves every endpoint the client uses, keeps documents per user,
// records calls, and lets tests script replies and inject failures.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxUploadSize = 32 << 20

// Document mirrors the backend's document listing entry.
type Document struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	ContentLength  int    `json:"content_length"`
	ChunkCount     int    `json:"chunk_count"`
	ContentPreview string `json:"content_preview"`
}

// SearchResult mirrors one backend search hit.
type SearchResult struct {
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ChatRequest is the body the client posts to /chat-stream.
type ChatRequest struct {
	Message      string `json:"message"`
	UserID       string `json:"user_id"`
	UseDocuments bool   `json:"use_documents"`
}

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	UserID string
}

// Server is a fake backend. Configure it through its setters before or
// between requests; all methods are safe for concurrent use.
type Server struct {
	srv *httptest.Server

	mu             sync.Mutex
	calls          []Call
	docs           map[string][]Document
	nextID         int
	streamChunks   []string
	streamStatus   int
	chatRequests   []ChatRequest
	uploadFailures map[string]string
	uploadDelay    time.Duration
	activeUploads  int
	peakUploads    int
	deleteError    string
	documentsFails int
	searchResults  []SearchResult
	searchError    string
}

// New starts a fake backend that is shut down when the test ends.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		docs:           make(map[string][]Document),
		uploadFailures: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(s.recordCall)
	r.Post("/chat-stream", s.handleChatStream)
	r.Post("/upload", s.handleUpload)
	r.Get("/documents", s.handleDocuments)
	r.Delete("/delete-document", s.handleDeleteDocument)
	r.Post("/search", s.handleSearch)
	r.Get("/debug/user-state", s.handleUserState)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL of the fake backend.
func (s *Server) URL() string {
	return s.srv.URL
}

// Client returns an HTTP client wired to the fake backend.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// SetStream scripts the raw chunks written for the next chat replies. Each
// chunk is flushed separately.
func (s *Server) SetStream(chunks ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamChunks = chunks
}

// SetStreamStatus makes /chat-stream fail with the given status. Zero clears it.
func (s *Server) SetStreamStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamStatus = status
}

// FailUpload makes uploads of filename fail with msg.
func (s *Server) FailUpload(filename, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFailures[filename] = msg
}

// SetUploadDelay holds every upload for d before answering.
func (s *Server) SetUploadDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadDelay = d
}

// FailDelete makes deletions fail with msg. An empty msg clears it.
func (s *Server) FailDelete(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteError = msg
}

// FailDocuments makes the next n document listings answer 503.
func (s *Server) FailDocuments(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentsFails = n
}

// SetSearchResults sets the hits returned by /search, in order.
func (s *Server) SetSearchResults(results ...SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchResults = results
}

// FailSearch makes /search fail with msg. An empty msg clears it.
func (s *Server) FailSearch(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchError = msg
}

// AddDocument stores a document for userID as if it had been uploaded.
func (s *Server) AddDocument(userID string, doc Document) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		s.nextID++
		doc.ID = fmt.Sprintf("doc-%d", s.nextID)
	}
	s.docs[userID] = append(s.docs[userID], doc)
	return doc
}

// Documents returns the documents stored for userID.
func (s *Server) Documents(userID string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.docs[userID]...)
}

// Calls returns how many requests matched method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// AllCalls returns every recorded request in arrival order.
func (s *Server) AllCalls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ChatRequests returns the decoded bodies posted to /chat-stream.
func (s *Server) ChatRequests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.chatRequests...)
}

// PeakUploads returns the highest number of uploads handled at once.
func (s *Server) PeakUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakUploads
}

func (s *Server) recordCall(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			UserID: r.URL.Query().Get("user_id"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	s.mu.Lock()
	s.chatRequests = append(s.chatRequests, req)
	status := s.streamStatus
	chunks := s.streamChunks
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if chunks == nil {
		chunks = echoStream(req.Message)
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	for _, c := range chunks {
		if _, err := io.WriteString(w, c); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// echoStream builds a cumulative reply the way the real backend does.
func echoStream(message string) []string {
	reply := "You said: " + message
	var chunks []string
	for _, end := range []int{len(reply) / 2, len(reply)} {
		payload, _ := json.Marshal(map[string]string{"response": reply[:end]})
		chunks = append(chunks, "data: "+string(payload)+"\n\n")
	}
	return append(chunks, "data: [DONE]\n\n")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	s.mu.Lock()
	s.activeUploads++
	if s.activeUploads > s.peakUploads {
		s.peakUploads = s.activeUploads
	}
	delay := s.uploadDelay
	failure, fail := s.uploadFailures[header.Filename]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.activeUploads--
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		writeError(w, http.StatusBadRequest, failure)
		return
	}

	preview := string(content)
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	doc := s.AddDocument(userID, Document{
		Filename:       header.Filename,
		ContentLength:  len(content),
		ChunkCount:     len(content)/500 + 1,
		ContentPreview: preview,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "File uploaded successfully",
		"document_id":    doc.ID,
		"content_length": doc.ContentLength,
		"chunk_count":    doc.ChunkCount,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	s.mu.Lock()
	if s.documentsFails > 0 {
		s.documentsFails--
		s.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	docs := append([]Document{}, s.docs[userID]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteError != "" {
		writeError(w, http.StatusInternalServerError, s.deleteError)
		return
	}
	docs := s.docs[req.UserID]
	for i, d := range docs {
		if d.ID == req.DocumentID {
			s.docs[req.UserID] = append(docs[:i:i], docs[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Document not found")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	s.mu.Lock()
	failure := s.searchError
	results := append([]SearchResult{}, s.searchResults...)
	s.mu.Unlock()

	if failure != "" {
		writeError(w, http.StatusInternalServerError, failure)
		return
	}
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "query": req.Query})
}

func (s *Server) handleUserState(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	docs := s.Documents(userID)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"document_count": len(docs),
		"document_ids":   ids,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
