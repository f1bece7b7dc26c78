package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		Retries:    3,
		Backoff:    time.Millisecond,
		UserAgent:  "docchat/test",
		HTTPClient: srv.Client(),
	})
}

func TestGetJSON_DecodesAndSendsQuery(t *testing.T) {
	var gotQuery, gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("user_id")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"documents":[{"id":"d1"}]}`)
	})

	var out struct {
		Documents []struct {
			ID string `json:"id"`
		} `json:"documents"`
	}
	if err := c.GetJSON(context.Background(), "/documents", url.Values{"user_id": {"user_abc"}}, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}

	if gotQuery != "user_abc" {
		t.Errorf("user_id = %q, want user_abc", gotQuery)
	}
	if gotUA != "docchat/test" {
		t.Errorf("User-Agent = %q, want docchat/test", gotUA)
	}
	if len(out.Documents) != 1 || out.Documents[0].ID != "d1" {
		t.Errorf("documents = %+v, want one with id d1", out.Documents)
	}
}

func TestGetJSON_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"documents":[]}`)
	})

	var out map[string]any
	if err := c.GetJSON(context.Background(), "/documents", nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestGetJSON_GivesUpAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.GetJSON(context.Background(), "/documents", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	if StatusOf(err) != http.StatusBadGateway {
		t.Errorf("StatusOf = %d, want 502", StatusOf(err))
	}
}

func TestGetJSON_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"user_id is required"}`)
	})

	err := c.GetJSON(context.Background(), "/documents", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Message != "user_id is required" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "user_id is required")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestPostJSON_NeverRetried(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.PostJSON(context.Background(), "/search", map[string]any{"query": "q"}, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestPostJSON_ErrorFieldOnSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"index not ready"}`)
	})

	err := c.PostJSON(context.Background(), "/search", map[string]any{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if err.Error() != "index not ready" {
		t.Errorf("Error() = %q, want %q", err.Error(), "index not ready")
	}
}

func TestDeleteJSON_SendsBody(t *testing.T) {
	var gotMethod string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"message":"deleted"}`)
	})

	var out struct {
		Message string `json:"message"`
	}
	err := c.DeleteJSON(context.Background(), "/delete-document", map[string]string{
		"user_id":     "user_1",
		"document_id": "doc-9",
	}, &out)
	if err != nil {
		t.Fatalf("DeleteJSON: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotBody["document_id"] != "doc-9" {
		t.Errorf("document_id = %q, want doc-9", gotBody["document_id"])
	}
	if out.Message != "deleted" {
		t.Errorf("message = %q, want deleted", out.Message)
	}
}

func TestUpload_Multipart(t *testing.T) {
	var gotFile, gotName, gotUser string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("parsing content type: %v", err)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(p)
			switch p.FormName() {
			case "file":
				gotFile = string(data)
				gotName = p.FileName()
			case "user_id":
				gotUser = string(data)
			}
		}
		fmt.Fprint(w, `{"content_length":5}`)
	})

	var out struct {
		ContentLength int `json:"content_length"`
	}
	err := c.Upload(context.Background(), "/upload", "notes.txt", []byte("hello"), map[string]string{"user_id": "user_1"}, &out)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotFile != "hello" || gotName != "notes.txt" {
		t.Errorf("file = %q (%q), want hello (notes.txt)", gotFile, gotName)
	}
	if gotUser != "user_1" {
		t.Errorf("user_id = %q, want user_1", gotUser)
	}
	if out.ContentLength != 5 {
		t.Errorf("content_length = %d, want 5", out.ContentLength)
	}
}

func TestStream_ReturnsBody(t *testing.T) {
	sseData := "data: {\"response\":\"Hi\"}\n\ndata: [DONE]\n\n"
	var gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseData)
	})

	rc, err := c.Stream(context.Background(), "/chat-stream", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != sseData {
		t.Errorf("body = %q, want %q", string(body), sseData)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q, want text/event-stream", gotAccept)
	}
}

func TestStream_NonSuccessStatus(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Stream(context.Background(), "/chat-stream", map[string]any{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %q, want it to mention 503", err.Error())
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (streams are not retried)", attempts.Load())
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:1", Retries: 1, Timeout: time.Second})
	err := c.GetJSON(context.Background(), "/documents", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("IsTransient(%v) = false, want true", err)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("context.Canceled should not be transient")
	}
	if !IsTransient(&StatusError{Status: 429}) {
		t.Error("429 should be transient")
	}
	if IsTransient(&APIError{Status: 404, Message: "gone"}) {
		t.Error("404 should not be transient")
	}
}

func TestResolveBaseURL(t *testing.T) {
	const dev = "http://127.0.0.1:5000"
	cases := []struct {
		origin string
		want   string
	}{
		{"http://localhost:8080", dev},
		{"http://127.0.0.1", dev},
		{"http://[::1]:3000", dev},
		{"https://chat.example.com", "https://chat.example.com"},
		{"https://docs.azurewebsites.net/app/index.html", "https://docs.azurewebsites.net"},
	}
	for _, tc := range cases {
		got, err := ResolveBaseURL(tc.origin, dev)
		if err != nil {
			t.Errorf("ResolveBaseURL(%q): %v", tc.origin, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ResolveBaseURL(%q) = %q, want %q", tc.origin, got, tc.want)
		}
	}

	if _, err := ResolveBaseURL("not a url", dev); err == nil {
		t.Error("expected error for origin without scheme")
	}
}
