package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an application-level failure reported by the backend through an
// "error" field. Error returns the server's text unchanged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusError is a non-2xx response that carried no readable error field.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.Status)
	}
	return fmt.Sprintf("HTTP error! status: %d: %s", e.Status, e.Body)
}

// networkError marks failures below HTTP: dial, TLS, reset, timeout.
type networkError struct {
	err error
}

func (e *networkError) Error() string {
	return fmt.Sprintf("backend not reachable: %v", e.err)
}

func (e *networkError) Unwrap() error {
	return e.err
}

// IsTransient reports whether err is worth retrying for an idempotent request.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *networkError
	if errors.As(err, &netErr) {
		return true
	}
	if status := StatusOf(err); status != 0 {
		return status == http.StatusTooManyRequests || status >= 500
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0 if there is none.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

func responseError(status int, body []byte) error {
	if msg := errorMessage(body); msg != "" {
		return &APIError{Status: status, Message: msg}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return &StatusError{Status: status, Body: text}
}

// errorMessage extracts the backend's error text. Both {"error":"text"} and
// {"error":{"message":"text"}} are accepted.
func errorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Error, &text); err == nil {
		return text
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}
