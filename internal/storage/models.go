package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TurnRecord is one finished chat turn as kept in local history.
type TurnRecord struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	UserText  string
	Reply     string
	Status    string // "complete" or "failed"
	Error     string
}
