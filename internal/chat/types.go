package chat

import (
	"errors"
	"time"
)

// Status is the lifecycle stage of a Turn.
type Status int

const (
	Pending Status = iota
	Streaming
	Complete
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Streaming:
		return "streaming"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Turn is one request/response exchange. Err is set iff Status is Failed.
type Turn struct {
	UserText   string
	Status     Status
	Reply      string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

func (t *Turn) fail(err error) {
	t.Status = Failed
	t.Err = err
}

// ServerError is an error event delivered inside the reply stream.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// IsServerError reports whether err came from the stream itself rather than
// from the transport.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// Author identifies who an entry belongs to.
type Author int

const (
	User Author = iota
	Bot
	System
	// Indicator is the transient "typing" marker shown until a reply starts.
	Indicator
)

func (a Author) String() string {
	switch a {
	case User:
		return "user"
	case Bot:
		return "bot"
	case System:
		return "system"
	case Indicator:
		return "indicator"
	}
	return "unknown"
}

// EntryID identifies a transcript entry for later replacement or removal.
type EntryID int

// Entry is one transcript line. Text is the raw content; Display is what the
// sink should show.
type Entry struct {
	Author  Author
	Text    string
	Display string
	Failed  bool
}

// Transcript is the presentation sink for chat entries. Implementations
// reflect state; they never call back into the Controller.
type Transcript interface {
	Append(e Entry) EntryID
	Replace(id EntryID, e Entry)
	Remove(id EntryID)
	Clear()
}
