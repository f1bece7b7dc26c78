package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/chat"
)

// History records chat turns into a Store.
type History struct {
	store *Store
}

// NewHistory returns a chat.HistoryRecorder backed by s.
func NewHistory(s *Store) *History {
	return &History{store: s}
}

// RecordTurn saves a finished turn. Turns that never left Pending or
// Streaming are not recorded.
func (h *History) RecordTurn(_ context.Context, sessionID string, turn chat.Turn) error {
	if turn.Status != chat.Complete && turn.Status != chat.Failed {
		return nil
	}

	rec := TurnRecord{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		CreatedAt: turn.StartedAt,
		UserText:  turn.UserText,
		Reply:     turn.Reply,
		Status:    turn.Status.String(),
	}
	if turn.Err != nil {
		rec.Error = turn.Err.Error()
	}
	return h.store.SaveTurn(rec)
}
