// Package chat drives one chat turn at a time: it posts the user's message,
// consumes the streamed reply, and keeps a single transcript entry in step
// with the cumulative text the server sends.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/docchat/internal/render"
	"github.com/kalambet/docchat/internal/session"
	"github.com/kalambet/docchat/internal/stream"
)

const chatPath = "/chat-stream"

var (
	// ErrEmptyMessage is returned for blank input; no turn is created.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned while another turn is still in flight.
	ErrBusy = errors.New("a reply is still in progress")
)

// Streamer opens the streaming chat request.
type Streamer interface {
	Stream(ctx context.Context, path string, body any) (io.ReadCloser, error)
}

// HistoryRecorder persists finished turns. Optional.
type HistoryRecorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn Turn) error
}

type chatRequest struct {
	Message      string `json:"message"`
	UserID       string `json:"user_id"`
	UseDocuments bool   `json:"use_documents"`
}

// Options configures a Controller.
type Options struct {
	Session    *session.Session
	Streamer   Streamer
	Transcript Transcript
	// Format converts reply text for display. Defaults to render.HTML.
	Format  func(string) string
	History HistoryRecorder
	Logger  *slog.Logger
}

// Controller owns the transcript and the single in-flight turn.
type Controller struct {
	session    *session.Session
	streamer   Streamer
	transcript Transcript
	format     func(string) string
	history    HistoryRecorder
	logger     *slog.Logger
	gate       session.Gate
}

// New creates a Controller.
func New(opts Options) *Controller {
	c := &Controller{
		session:    opts.Session,
		streamer:   opts.Streamer,
		transcript: opts.Transcript,
		format:     opts.Format,
		history:    opts.History,
		logger:     opts.Logger,
	}
	if c.format == nil {
		c.format = render.HTML
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.gate.Busy()
}

// Submit runs one chat turn to completion. Blank input and overlapping
// submissions are rejected before anything is rendered. Every other outcome,
// including transport and server failures, is reported through the returned
// Turn and the transcript, never as an error.
func (c *Controller) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !c.gate.TryEnter() {
		return nil, ErrBusy
	}
	defer c.gate.Leave()

	turn := &Turn{UserText: text, Status: Pending, StartedAt: time.Now().UTC()}
	c.transcript.Append(Entry{Author: User, Text: text, Display: text})
	typing := c.transcript.Append(Entry{Author: Indicator, Text: "Typing...", Display: "Typing..."})

	c.run(ctx, turn, typing)

	turn.FinishedAt = time.Now().UTC()
	c.record(ctx, turn)
	return turn, nil
}

func (c *Controller) run(ctx context.Context, turn *Turn, typing EntryID) {
	showingTyping := true
	hideTyping := func() {
		if showingTyping {
			c.transcript.Remove(typing)
			showingTyping = false
		}
	}
	defer hideTyping()

	body, err := c.streamer.Stream(ctx, chatPath, chatRequest{
		Message:      turn.UserText,
		UserID:       c.session.ID(),
		UseDocuments: c.session.DocumentMode(),
	})
	if err != nil {
		c.logger.Warn("chat request failed", "error", err)
		hideTyping()
		turn.fail(err)
		c.transcript.Append(c.failedEntry(err))
		return
	}
	defer body.Close()

	turn.Status = Streaming
	var reply EntryID
	haveReply := false
	show := func(e Entry) {
		if haveReply {
			c.transcript.Replace(reply, e)
			return
		}
		hideTyping()
		reply = c.transcript.Append(e)
		haveReply = true
	}

	dec := stream.NewDecoder(body, stream.WithLogger(c.logger))
	for {
		if err := ctx.Err(); err != nil {
			turn.fail(err)
			show(c.failedEntry(err))
			return
		}

		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			c.logger.Warn("chat stream interrupted", "error", err)
			turn.fail(fmt.Errorf("reading reply: %w", err))
			show(c.failedEntry(turn.Err))
			return
		}

		switch frame.Kind {
		case stream.Delta:
			// The server sends the whole reply so far, not an increment.
			turn.Reply = frame.Text
			show(Entry{Author: Bot, Text: frame.Text, Display: c.format(frame.Text)})
		case stream.ErrorEvent:
			turn.fail(&ServerError{Message: frame.Text})
			show(c.failedEntry(turn.Err))
			return
		case stream.EndOfStream:
			// Next reports io.EOF from here on.
		}
	}

	turn.Status = Complete
}

func (c *Controller) failedEntry(err error) Entry {
	msg := "Error: " + err.Error()
	return Entry{Author: Bot, Text: msg, Display: msg, Failed: true}
}

func (c *Controller) record(ctx context.Context, turn *Turn) {
	if c.history == nil {
		return
	}
	// A cancelled turn is still worth recording.
	ctx = context.WithoutCancel(ctx)
	if err := c.history.RecordTurn(ctx, c.session.ID(), *turn); err != nil {
		c.logger.Warn("recording chat turn", "error", err)
	}
}

// SetDocumentMode switches whether replies are grounded in uploaded documents
// and notes the change in the transcript.
func (c *Controller) SetDocumentMode(on bool) {
	c.session.SetDocumentMode(on)
	msg := "Document mode disabled - I'll answer from general knowledge"
	if on {
		msg = "Document mode enabled - I'll use semantic search to find relevant information from your documents"
	}
	c.Notify(msg)
}

// Notify appends a system entry to the transcript.
func (c *Controller) Notify(msg string) {
	c.transcript.Append(Entry{Author: System, Text: msg, Display: msg})
}

// Clear empties the transcript. It is refused while a turn is in flight,
// since that turn still owns an entry.
func (c *Controller) Clear() error {
	if !c.gate.TryEnter() {
		return ErrBusy
	}
	defer c.gate.Leave()

	c.transcript.Clear()
	msg := "Chat history cleared. How can I help you?"
	c.transcript.Append(Entry{Author: Bot, Text: msg, Display: msg})
	return nil
}
