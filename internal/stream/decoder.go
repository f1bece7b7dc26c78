// Package stream decodes the chat backend's server-sent event stream into
// ordered frames.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
)

// Kind discriminates Frame values.
type Kind int

const (
	Delta Kind = iota
	ErrorEvent
	EndOfStream
)

func (k Kind) String() string {
	switch k {
	case Delta:
		return "delta"
	case ErrorEvent:
		return "error"
	case EndOfStream:
		return "end"
	}
	return "unknown"
}

// Frame is one decoded server event. Text holds the cumulative reply for a
// Delta and the server's message for an ErrorEvent.
type Frame struct {
	Kind Kind
	Text string
}

const (
	dataPrefix    = "data:"
	doneSentinel  = "[DONE]"
	readChunkSize = 4 << 10
)

var recordDelimiter = []byte("\n\n")

// Decoder reads records separated by a blank line. Bytes are buffered
// undecoded until a record is complete, so multi-byte characters split across
// reads are never corrupted.
type Decoder struct {
	r      io.Reader
	logger *slog.Logger

	buf     []byte
	chunk   []byte
	pending []Frame
	readErr error
	done    bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for dropped-record diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:      r,
		logger: slog.Default(),
		chunk:  make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next frame. It returns io.EOF once the stream has ended,
// either naturally or after the sentinel record. A read failure is returned
// only after every complete record before it has been yielded.
func (d *Decoder) Next() (Frame, error) {
	for {
		if len(d.pending) > 0 {
			f := d.pending[0]
			d.pending = d.pending[1:]
			if f.Kind == EndOfStream {
				d.done = true
				d.pending = nil
			}
			return f, nil
		}
		if d.done {
			return Frame{}, io.EOF
		}
		if d.readErr != nil {
			d.done = true
			if errors.Is(d.readErr, io.EOF) {
				if len(bytes.TrimSpace(d.buf)) > 0 {
					d.logger.Debug("discarding unterminated trailing record", "bytes", len(d.buf))
				}
				d.buf = nil
				return Frame{}, io.EOF
			}
			return Frame{}, d.readErr
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.buf = append(d.buf, d.chunk[:n]...)
			d.split()
		}
		if err != nil {
			d.readErr = err
		}
	}
}

// Frames returns an iterator over the remaining frames. Iteration stops after
// io.EOF; any other error is yielded once as the final element.
func (d *Decoder) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// split moves every complete record in the buffer into pending.
func (d *Decoder) split() {
	for {
		i := bytes.Index(d.buf, recordDelimiter)
		if i < 0 {
			return
		}
		record := d.buf[:i]
		d.buf = d.buf[i+len(recordDelimiter):]

		f, ok := d.parse(record)
		if !ok {
			continue
		}
		d.pending = append(d.pending, f)
		if f.Kind == EndOfStream {
			// Anything after the sentinel is logically past the end.
			d.buf = nil
			return
		}
	}
}

type payload struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (d *Decoder) parse(record []byte) (Frame, bool) {
	if !bytes.HasPrefix(record, []byte(dataPrefix)) {
		if len(bytes.TrimSpace(record)) > 0 {
			d.logger.Debug("ignoring non-data record", "record", string(record))
		}
		return Frame{}, false
	}
	data := record[len(dataPrefix):]
	data = bytes.TrimPrefix(data, []byte(" "))

	if string(data) == doneSentinel {
		return Frame{Kind: EndOfStream}, true
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		d.logger.Warn("dropping malformed stream record", "error", err, "payload", string(data))
		return Frame{}, false
	}
	switch {
	case p.Response != "":
		return Frame{Kind: Delta, Text: p.Response}, true
	case p.Error != "":
		return Frame{Kind: ErrorEvent, Text: p.Error}, true
	}
	d.logger.Debug("dropping stream record without response or error", "payload", string(data))
	return Frame{}, false
}
