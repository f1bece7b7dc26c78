package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// chunkReader returns one chunk per Read call, including empty chunks.
type chunkReader struct {
	chunks [][]byte
	err    error // returned once chunks are exhausted; io.EOF if nil
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	c := r.chunks[0]
	n := copy(p, c)
	if n < len(c) {
		r.chunks[0] = c[n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func splitAt(s string, cuts ...int) [][]byte {
	var out [][]byte
	prev := 0
	for _, c := range cuts {
		out = append(out, []byte(s[prev:c]))
		prev = c
	}
	return append(out, []byte(s[prev:]))
}

func collect(t *testing.T, d *Decoder) []Frame {
	t.Helper()
	var frames []Frame
	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		frames = append(frames, f)
	}
}

const helloStream = "data: {\"response\":\"Hel\"}\n\n" +
	"data: {\"response\":\"Hello\"}\n\n" +
	"data: {\"response\":\"Hello!\"}\n\n" +
	"data: [DONE]\n\n"

func TestDecoder_WholeStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(helloStream))
	frames := collect(t, d)

	want := []Frame{
		{Kind: Delta, Text: "Hel"},
		{Kind: Delta, Text: "Hello"},
		{Kind: Delta, Text: "Hello!"},
		{Kind: EndOfStream},
	}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d: %+v", len(frames), len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, frames[i], want[i])
		}
	}
}

func TestDecoder_EverySplitPoint(t *testing.T) {
	stream := "data: {\"response\":\"café ☃\"}\n\n" +
		"data: {\"response\":\"café ☃ \U0001F600\"}\n\n" +
		"data: {\"error\":\"quota überschritten\"}\n\n"

	for cut := 1; cut < len(stream); cut++ {
		d := NewDecoder(&chunkReader{chunks: splitAt(stream, cut)})
		frames := collect(t, d)
		if len(frames) != 3 {
			t.Fatalf("cut %d: got %d frames, want 3", cut, len(frames))
		}
		if frames[0].Text != "café ☃" {
			t.Errorf("cut %d: frame 0 = %q", cut, frames[0].Text)
		}
		if frames[1].Text != "café ☃ \U0001F600" {
			t.Errorf("cut %d: frame 1 = %q", cut, frames[1].Text)
		}
		if frames[2].Kind != ErrorEvent || frames[2].Text != "quota überschritten" {
			t.Errorf("cut %d: frame 2 = %+v", cut, frames[2])
		}
	}
}

func TestDecoder_OneByteReads(t *testing.T) {
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(helloStream)))
	frames := collect(t, d)
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	if frames[2].Text != "Hello!" {
		t.Errorf("last delta = %q, want Hello!", frames[2].Text)
	}
}

func TestDecoder_EmptyChunksAreNoOps(t *testing.T) {
	chunks := [][]byte{
		{},
		[]byte("data: {\"response\":\"a\"}"),
		{},
		[]byte("\n"),
		{},
		[]byte("\n"),
	}
	frames := collect(t, NewDecoder(&chunkReader{chunks: chunks}))
	if len(frames) != 1 || frames[0].Text != "a" {
		t.Errorf("frames = %+v, want one delta \"a\"", frames)
	}
}

func TestDecoder_SentinelHaltsProduction(t *testing.T) {
	stream := "data: {\"response\":\"one\"}\n\ndata: [DONE]\n\ndata: {\"response\":\"ghost\"}\n\n"
	r := &chunkReader{chunks: [][]byte{
		[]byte(stream),
		[]byte("data: {\"response\":\"later ghost\"}\n\n"),
	}}
	frames := collect(t, NewDecoder(r))

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(frames), frames)
	}
	if frames[1].Kind != EndOfStream {
		t.Errorf("frame 1 kind = %v, want end", frames[1].Kind)
	}
	if len(r.chunks) != 1 {
		t.Errorf("decoder read past the sentinel: %d chunks left, want 1", len(r.chunks))
	}
}

func TestDecoder_MalformedRecordDropped(t *testing.T) {
	stream := "data: {\"response\":\"a\"}\n\n" +
		"data: {not json\n\n" +
		"data: {\"response\":\"ab\"}\n\n"
	frames := collect(t, NewDecoder(strings.NewReader(stream)))

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(frames), frames)
	}
	if frames[0].Text != "a" || frames[1].Text != "ab" {
		t.Errorf("frames = %+v, want a then ab", frames)
	}
}

func TestDecoder_IgnoresNonDataRecords(t *testing.T) {
	stream := ": keepalive\n\nevent: ping\n\ndata:{\"response\":\"x\"}\n\ndata: {}\n\n"
	frames := collect(t, NewDecoder(strings.NewReader(stream)))
	if len(frames) != 1 || frames[0].Text != "x" {
		t.Errorf("frames = %+v, want one delta \"x\"", frames)
	}
}

func TestDecoder_TrailingDataDiscarded(t *testing.T) {
	stream := "data: {\"response\":\"a\"}\n\ndata: {\"response\":\"partial\"}"
	frames := collect(t, NewDecoder(strings.NewReader(stream)))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestDecoder_EmptyStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	if _, err := d.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() err = %v, want io.EOF", err)
	}
	if _, err := d.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("second Next() err = %v, want io.EOF", err)
	}
}

func TestDecoder_ReadErrorAfterCompleteRecords(t *testing.T) {
	boom := errors.New("connection reset")
	r := &chunkReader{
		chunks: [][]byte{[]byte("data: {\"response\":\"a\"}\n\ndata: {\"resp")},
		err:    boom,
	}
	d := NewDecoder(r)

	f, err := d.Next()
	if err != nil || f.Text != "a" {
		t.Fatalf("Next() = %+v, %v; want delta a", f, err)
	}
	if _, err := d.Next(); !errors.Is(err, boom) {
		t.Errorf("Next() err = %v, want %v", err, boom)
	}
}

func TestDecoder_FramesIterator(t *testing.T) {
	d := NewDecoder(strings.NewReader(helloStream))
	var texts []string
	for f, err := range d.Frames() {
		if err != nil {
			t.Fatalf("iteration error: %v", err)
		}
		if f.Kind == Delta {
			texts = append(texts, f.Text)
		}
	}
	if strings.Join(texts, "|") != "Hel|Hello|Hello!" {
		t.Errorf("texts = %v", texts)
	}
}

func TestDecoder_FramesIteratorStopsEarly(t *testing.T) {
	d := NewDecoder(strings.NewReader(helloStream))
	count := 0
	for range d.Frames() {
		count++
		break
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	f, err := d.Next()
	if err != nil || f.Text != "Hello" {
		t.Errorf("Next() after break = %+v, %v; want Hello", f, err)
	}
}
