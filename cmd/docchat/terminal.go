package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/kalambet/docchat/internal/chat"
	"github.com/kalambet/docchat/internal/documents"
	"github.com/kalambet/docchat/internal/render"
	"github.com/kalambet/docchat/internal/search"
)

const snippetLimit = 500

// terminal renders the transcript, document list, and search results as
// lines of text. In live mode replies are echoed as they stream and the
// typing indicator is drawn; otherwise each bot entry is printed once, fully
// formatted, when the caller commits it.
type terminal struct {
	out  io.Writer
	errw io.Writer
	live bool

	mu      sync.Mutex
	next    chat.EntryID
	pending map[chat.EntryID]chat.Entry
	order   []chat.EntryID
	printed map[chat.EntryID]string // live mode: raw text already echoed
	typing  bool
}

func newTerminal(out, errw io.Writer, live bool) *terminal {
	return &terminal{
		out:     out,
		errw:    errw,
		live:    live,
		pending: make(map[chat.EntryID]chat.Entry),
		printed: make(map[chat.EntryID]string),
	}
}

// --- chat.Transcript ---

func (t *terminal) Append(e chat.Entry) chat.EntryID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next

	switch e.Author {
	case chat.User:
		// The user already sees what they typed.
	case chat.System:
		fprintStep(t.errw, "%s", sanitize(e.Text))
	case chat.Indicator:
		if t.live {
			fmt.Fprint(t.errw, faintColor.Sprint(e.Text))
			t.typing = true
		}
	case chat.Bot:
		t.pending[id] = e
		t.order = append(t.order, id)
		t.echo(id, e)
	}
	return id
}

func (t *terminal) Replace(id chat.EntryID, e chat.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; !ok {
		return
	}
	t.pending[id] = e
	t.echo(id, e)
}

func (t *terminal) Remove(id chat.EntryID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		return
	}
	if t.typing {
		t.clearLine()
	}
}

func (t *terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[chat.EntryID]chat.Entry)
	t.printed = make(map[chat.EntryID]string)
	t.order = nil
}

// echo streams the new part of a live reply. A reply that no longer extends
// what was shown is reprinted on a fresh line.
func (t *terminal) echo(id chat.EntryID, e chat.Entry) {
	if !t.live || e.Failed {
		return
	}
	if t.typing {
		t.clearLine()
	}
	text := sanitize(e.Text)
	shown := t.printed[id]
	if strings.HasPrefix(text, shown) {
		fmt.Fprint(t.out, text[len(shown):])
	} else {
		fmt.Fprint(t.out, "\n"+text)
	}
	t.printed[id] = text
}

func (t *terminal) clearLine() {
	fmt.Fprint(t.errw, "\r\033[K")
	t.typing = false
}

// Commit finishes every bot entry appended since the last commit. Display is
// printed as given; see terminalFormat.
func (t *terminal) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.order {
		e, ok := t.pending[id]
		if !ok {
			continue
		}
		switch {
		case e.Failed:
			if _, echoed := t.printed[id]; echoed {
				fmt.Fprintln(t.out)
			}
			fprintError(t.errw, "%s", sanitize(e.Text))
		case t.live:
			fmt.Fprintln(t.out)
		default:
			fmt.Fprintln(t.out, e.Display)
		}
	}
	t.pending = make(map[chat.EntryID]chat.Entry)
	t.printed = make(map[chat.EntryID]string)
	t.order = nil
}

// --- documents.View and search.View ---

func (t *terminal) ShowDocuments(docs []documents.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(docs) == 0 {
		fmt.Fprintln(t.out, documents.EmptyMarker)
		return
	}
	for _, d := range docs {
		length := "Unknown"
		if d.ContentLength > 0 {
			length = fmt.Sprintf("%d", d.ContentLength)
		}
		fmt.Fprintf(t.out, "%s  %s  %s chars, %d chunks\n",
			stepColor.Sprint(sanitize(d.ID)), boldColor.Sprint(sanitize(d.Filename)), length, d.ChunkCount)
		if d.ContentPreview != "" {
			fmt.Fprintf(t.out, "    %s\n", faintColor.Sprint(oneLine(sanitize(d.ContentPreview))))
		}
	}
}

func (t *terminal) ShowDocumentsError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fprintWarning(t.errw, "%s: %s", documents.ErrorMarker, sanitize(err.Error()))
}

func (t *terminal) UploadProgress(active bool) {
	if !active {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fprintStep(t.errw, "Uploading...")
}

func (t *terminal) ShowResults(rs search.ResultSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rs.Empty() {
		fmt.Fprintln(t.out, search.EmptyMarker)
		return
	}
	for _, r := range rs.Results {
		fmt.Fprintf(t.out, "\n%s [%d%%]\n", boldColor.Sprint(sanitize(r.Filename)), search.Percent(r.Similarity))
		fmt.Fprintf(t.out, "  %s\n", shorten(sanitize(r.Content), snippetLimit))
	}
}

func (t *terminal) Notify(msg string) {
	msg = sanitize(msg)
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case isFailureNotice(msg):
		fprintError(t.errw, "%s", msg)
	case strings.Contains(msg, "uploaded and processed"), strings.HasPrefix(msg, "Document deleted"):
		fprintSuccess(t.errw, "%s", msg)
	default:
		fprintStep(t.errw, "%s", msg)
	}
}

func isFailureNotice(msg string) bool {
	for _, p := range []string{"Error:", "Failed to upload", "Search error:"} {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitize drops control characters other than newline and tab, so text from
// the backend cannot move the cursor, retitle the window, or fake output.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
}

// terminalFormat styles a reply for the terminal after removing control
// characters; the styling it adds is the only escape sequence left.
func terminalFormat(text string) string {
	return render.Terminal(sanitize(text))
}
