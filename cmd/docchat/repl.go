package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/docchat/internal/chat"
	"github.com/kalambet/docchat/internal/documents"
	"github.com/kalambet/docchat/internal/search"
)

const replHelp = `Commands:
  /docs on|off     answer from your documents, or from general knowledge
  /clear           clear the conversation
  /search <query>  search your documents
  /upload <file>…  upload documents
  /ls              list your documents
  /rm <id>         delete a document
  /help            show this help
  /quit            leave`

// repl reads one message or slash command per line until EOF or /quit.
type repl struct {
	in       io.Reader
	out      io.Writer
	errw     io.Writer
	prompt   bool
	limit    int
	chat     *chat.Controller
	term     *terminal
	docs     *documents.Store
	uploader *documents.Uploader
	searcher *search.Searcher
}

func newREPL(cmd *cobra.Command, a *app, ctrl *chat.Controller, term *terminal) *repl {
	docs := a.documents(term)
	return &repl{
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		errw:     cmd.ErrOrStderr(),
		prompt:   isTerminal(cmd.InOrStdin()),
		limit:    a.cfg.Search.Limit,
		chat:     ctrl,
		term:     term,
		docs:     docs,
		uploader: a.uploader(term, docs),
		searcher: a.searcher(term),
	}
}

func (r *repl) run(ctx context.Context) error {
	if r.prompt {
		fprintStep(r.errw, "Type a message, or /help for commands.")
	}

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if r.prompt {
			fmt.Fprint(r.out, boldColor.Sprint("> "))
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return sc.Err()
}

// handle runs one line. It reports whether the loop should stop.
func (r *repl) handle(parent context.Context, line string) bool {
	ctx, stop := interruptible(parent)
	defer stop()

	if !strings.HasPrefix(line, "/") {
		_, err := r.chat.Submit(ctx, line)
		r.term.Commit()
		if err != nil {
			fprintError(r.errw, "%v", err)
		}
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/docs":
		switch arg {
		case "on":
			r.chat.SetDocumentMode(true)
		case "off":
			r.chat.SetDocumentMode(false)
		default:
			fprintError(r.errw, "usage: /docs on|off")
		}
	case "/clear":
		if err := r.chat.Clear(); err != nil {
			fprintError(r.errw, "%v", err)
		}
		r.term.Commit()
	case "/search":
		_, err := r.searcher.Search(ctx, arg, r.limit)
		if errors.Is(err, search.ErrEmptyQuery) || errors.Is(err, search.ErrBusy) {
			fprintError(r.errw, "%v", err)
		}
	case "/upload":
		r.upload(ctx, strings.Fields(arg))
	case "/ls":
		_, _ = r.docs.Refresh(ctx)
	case "/rm":
		if arg == "" {
			fprintError(r.errw, "usage: /rm <id>")
			break
		}
		_ = r.docs.Remove(ctx, arg)
	default:
		fprintError(r.errw, "unknown command %s (try /help)", name)
	}
	return false
}

func (r *repl) upload(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		fprintError(r.errw, "usage: /upload <file>...")
		return
	}
	files, err := readFiles(paths)
	if err != nil {
		fprintError(r.errw, "%v", err)
		return
	}
	if _, err := r.uploader.UploadBatch(ctx, files); err != nil {
		fprintError(r.errw, "%v", err)
	}
}
