package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/docchat/internal/api"
	"github.com/kalambet/docchat/internal/chat"
	"github.com/kalambet/docchat/internal/config"
	"github.com/kalambet/docchat/internal/documents"
	"github.com/kalambet/docchat/internal/render"
	"github.com/kalambet/docchat/internal/search"
	"github.com/kalambet/docchat/internal/session"
)

// interruptible returns a context cancelled by Ctrl-C, so a long reply can be
// abandoned without leaving the program.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send a message, or start an interactive chat",
	Long: `Send a message and print the reply. Without a message, start an
interactive chat that reads one message per line.

Examples:
  docchat chat "What does the contract say about termination?" --docs
  docchat chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, _ := cmd.Flags().GetBool("docs")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		term := newTerminalFor(cmd)
		ctrl := a.controller(term, terminalFormat)

		if len(args) == 0 {
			r := newREPL(cmd, a, ctrl, term)
			if docs {
				ctrl.SetDocumentMode(true)
			}
			return r.run(cmd.Context())
		}

		a.session.SetDocumentMode(docs)
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		turn, err := ctrl.Submit(ctx, strings.Join(args, " "))
		term.Commit()
		if err != nil {
			return err
		}
		if turn.Status == chat.Failed {
			return errReported
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().Bool("docs", false, "answer from the uploaded documents")
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents for semantic search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := readFiles(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		term := newTerminalFor(cmd)
		store := a.documents(term)
		summary, err := a.uploader(term, store).UploadBatch(cmd.Context(), files)
		if err != nil {
			return err
		}
		if summary.Succeeded < summary.Total {
			return errReported
		}
		return nil
	},
}

func readFiles(paths []string) ([]documents.File, error) {
	files := make([]documents.File, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		files = append(files, documents.File{Name: filepath.Base(p), Content: content})
	}
	return files, nil
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the session's documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.documents(newTerminalFor(cmd)).Refresh(cmd.Context()); err != nil {
			return errReported
		}
		return nil
	},
}

var docsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.documents(newTerminalFor(cmd)).Remove(cmd.Context(), args[0]); err != nil {
			return errReported
		}
		return nil
	},
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsRmCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if !cmd.Flags().Changed("limit") {
			limit = a.cfg.Search.Limit
		}

		_, err = a.searcher(newTerminalFor(cmd)).Search(cmd.Context(), strings.Join(args, " "), limit)
		switch {
		case errors.Is(err, search.ErrEmptyQuery):
			return err
		case err != nil:
			return errReported
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results (1-50)")
}

// --- debug ---

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Inspect backend state",
}

var debugStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show what the backend holds for this session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var state any
		q := url.Values{"user_id": {a.session.ID()}}
		if err := a.client.GetJSON(cmd.Context(), "/debug/user-state", q, &state); err != nil {
			return fmt.Errorf("fetching user state: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}

func init() {
	debugCmd.AddCommand(debugStateCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded chat turns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.store == nil {
			return fmt.Errorf("local history is unavailable")
		}

		sessionID := a.session.ID()
		if all {
			sessionID = ""
		}
		turns, err := a.store.RecentTurns(sessionID, limit)
		if err != nil {
			return fmt.Errorf("reading history: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(turns) == 0 {
			fmt.Fprintln(out, "No history found.")
			return nil
		}

		// Oldest first, like a transcript.
		for i := len(turns) - 1; i >= 0; i-- {
			t := turns[i]
			status := successColor.Sprint(t.Status)
			if t.Status != chat.Complete.String() {
				status = errorColor.Sprint(t.Status)
			}
			fmt.Fprintf(out, "%s  %s  %s\n",
				faintColor.Sprint(t.CreatedAt.Local().Format(time.DateTime)),
				status,
				boldColor.Sprint(shorten(sanitize(t.UserText), 80)),
			)
			switch {
			case t.Error != "":
				fmt.Fprintf(out, "  %s\n", errorColor.Sprint("Error: "+sanitize(t.Error)))
			case t.Reply != "":
				fmt.Fprintf(out, "  %s\n", terminalFormat(t.Reply))
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of turns to show")
	historyCmd.Flags().Bool("all", false, "include every session, not only the current one")
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show or replace the session id",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current session id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), a.session.ID())
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new session",
	Long: `Start a new session. Documents uploaded under the old session stay on
the backend but are no longer visible. Use --purge to also drop the old
session's local history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		purge, _ := cmd.Flags().GetBool("purge")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.store == nil {
			return fmt.Errorf("local storage is unavailable")
		}

		old := a.session.ID()
		next := session.New()
		if err := a.store.SetSetting(sessionSettingKey, next.ID()); err != nil {
			return fmt.Errorf("storing session: %w", err)
		}
		if purge {
			n, err := a.store.DeleteTurns(old)
			if err != nil {
				return fmt.Errorf("purging history: %w", err)
			}
			fprintStep(cmd.ErrOrStderr(), "Removed %d recorded turns", n)
		}

		fprintSuccess(cmd.ErrOrStderr(), "New session %s", next.ID())
		return nil
	},
}

func init() {
	sessionResetCmd.Flags().Bool("purge", false, "delete the old session's local history")
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", boldColor.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		fprintSuccess(cmd.ErrOrStderr(), "Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		fprintSuccess(cmd.ErrOrStderr(), "Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- mcp ---

// mcpTranscriptLimit caps the entries kept for a long-running MCP server.
// Replies are returned to the caller, so old entries are never read again.
const mcpTranscriptLimit = 100

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat tools over MCP (stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		view := api.LogView{Logger: a.logger}
		docs := a.documents(view)
		deps := api.MCPDeps{
			SessionID: a.session.ID(),
			Chat:      a.controller(chat.NewBoundedMemory(mcpTranscriptLimit), render.Plain),
			Documents: docs,
			Uploader:  a.uploader(view, docs),
			Search:    a.searcher(view),
		}
		if a.store != nil {
			deps.History = a.store
		}

		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a.logger.Info("MCP server started (stdio transport)", "session", a.session.ID())
		err = server.NewStdioServer(api.NewMCPServer(deps)).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}
