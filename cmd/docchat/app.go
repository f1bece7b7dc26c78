package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/docchat/internal/chat"
	"github.com/kalambet/docchat/internal/config"
	"github.com/kalambet/docchat/internal/documents"
	"github.com/kalambet/docchat/internal/search"
	"github.com/kalambet/docchat/internal/session"
	"github.com/kalambet/docchat/internal/storage"
	"github.com/kalambet/docchat/internal/transport"
)

const sessionSettingKey = "session.id"

// app is everything a command needs to talk to the backend.
type app struct {
	cfg     config.Config
	client  *transport.Client
	session *session.Session
	store   *storage.Store // nil when local history could not be opened
	logger  *slog.Logger
}

var newApp = func(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if debugLogs {
		cfg.Log.Debug = true
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	baseURL := baseURLFlag
	if baseURL == "" {
		baseURL, err = transport.ResolveBaseURL(cfg.API.Origin, cfg.API.DevURL)
		if err != nil {
			return nil, err
		}
	}

	client := transport.New(transport.Options{
		BaseURL:       baseURL,
		Timeout:       cfg.API.Timeout,
		StreamTimeout: cfg.API.StreamTimeout,
		Retries:       cfg.API.Retries,
		UserAgent:     "docchat/" + version,
	})

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		logger.Warn("local history unavailable", "error", err)
		store = nil
	}

	sess := resolveSession(sessionFlag, store, logger)
	logger.Debug("client ready", "backend", client.BaseURL(), "session", sess.ID())

	return &app{cfg: cfg, client: client, session: sess, store: store, logger: logger}, nil
}

// resolveSession prefers an explicit id, then the stored one. A new id is
// stored so later invocations land in the same backend session.
func resolveSession(id string, store *storage.Store, logger *slog.Logger) *session.Session {
	if id != "" {
		return session.WithID(id)
	}
	if store == nil {
		return session.New()
	}

	stored, err := store.GetSetting(sessionSettingKey)
	if err == nil {
		return session.WithID(stored)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("reading stored session", "error", err)
	}

	sess := session.New()
	if err := store.SetSetting(sessionSettingKey, sess.ID()); err != nil {
		logger.Warn("storing session", "error", err)
	}
	return sess
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *app) controller(t chat.Transcript, format func(string) string) *chat.Controller {
	opts := chat.Options{
		Session:    a.session,
		Streamer:   a.client,
		Transcript: t,
		Format:     format,
		Logger:     a.logger,
	}
	if a.store != nil {
		opts.History = storage.NewHistory(a.store)
	}
	return chat.New(opts)
}

func (a *app) documents(view documents.View) *documents.Store {
	return documents.NewStore(a.client, a.session, view)
}

func (a *app) uploader(view documents.View, store *documents.Store) *documents.Uploader {
	return documents.NewUploader(documents.UploaderOptions{
		API:     a.client,
		Session: a.session,
		Store:   store,
		View:    view,
		Limits: documents.Limits{
			MaxBytes:     int64(a.cfg.Upload.MaxBytes),
			AllowedTypes: a.cfg.Upload.Types(),
		},
		Concurrency: a.cfg.Upload.Concurrency,
		Logger:      a.logger,
	})
}

func (a *app) searcher(view search.View) *search.Searcher {
	return search.New(a.client, a.session, view)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newTerminalFor(cmd *cobra.Command) *terminal {
	out := cmd.OutOrStdout()
	return newTerminal(out, cmd.ErrOrStderr(), isTerminal(out))
}
