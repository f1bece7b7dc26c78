package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/docchat/internal/session"
)

const defaultConcurrency = 2

// ErrBusy is returned when a batch is started while another is running.
var ErrBusy = errors.New("an upload batch is already in progress")

// File is one file picked for upload.
type File struct {
	Name    string
	Content []byte
}

// Failure records why one file of a batch was not uploaded.
type Failure struct {
	Name string
	Err  error
}

// Summary is the aggregate outcome of a batch.
type Summary struct {
	Succeeded int
	Total     int
	Failures  []Failure
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	API         API
	Session     *session.Session
	Store       *Store
	View        View
	Limits      Limits
	Concurrency int
	Logger      *slog.Logger
}

// Uploader sends batches of files and reconciles the Store once per batch.
type Uploader struct {
	api         API
	session     *session.Session
	store       *Store
	view        View
	limits      Limits
	concurrency int
	logger      *slog.Logger
	gate        session.Gate
}

// NewUploader creates an Uploader.
func NewUploader(opts UploaderOptions) *Uploader {
	u := &Uploader{
		api:         opts.API,
		session:     opts.Session,
		store:       opts.Store,
		view:        opts.View,
		limits:      opts.Limits,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if u.concurrency <= 0 {
		u.concurrency = defaultConcurrency
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u
}

// Busy reports whether a batch is in progress.
func (u *Uploader) Busy() bool {
	return u.gate.Busy()
}

// UploadBatch uploads files independently; one failure never stops the
// others. Once every file has resolved the Store is refreshed exactly once.
func (u *Uploader) UploadBatch(ctx context.Context, files []File) (Summary, error) {
	if len(files) == 0 {
		return Summary{}, nil
	}
	if !u.gate.TryEnter() {
		return Summary{}, ErrBusy
	}

	summary := u.run(ctx, files)

	u.gate.Leave()
	u.view.UploadProgress(false)

	// A failed refresh is shown by the store itself.
	_, _ = u.store.Refresh(ctx)

	switch {
	case summary.Succeeded == 0:
		// Each failure has already been reported on its own.
	case summary.Total == 1:
		u.view.Notify("Document uploaded and processed with semantic embeddings!")
	default:
		u.view.Notify(fmt.Sprintf("%d/%d documents uploaded and processed with semantic embeddings!", summary.Succeeded, summary.Total))
	}
	return summary, nil
}

func (u *Uploader) run(ctx context.Context, files []File) Summary {
	u.view.UploadProgress(true)

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(files)}
	)

	// Workers never return an error, so one failure cannot cancel the rest.
	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for _, f := range files {
		g.Go(func() error {
			err := u.uploadOne(ctx, f)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				u.logger.Warn("upload failed", "file", f.Name, "error", err)
				summary.Failures = append(summary.Failures, Failure{Name: f.Name, Err: err})
				u.view.Notify(fmt.Sprintf("Failed to upload %s: %v", f.Name, err))
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

func (u *Uploader) uploadOne(ctx context.Context, f File) error {
	if err := u.limits.Check(f); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var resp struct {
		ContentLength int `json:"content_length"`
		ChunkCount    int `json:"chunk_count"`
	}
	err := u.api.Upload(ctx, uploadPath, f.Name, f.Content, map[string]string{
		"user_id": u.session.ID(),
	}, &resp)
	if err != nil {
		return err
	}
	u.logger.Debug("upload succeeded", "file", f.Name, "content_length", resp.ContentLength, "chunks", resp.ChunkCount)
	return nil
}
