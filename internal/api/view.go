package api

import (
	"log/slog"

	"github.com/kalambet/docchat/internal/documents"
	"github.com/kalambet/docchat/internal/search"
)

// LogView satisfies documents.View and search.View by logging. The MCP server
// owns stdout, so notices go to the log instead of a screen.
type LogView struct {
	Logger *slog.Logger
}

func (v LogView) logger() *slog.Logger {
	if v.Logger == nil {
		return slog.Default()
	}
	return v.Logger
}

func (v LogView) ShowDocuments(docs []documents.Document) {
	v.logger().Debug("documents updated", "count", len(docs))
}

func (v LogView) ShowDocumentsError(err error) {
	v.logger().Warn("documents unavailable", "error", err)
}

func (v LogView) UploadProgress(active bool) {
	v.logger().Debug("upload progress", "active", active)
}

func (v LogView) ShowResults(rs search.ResultSet) {
	v.logger().Debug("search results", "query", rs.Query, "count", len(rs.Results))
}

func (v LogView) Notify(msg string) {
	v.logger().Info(msg)
}
