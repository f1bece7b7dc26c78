package documents

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxBytes is the largest file the backend accepts.
const DefaultMaxBytes = 16 << 20

// DefaultAllowedTypes are the extensions the backend can extract text from.
var DefaultAllowedTypes = []string{"txt", "pdf", "docx", "md"}

// Limits is the pre-flight check run before a file is sent. Zero values
// disable the corresponding check.
type Limits struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultLimits returns the backend's documented limits.
func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes, AllowedTypes: DefaultAllowedTypes}
}

// Check rejects files the backend would refuse, without a network call.
func (l Limits) Check(f File) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), "."))
	if len(l.AllowedTypes) > 0 && !slices.Contains(l.AllowedTypes, ext) {
		return fmt.Errorf("unsupported file type %q (allowed: %s)", ext, strings.Join(l.AllowedTypes, ", "))
	}
	if l.MaxBytes > 0 && int64(len(f.Content)) > l.MaxBytes {
		return fmt.Errorf("file is %d bytes, larger than the %d byte limit", len(f.Content), l.MaxBytes)
	}
	if len(f.Content) == 0 {
		return fmt.Errorf("file is empty")
	}
	if ext == "pdf" {
		return checkPDF(f.Content)
	}
	return nil
}

func checkPDF(content []byte) (err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return fmt.Errorf("unreadable PDF: %w", err)
	}
	if r.NumPage() == 0 {
		return fmt.Errorf("PDF has no pages")
	}
	return nil
}
