// Package clusterjson exports published cluster sets as JSON lines.
package clusterjson

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Writer appends one line per published cluster set.
type Writer struct {
	w       io.Writer
	closer  io.Closer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter opens path for appending, creating its directory.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	logging.Info().Str("path", path).Msg("cluster JSONL writer initialized")
	w := NewStreamWriter(f)
	w.closer = f
	return w, nil
}

// NewStreamWriter writes lines to w.
func NewStreamWriter(w io.Writer) *Writer {
	return &Writer{w: w, encoder: json.NewEncoder(w)}
}

// Publish writes set as a single line.
func (w *Writer) Publish(set *models.ClusterSet) error {
	if set == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Encode(set); err != nil {
		return fmt.Errorf("failed to encode cluster set %d: %w", set.Version, err)
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
