package textctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File treats a text file as the document; insertion appends to it.
type File struct {
	Path string
}

func (f File) Before(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Path, err)
	}
	return string(data), nil
}

func (f File) Insert(_ context.Context, text string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Path, err)
	}
	file, err := os.OpenFile(f.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	if _, err := file.WriteString(text); err != nil {
		file.Close()
		return fmt.Errorf("append %s: %w", f.Path, err)
	}
	return file.Close()
}

// Writer streams inserted text to w and remembers what it wrote so spacing
// between consecutive insertions stays correct.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	written string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Before(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, nil
}

func (w *Writer) Insert(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.w, text); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	w.written += text
	return nil
}
