package textctx

import (
	"context"
	"strings"
	"sync"
)

// Buffer is an in-memory document, used by the keyboard UI.
type Buffer struct {
	mu   sync.Mutex
	text strings.Builder
}

func NewBuffer(initial string) *Buffer {
	b := &Buffer{}
	b.text.WriteString(initial)
	return b
}

func (b *Buffer) Before(context.Context) (string, error) {
	return b.String(), nil
}

func (b *Buffer) Insert(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.WriteString(text)
	return nil
}

// Backspace drops the last rune.
func (b *Buffer) Backspace() {
	b.mu.Lock()
	defer b.mu.Unlock()
	runes := []rune(b.text.String())
	if len(runes) == 0 {
		return
	}
	b.text.Reset()
	b.text.WriteString(string(runes[:len(runes)-1]))
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}
