package usecase

import (
	"context"
	"log/slog"
	"unicode"
	"unicode/utf8"

	"relaymic/internal/ports"
)

type transcriptFinalizer struct {
	text ports.TextContext
}

func newTranscriptFinalizer(text ports.TextContext) transcriptFinalizer {
	return transcriptFinalizer{text: text}
}

// Finalize inserts transcript at the cursor and returns what was inserted.
func (f transcriptFinalizer) Finalize(ctx context.Context, transcript string) (string, error) {
	if transcript == "" {
		return "", nil
	}
	before, err := f.text.Before(ctx)
	if err != nil {
		slog.Debug("text context unreadable, inserting without spacing", "error", err)
		before = ""
	}
	out := withLeadingSpace(before, transcript)
	if err := f.text.Insert(ctx, out); err != nil {
		return "", err
	}
	return out, nil
}

// withLeadingSpace separates text from the preceding word unless the
// context is empty or already ends in whitespace.
func withLeadingSpace(before, text string) string {
	if before == "" || text == "" {
		return text
	}
	last, _ := utf8.DecodeLastRuneInString(before)
	if unicode.IsSpace(last) {
		return text
	}
	return " " + text
}
