package textctx

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// Clipboard places transcripts on the system clipboard. With Append set the
// clipboard acts as the document: its current contents are the text before
// the cursor and new text is appended to them.
type Clipboard struct {
	Append bool

	read  func() (string, error)
	write func(string) error
}

func NewClipboard(appendMode bool) *Clipboard {
	return &Clipboard{Append: appendMode, read: clipboard.ReadAll, write: clipboard.WriteAll}
}

func (c *Clipboard) Before(context.Context) (string, error) {
	if !c.Append {
		return "", nil
	}
	text, err := c.read()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

func (c *Clipboard) Insert(ctx context.Context, text string) error {
	if c.Append {
		prev, err := c.Before(ctx)
		if err != nil {
			return err
		}
		text = prev + text
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
