package activation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/pkg/browser"
)

// BrowserLauncher hands the URI to the desktop's registered scheme handler.
type BrowserLauncher struct{}

func (BrowserLauncher) Activate(_ context.Context, uri string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	if err := browser.OpenURL(uri); err != nil {
		return fmt.Errorf("open activation uri: %w", err)
	}
	return nil
}

// ExecLauncher starts the host binary directly with the URI as its last
// argument, for systems without a scheme handler.
type ExecLauncher struct {
	Command string
	Args    []string
}

func (l ExecLauncher) Activate(ctx context.Context, uri string) error {
	if l.Command == "" {
		return fmt.Errorf("exec launcher: command is empty")
	}
	args := append(append([]string{}, l.Args...), uri)
	cmd := exec.Command(l.Command, args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	slog.Info("host launched", "pid", cmd.Process.Pid, "uri", uri)
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			slog.Debug("launched host exited", "error", err)
		}
	}()
	return nil
}
