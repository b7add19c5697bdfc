package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"relaymic/internal/bootstrap"
	"relaymic/internal/domain"
	"relaymic/internal/ports"
	"relaymic/internal/sched"
	"relaymic/internal/textctx"
	"relaymic/internal/tui"
)

func (c *cli) dictateCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "dictate",
		Short: "Dictate once and insert the transcript into a target",
		Long: `Requests one dictation session from the host, starting the host if
needed. Press Enter to stop recording early; otherwise the host stops on
silence. The transcript goes to the clipboard, stdout or a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := parseTarget(target, c.stdout)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.dictateOnce(ctx, text, os.Stdin)
		},
	}
	cmd.Flags().StringVar(&target, "target", "clipboard", "where to insert: clipboard, clipboard+append, stdout or file:<path>")
	return cmd
}

func parseTarget(target string, stdout io.Writer) (ports.TextContext, error) {
	switch {
	case target == "clipboard":
		return textctx.NewClipboard(false), nil
	case target == "clipboard+append":
		return textctx.NewClipboard(true), nil
	case target == "stdout":
		return textctx.NewWriter(stdout), nil
	case strings.HasPrefix(target, "file:"):
		path := strings.TrimPrefix(target, "file:")
		if path == "" {
			return nil, errors.New("file target needs a path")
		}
		return textctx.File{Path: path}, nil
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
}

func (c *cli) dictateOnce(ctx context.Context, text ports.TextContext, stdin io.Reader) error {
	view := newConsoleView(c.stderr)
	requester, err := bootstrap.BuildRequester(c.cfg, text, view, sched.Real{})
	if err != nil {
		return err
	}
	defer requester.Close()

	observeCtx, cancel := context.WithCancel(ctx)
	observed := make(chan error, 1)
	go func() { observed <- requester.Client.Observe(observeCtx) }()
	finish := func() {
		cancel()
		<-observed
		// Waits out an observation still holding the client lock.
		requester.Client.Tracked()
	}

	if err := requester.Client.DictateButtonTapped(ctx); err != nil {
		finish()
		return err
	}

	go func() {
		lines := bufio.NewScanner(stdin)
		for lines.Scan() {
			if _, phase := requester.Client.Tracked(); phase != domain.PhaseRecording {
				continue
			}
			if err := requester.Client.DictateButtonTapped(ctx); err != nil {
				slog.Warn("stop request failed", "error", err)
			}
		}
	}()

	select {
	case <-view.done:
	case <-ctx.Done():
	}
	finish()
	if ctx.Err() != nil {
		requester.Client.ResetToIdle(context.WithoutCancel(ctx))
		return nil
	}
	return view.err()
}

// consoleView prints each new status line and signals done once a session
// it saw start has returned to idle.
type consoleView struct {
	out  io.Writer
	done chan struct{}

	mu      sync.Mutex
	last    string
	started bool
	failure string
	once    sync.Once
}

func newConsoleView(out io.Writer) *consoleView {
	return &consoleView{out: out, done: make(chan struct{})}
}

func (v *consoleView) Render(status domain.RequesterStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if status.Message != "" && status.Message != v.last {
		fmt.Fprintln(v.out, status.Message)
		v.last = status.Message
	}
	switch status.Phase {
	case domain.PhaseIdle:
		if v.started {
			v.once.Do(func() { close(v.done) })
		}
	case domain.PhaseError:
		v.started = true
		v.failure = status.Message
	default:
		v.started = true
	}
}

func (v *consoleView) err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failure == "" {
		return nil
	}
	return errors.New(v.failure)
}

func (c *cli) keyboardCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "keyboard",
		Short: "Open a terminal text field with a dictate key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.quietLogging(); err != nil {
				return err
			}
			initial := ""
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("read %s: %w", file, err)
				}
				initial = string(data)
			}
			document := textctx.NewBuffer(initial)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			view := tui.NewProgramView()
			requester, err := bootstrap.BuildRequester(c.cfg, document, view, sched.Real{})
			if err != nil {
				return err
			}
			defer requester.Close()

			program := tea.NewProgram(tui.New(ctx, requester.Client, document), tea.WithAltScreen(), tea.WithContext(ctx))
			view.Attach(ctx, program)
			go func() {
				if err := requester.Client.Observe(ctx); err != nil {
					slog.Debug("observe stopped", "error", err)
				}
			}()

			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			cancel()
			requester.Client.Tracked()

			if file != "" {
				if err := os.WriteFile(file, []byte(document.String()), 0o644); err != nil {
					return fmt.Errorf("save %s: %w", file, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "load the document from and save it back to this file")
	return cmd
}

// quietLogging keeps log lines off the alternate screen: they go to a file
// when verbose, nowhere otherwise.
func (c *cli) quietLogging() error {
	if c.verbose == 0 {
		return setupLogging(io.Discard, 0, "text")
	}
	f, err := tea.LogToFile(filepath.Join(os.TempDir(), "relaymic-keyboard.log"), "")
	if err != nil {
		return err
	}
	return setupLogging(f, c.verbose, "text")
}
