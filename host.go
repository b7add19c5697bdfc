package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relaymic/internal/activation"
	"relaymic/internal/bootstrap"
	"relaymic/internal/feedback"
	"relaymic/internal/sched"
)

func (c *cli) hostCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the dictation host until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			uri := ""
			if session != "" {
				uri = activation.Build(c.cfg.Activation.Scheme, session)
			}
			return c.runHost(ctx, uri)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id of a stored start request to pick up on startup")
	return cmd
}

func (c *cli) activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <uri>",
		Short: "Handle an activation URI, starting the host if none is alive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			if _, err := activation.Parse(uri, c.cfg.Activation.Scheme); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			alive, err := c.hostAlive(ctx)
			if err != nil {
				return err
			}
			if alive {
				slog.Info("host already running, activation left to it", "uri", uri)
				return nil
			}
			return c.runHost(ctx, uri)
		},
	}
}

// hostAlive checks liveness and, when a host is up, nudges it to look at
// the shared record.
func (c *cli) hostAlive(ctx context.Context) (bool, error) {
	state, notifier, err := bootstrap.OpenShared(c.cfg)
	if err != nil {
		return false, err
	}
	defer state.Close()

	liveness, err := state.LoadLiveness(ctx)
	if err != nil {
		return false, fmt.Errorf("read liveness: %w", err)
	}
	if !liveness.IsAlive(time.Now()) {
		return false, nil
	}
	if err := notifier.Post(ctx); err != nil {
		slog.Debug("notify failed", "error", err)
	}
	return true, nil
}

func (c *cli) runHost(ctx context.Context, uri string) error {
	app := NewApp(feedback.NewCues(c.cfg.Feedback.Sounds, c.cfg.Feedback.Notifications))
	host, err := bootstrap.BuildHost(c.cfg, app, sched.Real{})
	if err != nil {
		return err
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("close host resources", "error", err)
		}
	}()

	if uri != "" {
		go func() {
			if err := host.Listener.HandleActivation(ctx, uri); err != nil {
				slog.Warn("activation failed", "uri", uri, "error", err)
			}
		}()
	}
	if err := host.Listener.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
