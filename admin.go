package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"relaymic/internal/bootstrap"
	"relaymic/internal/domain"
	"relaymic/internal/history"
	"relaymic/internal/ports"
)

type statusReport struct {
	Session *sessionReport `yaml:"session,omitempty"`
	Host    hostReport     `yaml:"host"`
}

type sessionReport struct {
	ID        string    `yaml:"id"`
	Phase     string    `yaml:"phase"`
	Text      string    `yaml:"text,omitempty"`
	Error     string    `yaml:"error,omitempty"`
	UpdatedAt time.Time `yaml:"updatedAt"`
	Stale     bool      `yaml:"stale"`
}

type hostReport struct {
	Alive         bool       `yaml:"alive"`
	Active        bool       `yaml:"active"`
	LastHeartbeat *time.Time `yaml:"lastHeartbeat,omitempty"`
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the shared dictation record and host liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, _, err := bootstrap.OpenShared(c.cfg)
			if err != nil {
				return err
			}
			defer state.Close()

			ctx := cmd.Context()
			now := time.Now()
			var report statusReport

			record, ok, err := state.LoadState(ctx)
			if err != nil {
				return fmt.Errorf("read shared state: %w", err)
			}
			if ok {
				report.Session = &sessionReport{
					ID:        record.SessionID,
					Phase:     string(record.Phase),
					Text:      record.Text,
					Error:     record.Error,
					UpdatedAt: record.Time(),
					Stale:     record.IsStale(now),
				}
			}

			liveness, err := state.LoadLiveness(ctx)
			if err != nil {
				return fmt.Errorf("read liveness: %w", err)
			}
			report.Host = hostReport{Alive: liveness.IsAlive(now), Active: liveness.Active}
			if liveness.LastHeartbeat > 0 {
				at := domain.FromEpochSeconds(liveness.LastHeartbeat)
				report.Host.LastHeartbeat = &at
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(out)
			return err
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the shared dictation record to idle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, notifier, err := bootstrap.OpenShared(c.cfg)
			if err != nil {
				return err
			}
			defer state.Close()

			ctx := cmd.Context()
			if err := state.SaveState(ctx, domain.NewState(uuid.NewString(), domain.PhaseIdle, time.Now())); err != nil {
				return fmt.Errorf("reset shared state: %w", err)
			}
			if err := notifier.Post(ctx); err != nil {
				slog.Debug("notify failed", "error", err)
			}
			slog.Info("shared state reset")
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [query]",
		Short: "List recent transcripts or search them",
		Long: `Lists recorded transcripts, newest first. With a query, only transcripts
containing it (case-insensitive) are shown. The history database is locked
while a host is running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(c.cfg.Store.HistoryDir)
			if err != nil {
				return fmt.Errorf("%w (is a host running?)", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			var entries []ports.TranscriptEntry
			if len(args) == 1 {
				entries, err = store.Search(ctx, args[0], limit)
			} else {
				entries, err = store.List(ctx, limit)
			}
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintf(c.stdout, "%s  %-12s %s\n",
					entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					entry.Engine,
					strings.ReplaceAll(entry.Text, "\n", " "),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of transcripts")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.File != "" {
				fmt.Fprintf(c.stdout, "# %s\n", c.cfg.File)
			}
			out, err := yaml.Marshal(c.cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(out)
			return err
		},
	})
	return cmd
}
