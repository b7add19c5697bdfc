package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"relaymic/internal/config"
)

// cli holds flags and the config resolved before any subcommand runs.
type cli struct {
	cfgFile   string
	verbose   int
	logFormat string

	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "relaymic",
		Short: "Dictation for apps that cannot record audio themselves",
		Long: `relaymic coordinates dictation between a requester that cannot record
audio (a keyboard, a script, a terminal UI) and a host process that owns the
microphone and the speech engine. The two only share a small state database
and a change signal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(c.stderr, c.verbose, c.logFormat); err != nil {
				return err
			}
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/relaymic/config.yaml)")
	root.PersistentFlags().CountVarP(&c.verbose, "verbose", "v", "verbose logging")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "pretty", "log format: pretty, text or json")

	root.AddCommand(
		c.hostCmd(),
		c.activateCmd(),
		c.dictateCmd(),
		c.keyboardCmd(),
		c.statusCmd(),
		c.resetCmd(),
		c.historyCmd(),
		c.configCmd(),
	)
	return root
}
