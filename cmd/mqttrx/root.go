package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/infrastructure/logging"
)

// app holds what every command shares once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logging.Logger

	outMu sync.Mutex
	out   io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mqttrx",
		Short:         "Reactive MQTT client",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.load(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")

	root.AddCommand(
		newRunCommand(a),
		newSubscribeCommand(a),
		newPublishCommand(a),
		newBrokerCommand(a),
		newJournalCommand(a),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Logging, version)
	a.out = cmd.OutOrStdout()

	a.log.Debug("configuration loaded", "path", a.configPath, "command", cmd.Name())
	return nil
}

// printf writes a line of command output. Safe for concurrent use.
func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format+"\n", args...)
}

// connect connects c and waits for the broker to accept the session.
func (a *app) connect(ctx context.Context, c connector) error {
	if err := c.Connect(ctx, a.cfg.MQTT); err != nil {
		return fmt.Errorf("connecting to %s: %w", a.cfg.MQTT.BrokerURL(), err)
	}

	waitCtx := ctx
	if timeout := a.cfg.MQTT.GetConnectTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.WaitConnected(waitCtx); err != nil {
		if last := c.LastError(); last != nil {
			return fmt.Errorf("waiting for %s: %w (last error: %v)", a.cfg.MQTT.BrokerURL(), err, last)
		}
		return fmt.Errorf("waiting for %s: %w", a.cfg.MQTT.BrokerURL(), err)
	}
	return nil
}

type connector interface {
	Connect(ctx context.Context, cfg config.MQTTConfig) error
	WaitConnected(ctx context.Context) error
	LastError() error
}
