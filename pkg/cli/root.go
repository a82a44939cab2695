// Package cli implements the moex CLI commands.
package cli

import (
	"context"
	"fmt"

	"github.com/dan-solli/moex/pkg/config"
	"github.com/dan-solli/moex/pkg/logging"
	"github.com/dan-solli/moex/pkg/moex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger = zap.NewNop()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:               "moex",
	Short:             "MoeX conversational backend",
	Long:              "MoeX answers colleagues with retrieved policy knowledge, in a tone that fits the conversation.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "moex.yaml", "Config file (missing file means defaults)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config and $MOEX_DB)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Store.Path = dbPath
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}

	l, err := logging.New(c.Logging.Level, c.Logging.Development)
	if err != nil {
		return err
	}

	cfg, logger = c, l
	return nil
}

// teardown flushes buffered log entries before the process exits.
func teardown(cmd *cobra.Command, args []string) {
	if logger != nil {
		_ = logger.Sync()
	}
}

func openApp(ctx context.Context) (*moex.MoeX, error) {
	app, err := moex.New(ctx, cfg, moex.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start moex: %w", err)
	}
	return app, nil
}
