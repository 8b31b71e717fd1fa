package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmagro/acct-xmlrpc/internal/config"
	"github.com/dmagro/acct-xmlrpc/internal/env"
	"github.com/dmagro/acct-xmlrpc/internal/logging"
	"github.com/dmagro/acct-xmlrpc/internal/module"
	"github.com/dmagro/acct-xmlrpc/internal/output"
)

// loadConfig loads the env file and then the config named by the root
// persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envPath, _ := cmd.Root().PersistentFlags().GetString("env-file")
	if err := env.Load(envPath); err != nil {
		return nil, err
	}
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// startModule builds the logger and an initialized module from cfg. The
// returned func shuts both down.
func startModule(cfg *config.Config) (*module.XMLRPC, *zap.Logger, func() error, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	m := module.New(log)
	if err := m.Initialize(cfg); err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	stop := func() error {
		err := m.Shutdown()
		_ = log.Sync()
		return err
	}
	return m, log, stop, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

func checkFormat(format string) error {
	switch format {
	case "terminal":
		if !output.IsTerminal() {
			output.DisableColors()
		}
		return nil
	case "json":
		output.DisableColors()
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected terminal|json)", format)
	}
}
