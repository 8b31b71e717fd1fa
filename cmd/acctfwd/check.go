package main

import (
	"github.com/spf13/cobra"

	"github.com/dmagro/acct-xmlrpc/internal/output"
	"github.com/dmagro/acct-xmlrpc/internal/pool"
)

func checkCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and build and release the client pool",
		Long: `Load the config, create every pool handle with its credentials and
authentication scheme, print the ring and tear it down. No call is sent.

Example:
  acctfwd check --config /etc/acctfwd.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "terminal", "Output format: terminal|json")
	return cmd
}

func runCheck(cmd *cobra.Command, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := pool.Open(cfg.PoolOptions(), cfg.TransportParams())
	if err != nil {
		return err
	}
	report := output.NewCheckReport(p, cfg.Method)
	teardownErr := p.Teardown()
	report.Teardown = "ok"
	if teardownErr != nil {
		report.Teardown = teardownErr.Error()
	}

	if format == "json" {
		if err := output.RenderCheckJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		output.RenderCheckTerminal(cmd.OutOrStdout(), report)
	}
	return teardownErr
}
