package main

import (
	"github.com/spf13/cobra"

	"github.com/dmagro/acct-xmlrpc/internal/event"
	"github.com/dmagro/acct-xmlrpc/internal/output"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send ATTR...",
		Short: "Forward one record given as attributes",
		Long: `Forward a single record built from "Name = Value" arguments, in order.
A record without Acct-Status-Type is skipped, which is not an error.

Example:
  acctfwd send 'User-Name = "bob"' 'Acct-Status-Type = Start'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args)
		},
	}
}

func runSend(cmd *cobra.Command, attrs []string) error {
	if err := checkFormat("terminal"); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, _, stop, err := startModule(cfg)
	if err != nil {
		return err
	}

	res := m.HandleEvent(cmd.Context(), event.New(attrs...))
	output.RenderResult(cmd.OutOrStdout(), res)

	if err := stop(); err != nil {
		return err
	}
	return res.Err
}
