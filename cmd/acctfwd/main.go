// Command acctfwd forwards RADIUS accounting records to an XML-RPC
// endpoint through a fixed pool of client handles.
//
//	acctfwd serve  --input /var/log/radacct/detail
//	acctfwd send   'User-Name = bob' 'Acct-Status-Type = Start'
//	acctfwd check
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmagro/acct-xmlrpc/internal/config"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "acctfwd",
		Short:         "Forward accounting records to an XML-RPC endpoint",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "config/acctfwd.yaml", "Config file path")
	root.PersistentFlags().String("env-file", ".env", "File of KEY=VALUE pairs loaded before the config")

	root.AddCommand(serveCmd(), sendCmd(), checkCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
