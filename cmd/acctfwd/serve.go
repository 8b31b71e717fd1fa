package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmagro/acct-xmlrpc/internal/event"
	"github.com/dmagro/acct-xmlrpc/internal/forwarder"
	"github.com/dmagro/acct-xmlrpc/internal/metrics"
	"github.com/dmagro/acct-xmlrpc/internal/output"
)

func serveCmd() *cobra.Command {
	var (
		input     string
		workers   int
		format    string
		reportDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Forward every record of a detail file",
		Long: `Read detail-format accounting records and forward each record that
carries Acct-Status-Type. Records are read from stdin unless --input is
given. SIGINT or SIGTERM stops reading; records already read are finished
before the pool is torn down.

Examples:
  acctfwd serve --input /var/log/radacct/nas1/detail
  tail -F detail | acctfwd serve --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, input, workers, format, reportDir)
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "Detail file to read (- for stdin)")
	cmd.Flags().IntVar(&workers, "workers", forwarder.DefaultWorkers, "Concurrent forwards")
	cmd.Flags().StringVar(&format, "format", "terminal", "Summary format: terminal|json")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Also write the JSON summary to a timestamped file in this directory")
	return cmd
}

func runServe(cmd *cobra.Command, input string, workers int, format, reportDir string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if workers < 1 {
		return fmt.Errorf("--workers must be >= 1")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	in, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	m, log, stop, err := startModule(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("signal received, draining", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	collector := metrics.NewCollector(cfg.PoolSize)
	runErr := m.Forwarder().Run(ctx, event.NewReader(in), workers, collector.Add)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stopErr := stop()

	report := &output.RunReport{
		Timestamp: time.Now(),
		URL:       cfg.URL,
		Method:    cfg.Method,
		Mode:      cfg.Mode,
		Summary:   collector.Summarize(),
	}
	switch format {
	case "json":
		if err := output.RenderRunJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	default:
		output.RenderRunTerminal(cmd.OutOrStdout(), report)
	}
	if reportDir != "" {
		path, err := output.WriteRunFile(reportDir, report)
		if err != nil {
			return err
		}
		log.Info("report written", zap.String("path", path))
	}

	if err := errors.Join(runErr, stopErr); err != nil {
		return err
	}
	if n := report.Summary.Failed; n > 0 {
		return fmt.Errorf("%d of %d events failed", n, report.Summary.Events)
	}
	return nil
}
