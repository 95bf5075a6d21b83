package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lldsync/core-go/internal/db"
	"lldsync/core-go/internal/httpapi"
	"lldsync/core-go/internal/lld"
	"lldsync/core-go/internal/metrics"
)

var (
	processRuleID int64
	processFile   string
	processClock  int64
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Reconcile one discovery payload and print the run result",
	Long: `Run a single discovery reconciliation for a rule against a payload read
from --file ("-" reads stdin). The result is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if processRuleID <= 0 {
			return fmt.Errorf("--rule must be a positive item id")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		payload, err := readPayload(cmd.InOrStdin(), processFile)
		if err != nil {
			return err
		}

		logger := httpapi.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)
		ctx := cmd.Context()
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		ts := time.Now()
		if processClock > 0 {
			ts = time.Unix(processClock, 0)
		}

		engine := lld.New(logger, pool, lld.Options{}, metrics.New())
		res, runErr := engine.ProcessDiscoveryRule(ctx, processRuleID, payload, ts)
		if runErr != nil && !errors.Is(runErr, lld.ErrInvalidPayload) {
			return runErr
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		return runErr
	},
}

func readPayload(stdin io.Reader, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("--file is required")
	}
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().Int64Var(&processRuleID, "rule", 0, "Discovery rule item id")
	processCmd.Flags().StringVar(&processFile, "file", "", "Payload file, or - for stdin")
	processCmd.Flags().Int64Var(&processClock, "clock", 0, "Run timestamp in unix seconds (default now)")
}
