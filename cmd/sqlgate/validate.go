package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/schemacheck"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the definitions and exit",
	Long: `Runs the configuration-chain checks and, when the chain is clean, the
live schema checks. Prints the full report as JSON and exits non-zero if
any phase fails.`,
	Run: runValidate,
}

var skipSchema bool

func init() {
	validateCmd.Flags().BoolVar(&skipSchema, "skip-schema", false, "run only the configuration-chain checks")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	logger := newLogger()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	source, cleanup := newSource(ctx, logger)
	defer cleanup()

	defs, err := source.Load(ctx)
	if err != nil {
		logger.Fatal("loading definitions failed", zap.Error(err))
	}

	var report *schemacheck.Report
	if skipSchema {
		report = schemacheck.ChainReport(defs)
	} else {
		pools := pgpool.NewManager(defs.Databases, logger)
		defer pools.Close()
		report = schemacheck.New(defs, pools, logger).Run(ctx)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal("encoding report failed", zap.Error(err))
	}
	fmt.Println(string(out))

	if !report.Valid {
		os.Exit(1)
	}
}
