package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		requestFile string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one attestation workflow per request in a file",
		Example: `  attestor run --request btc.yaml
  attestor run --request batch.yaml --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != outputJSON && output != outputTable {
				return fmt.Errorf("--output must be %s or %s", outputJSON, outputTable)
			}
			// Requests are validated before any network access.
			params, err := loadRequests(requestFile)
			if err != nil {
				return err
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			sugar := logger.Sugar()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEngine(ctx, cfg, sugar)
			if err != nil {
				return err
			}
			defer e.Close()
			e.startHealth(ctx)

			sugar.Infow("running workflows", "requests", len(params), "concurrency", cfg.Engine.Concurrency)
			outcomes := e.runner.RunAll(ctx, params)

			if err := writeOutcomes(cmd.OutOrStdout(), output, params, outcomes); err != nil {
				return err
			}
			if failed := workflow.Failed(outcomes); len(failed) > 0 {
				return fmt.Errorf("%d of %d workflows failed", len(failed), len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestFile, "request", "r", "", "YAML file with one request or a list of requests")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}
