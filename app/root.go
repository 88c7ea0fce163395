// Package app holds the attestor command tree.
package app

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/cmd/version"
	"github.com/trufnetwork/fdc-attestor/internal/config"
	"github.com/trufnetwork/fdc-attestor/internal/logging"
)

// RootCmd creates the attestor root command with the run, watch and version
// sub-commands.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attestor",
		Short: "Attest Web2 data through the Flare Data Connector",
		Long: `attestor prepares Web2Json attestation requests, submits them to FdcHub,
waits for the voting round to finalize and fetches the proof.

Configuration is read from ATTESTOR_* environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newRunCmd(), newWatchCmd(), version.NewVersionCmd())

	return cmd
}

// setup loads and validates the configuration and installs the process
// logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}
