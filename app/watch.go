package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/scheduler"
	"github.com/trufnetwork/fdc-attestor/workflow"
)

func newWatchCmd() *cobra.Command {
	var jobsFile string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run attestation jobs on cron schedules",
		Long: `watch runs every job of a YAML jobs file on its cron schedule until
interrupted. Send SIGHUP to reload the jobs file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := scheduler.LoadJobsFile(jobsFile)
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

			s := scheduler.New(e.orchestrator, sugar, scheduler.WithResultFunc(logJobResult(sugar)))
			if err := s.Start(ctx, jobs); err != nil {
				return err
			}
			defer s.Stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			for {
				select {
				case <-ctx.Done():
					sugar.Info("shutting down")
					return nil
				case <-hup:
					reloadJobs(s, jobsFile, sugar)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&jobsFile, "jobs", "j", "", "YAML jobs file")
	_ = cmd.MarkFlagRequired("jobs")

	return cmd
}

// reloadJobs keeps the current jobs when the file no longer parses.
func reloadJobs(s *scheduler.Scheduler, path string, logger *zap.SugaredLogger) {
	jobs, err := scheduler.LoadJobsFile(path)
	if err != nil {
		logger.Errorw("jobs file reload failed, keeping current jobs", "path", path, "error", err)
		return
	}
	if err := s.Reload(jobs); err != nil {
		logger.Errorw("applying reloaded jobs failed", "error", err)
	}
}

func logJobResult(logger *zap.SugaredLogger) scheduler.ResultFunc {
	return func(job string, res *workflow.Result, err error) {
		if err != nil {
			var round, tx interface{}
			var wfErr *workflow.WorkflowError
			if errors.As(err, &wfErr) {
				if wfErr.Round != nil {
					round = wfErr.Round.RoundID
				}
				if wfErr.TxHash != nil {
					tx = wfErr.TxHash.Hex()
				}
			}
			logger.Warnw("attestation job did not complete",
				"job", job,
				"round", round,
				"tx", tx,
				"error_type", workflow.KindOf(err))
			return
		}
		logger.Infow("attestation proof",
			"job", job,
			"round", res.Round.RoundID,
			"explorer", res.Round.ExplorerRef,
			"response", hexutil.Encode(res.Proof.ResponseBytes),
			"proof_nodes", len(res.Proof.ProofPath))
	}
}
