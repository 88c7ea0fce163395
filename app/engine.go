package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/clients/dalayer"
	"github.com/trufnetwork/fdc-attestor/clients/ledger"
	"github.com/trufnetwork/fdc-attestor/clients/verifier"
	"github.com/trufnetwork/fdc-attestor/internal/config"
	"github.com/trufnetwork/fdc-attestor/internal/httpclient"
	"github.com/trufnetwork/fdc-attestor/workflow"
	"github.com/trufnetwork/fdc-attestor/workflow/metrics"
)

// engine is the wired attestation stack for one process.
type engine struct {
	orchestrator *workflow.Orchestrator
	runner       *workflow.Runner
	health       *dalayer.HealthChecker
	backend      *ethclient.Client
	logger       *zap.SugaredLogger
}

// newEngine connects to the ledger, resolves contract addresses and builds
// the workflow components from cfg.
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*engine, error) {
	m := metrics.NewMetricsRecorder(logger)

	preparer := verifier.New(cfg.Verifier.URL, cfg.Verifier.APIKey,
		httpclient.New(httpclient.Options{RetryMax: cfg.Verifier.RetryMax, Timeout: cfg.Verifier.Timeout}, logger),
		logger)

	proofs := dalayer.New(cfg.DALayer.URL, cfg.DALayer.APIKey,
		httpclient.New(httpclient.Options{Timeout: cfg.DALayer.Timeout}, logger),
		dalayer.WithLogger(logger),
		dalayer.WithMetrics(m))

	health := dalayer.NewHealthChecker(cfg.DALayer.URL,
		httpclient.New(httpclient.Options{RetryMax: cfg.DALayer.HealthRetryMax, Timeout: cfg.DALayer.Timeout}, logger),
		cfg.DALayer.HealthInterval, logger)

	backend, err := ledger.Dial(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, err
	}
	e := &engine{health: health, backend: backend, logger: logger}

	submitter, relay, err := newLedgerClients(ctx, cfg, backend, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	policies := cfg.Policies()

	waiter := workflow.NewRoundFinalizationWaiter(relay, cfg.Ledger.ProtocolID,
		workflow.WithMaxCheckInterval(cfg.Engine.MaxCheckInterval),
		workflow.WithWaiterLogger(logger),
		workflow.WithWaiterMetrics(m))

	retrieverOpts := []workflow.RetrieverOption{
		workflow.WithSettleDelay(cfg.Engine.SettleDelay),
		workflow.WithRetrieverLogger(logger),
		workflow.WithRetrieverMetrics(m),
	}
	if policies.CacheEnabled {
		retrieverOpts = append(retrieverOpts,
			workflow.WithCache(workflow.NewProofCache(policies.CacheTTL, workflow.WithCacheMetrics(m))))
	}
	retriever := workflow.NewProofRetriever(waiter, proofs, retrieverOpts...)

	e.orchestrator, err = workflow.NewOrchestrator(preparer, submitter, retriever, workflow.OrchestratorConfig{
		AttestationKind: cfg.AttestationKind,
		SourceID:        cfg.SourceID,
		PrepareRetry:    policies.Retry,
		Polling:         policies.Polling,
	}, workflow.WithOrchestratorLogger(logger), workflow.WithOrchestratorMetrics(m))
	if err != nil {
		backend.Close()
		return nil, err
	}
	e.runner = workflow.NewRunner(e.orchestrator, cfg.Engine.Concurrency, logger)
	return e, nil
}

func newLedgerClients(ctx context.Context, cfg *config.Config, backend ledger.Backend, logger *zap.SugaredLogger) (*ledger.Submitter, *ledger.Relay, error) {
	lc := cfg.Ledger
	registry := ledger.NewRegistry(backend, common.HexToAddress(lc.RegistryAddress))

	hub, err := registry.ResolveOr(ctx, common.HexToAddress(lc.FdcHubAddress), ledger.ContractFdcHub)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve FdcHub")
	}
	relayAddr, err := registry.ResolveOr(ctx, common.HexToAddress(lc.RelayAddress), ledger.ContractRelay)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve Relay")
	}

	fee, err := cfg.RequestFeeWei()
	if err != nil {
		return nil, nil, err
	}
	var feeConfig common.Address
	if fee == nil {
		feeConfig, err = registry.ResolveOr(ctx, common.HexToAddress(lc.FeeConfigAddress), ledger.ContractFeeConfigurations)
		if err != nil {
			return nil, nil, errors.Wrap(err, "resolve fee configuration")
		}
	}

	params := ledger.ProtocolParams{
		FirstVotingRoundStartTs:    lc.FirstVotingRoundStartTs,
		VotingEpochDurationSeconds: lc.VotingEpochDurationSeconds,
	}
	if !cfg.HasStaticSchedule() {
		manager, err := registry.ResolveOr(ctx, common.HexToAddress(lc.SystemsManagerAddress), ledger.ContractSystemsManager)
		if err != nil {
			return nil, nil, errors.Wrap(err, "resolve FlareSystemsManager")
		}
		if params, err = ledger.LoadProtocolParams(ctx, backend, manager); err != nil {
			return nil, nil, err
		}
	}

	signer, err := ledger.NewTxSigner(lc.PrivateKey)
	if err != nil {
		return nil, nil, &workflow.ConfigError{Field: config.FieldPrivateKey, Reason: err.Error()}
	}

	logger.Infow("ledger clients ready",
		"sender", signer.Address(),
		"fdc_hub", hub,
		"relay", relayAddr,
		"static_fee", fee != nil,
		"first_round_start", params.FirstVotingRoundStartTs,
		"epoch_seconds", params.VotingEpochDurationSeconds)

	submitter := ledger.NewSubmitter(backend, signer, ledger.SubmitterConfig{
		Hub:             hub,
		Fee:             fee,
		FeeConfig:       feeConfig,
		Params:          params,
		ExplorerURL:     lc.ExplorerURL,
		ReceiptAttempts: lc.ReceiptAttempts,
		ReceiptDelay:    lc.ReceiptDelay,
	}, logger)
	return submitter, ledger.NewRelay(backend, relayAddr), nil
}

// startHealth starts the DA-layer monitor and logs its first verdict.
func (e *engine) startHealth(ctx context.Context) {
	e.health.Start(ctx)
	if ok, reason := e.health.Healthy(); !ok {
		e.logger.Warnw("proof service is not healthy, proofs may be delayed", "reason", reason)
	} else {
		e.logger.Info("proof service is healthy")
	}
}

func (e *engine) Close() {
	e.health.Stop()
	e.backend.Close()
}
