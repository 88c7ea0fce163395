package ledger

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

const (
	serviceName = "ledger"

	DefaultReceiptAttempts = 60
	DefaultReceiptDelay    = 1 * time.Second
	DefaultReceiptMaxDelay = 5 * time.Second

	// gasMarginPercent is added on top of the node's gas estimate.
	gasMarginPercent = 20
)

var errReceiptPending = errors.New("transaction receipt not yet available")

// SubmitterConfig configures a Submitter.
type SubmitterConfig struct {
	Hub common.Address

	// Fee is the value sent with each request. When nil the fee is read from
	// FeeConfig for every request.
	Fee       *big.Int
	FeeConfig common.Address

	Params      ProtocolParams
	ExplorerURL string

	ReceiptAttempts uint
	ReceiptDelay    time.Duration
	ReceiptMaxDelay time.Duration
}

// Submitter sends attestation requests to FdcHub. Each Submit broadcasts
// exactly one transaction; only the read-only receipt lookup is retried.
// Submit is safe for concurrent use: nonce lookup through broadcast is
// serialized for the signer account.
type Submitter struct {
	backend Backend
	signer  *TxSigner
	cfg     SubmitterConfig
	logger  *zap.SugaredLogger

	// sendMu is held from PendingNonceAt until SendTransaction returns so
	// concurrent submissions never share a nonce.
	sendMu sync.Mutex
}

var _ workflow.Submitter = (*Submitter)(nil)

func NewSubmitter(backend Backend, signer *TxSigner, cfg SubmitterConfig, logger *zap.SugaredLogger) *Submitter {
	if cfg.ReceiptAttempts == 0 {
		cfg.ReceiptAttempts = DefaultReceiptAttempts
	}
	if cfg.ReceiptDelay <= 0 {
		cfg.ReceiptDelay = DefaultReceiptDelay
	}
	if cfg.ReceiptMaxDelay <= 0 {
		cfg.ReceiptMaxDelay = DefaultReceiptMaxDelay
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Submitter{backend: backend, signer: signer, cfg: cfg, logger: logger.Named("ledger")}
}

func (s *Submitter) Submit(ctx context.Context, encodedRequest []byte) (*workflow.Submission, error) {
	if len(encodedRequest) == 0 {
		return nil, &workflow.ValidationError{Field: "encoded_request", Reason: "must not be empty"}
	}

	data, err := fdcHubABI.Pack("requestAttestation", encodedRequest)
	if err != nil {
		return nil, errors.Wrap(err, "pack requestAttestation")
	}
	fee, err := s.requestFee(ctx, encodedRequest)
	if err != nil {
		return nil, s.rpcError(ctx, err, "request fee")
	}

	tx, err := s.send(ctx, data, fee)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("attestation request sent", "tx", tx.Hash().Hex(), "fee", fee.String(), "nonce", tx.Nonce())

	receipt, err := s.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, &workflow.BroadcastError{
			TxHash:      tx.Hash(),
			ExplorerRef: s.explorerRef(tx.Hash()),
			Err:         s.rpcError(ctx, err, "wait for receipt"),
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: "transaction " + tx.Hash().Hex() + " reverted"}
	}

	header, err := s.backend.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, s.rpcError(ctx, err, "fetch block header")
	}
	round, err := s.cfg.Params.RoundForTimestamp(header.Time)
	if err != nil {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: err.Error()}
	}

	return &workflow.Submission{
		RoundID:        round,
		BlockNumber:    receipt.BlockNumber.Uint64(),
		BlockTimestamp: header.Time,
		TxHash:         tx.Hash(),
		ExplorerRef:    s.explorerRef(tx.Hash()),
	}, nil
}

func (s *Submitter) requestFee(ctx context.Context, encodedRequest []byte) (*big.Int, error) {
	if s.cfg.Fee != nil {
		return new(big.Int).Set(s.cfg.Fee), nil
	}
	out, err := call(ctx, s.backend, s.cfg.FeeConfig, feeConfigABI, "getRequestFee", encodedRequest)
	if err != nil {
		return nil, err
	}
	fee, ok := out.(*big.Int)
	if !ok {
		return nil, errors.Errorf("getRequestFee returned %T", out)
	}
	return fee, nil
}

// send builds, signs and broadcasts one transaction.
func (s *Submitter) send(ctx context.Context, data []byte, fee *big.Int) (*types.Transaction, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	tx, err := s.buildTx(ctx, data, fee)
	if err != nil {
		return nil, err
	}
	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return nil, s.rpcError(ctx, err, "send transaction")
	}
	return tx, nil
}

func (s *Submitter) buildTx(ctx context.Context, data []byte, fee *big.Int) (*types.Transaction, error) {
	from := s.signer.Address()

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, s.rpcError(ctx, err, "chain id")
	}
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, s.rpcError(ctx, err, "pending nonce")
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, s.rpcError(ctx, err, "gas price")
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &s.cfg.Hub, Value: fee, Data: data})
	if err != nil {
		return nil, s.rpcError(ctx, err, "estimate gas")
	}
	gas += gas * gasMarginPercent / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &s.cfg.Hub,
		Value:    fee,
		Data:     data,
	})
	return s.signer.SignTx(tx, chainID)
}

// waitReceipt polls for the receipt of an already broadcast transaction.
func (s *Submitter) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return retry.DoWithData(
		func() (*types.Receipt, error) {
			receipt, err := s.backend.TransactionReceipt(ctx, hash)
			if errors.Is(err, ethereum.NotFound) {
				return nil, errReceiptPending
			}
			return receipt, err
		},
		retry.Attempts(s.cfg.ReceiptAttempts),
		retry.Delay(s.cfg.ReceiptDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(s.cfg.ReceiptMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debugw("receipt not available, retrying",
				"tx", hash.Hex(),
				"attempt", n,
				"error", err)
		}),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}

func (s *Submitter) rpcError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &workflow.TransientServiceError{Service: serviceName, Cause: errors.Wrap(err, op)}
}

func (s *Submitter) explorerRef(hash common.Hash) string {
	if s.cfg.ExplorerURL == "" {
		return hash.Hex()
	}
	return strings.TrimRight(s.cfg.ExplorerURL, "/") + "/tx/" + hash.Hex()
}
