// Package ledger talks to the EVM ledger: it submits attestation requests to
// FdcHub, asks the Relay whether a voting round is finalized and resolves the
// protocol parameters and contract addresses it needs for both.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	gethAbi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Backend is the subset of an Ethereum JSON-RPC client the package uses.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to the JSON-RPC endpoint at rawURL.
func Dial(ctx context.Context, rawURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial ledger rpc %s", rawURL)
	}
	return client, nil
}

// call packs method with args, executes it as a read-only call against
// contract and unpacks the single return value.
func call(ctx context.Context, backend Backend, contract common.Address, parsed gethAbi.ABI, method string, args ...interface{}) (interface{}, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	output, err := backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s on %s", method, contract.Hex())
	}
	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(values) != 1 {
		return nil, errors.Errorf("%s returned %d values, want 1", method, len(values))
	}
	return values[0], nil
}
