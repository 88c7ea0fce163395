package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	gethAbi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeBackend serves contract calls from per-method handlers and records sent
// transactions.
type fakeBackend struct {
	mu sync.Mutex

	chainID       *big.Int
	handlers      map[string]func(to common.Address, args []interface{}) ([]interface{}, error)
	baseNonce     uint64
	estimateDelay time.Duration
	sent          []*types.Transaction
	sendErr       error
	pending       int // receipt lookups answered with NotFound before the receipt
	lookups       int
	status        uint64
	block         *big.Int
	blockTime     uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:   big.NewInt(114),
		handlers:  make(map[string]func(common.Address, []interface{}) ([]interface{}, error)),
		baseNonce: 7,
		status:    types.ReceiptStatusSuccessful,
		block:     big.NewInt(4242),
	}
}

func (f *fakeBackend) handle(method string, fn func(to common.Address, args []interface{}) ([]interface{}, error)) {
	f.handlers[method] = fn
}

var allABIs = []gethAbi.ABI{fdcHubABI, feeConfigABI, relayABI, systemsManagerABI, registryABI}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("short call data")
	}
	for _, parsed := range allABIs {
		method, err := parsed.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		handler, ok := f.handlers[method.Name]
		if !ok {
			return nil, fmt.Errorf("no handler for %s", method.Name)
		}
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		out, err := handler(*msg.To, args)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(out...)
	}
	return nil, fmt.Errorf("unknown selector %x", msg.Data[:4])
}

// PendingNonceAt counts broadcast transactions as pending, like a node does.
func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseNonce + uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(25_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateDelay > 0 {
		time.Sleep(f.estimateDelay)
	}
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookups <= f.pending {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status, TxHash: txHash, BlockNumber: f.block}, nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: number, Time: f.blockTime}, nil
}
