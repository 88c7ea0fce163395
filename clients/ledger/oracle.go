package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

// Relay answers finalization queries from the Relay contract.
type Relay struct {
	backend Backend
	address common.Address
}

var _ workflow.FinalizationOracle = (*Relay)(nil)

func NewRelay(backend Backend, address common.Address) *Relay {
	return &Relay{backend: backend, address: address}
}

func (r *Relay) IsFinalized(ctx context.Context, protocolID uint64, roundID uint64) (bool, error) {
	out, err := call(ctx, r.backend, r.address, relayABI, "isFinalized",
		new(big.Int).SetUint64(protocolID), new(big.Int).SetUint64(roundID))
	if err != nil {
		return false, err
	}
	finalized, ok := out.(bool)
	if !ok {
		return false, errors.Errorf("isFinalized returned %T", out)
	}
	return finalized, nil
}
