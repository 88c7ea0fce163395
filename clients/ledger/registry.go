package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// DefaultRegistryAddress is the contract registry address shared by the
// Flare networks.
var DefaultRegistryAddress = common.HexToAddress("0xaD67FE66660Fb8dFE9d6b1b4240d8650e30F6019")

// Contract names as registered on chain.
const (
	ContractFdcHub            = "FdcHub"
	ContractFeeConfigurations = "FdcRequestFeeConfigurations"
	ContractRelay             = "Relay"
	ContractSystemsManager    = "FlareSystemsManager"
)

// Registry resolves contract addresses by name.
type Registry struct {
	backend Backend
	address common.Address
}

func NewRegistry(backend Backend, address common.Address) *Registry {
	if address == (common.Address{}) {
		address = DefaultRegistryAddress
	}
	return &Registry{backend: backend, address: address}
}

// Resolve returns the address registered under name. An unregistered name is
// an error.
func (r *Registry) Resolve(ctx context.Context, name string) (common.Address, error) {
	out, err := call(ctx, r.backend, r.address, registryABI, "getContractAddressByName", name)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out.(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("getContractAddressByName returned %T", out)
	}
	if addr == (common.Address{}) {
		return common.Address{}, errors.Errorf("contract %q is not registered", name)
	}
	return addr, nil
}

// ResolveOr returns configured when it is set and the registry entry for name
// otherwise.
func (r *Registry) ResolveOr(ctx context.Context, configured common.Address, name string) (common.Address, error) {
	if configured != (common.Address{}) {
		return configured, nil
	}
	return r.Resolve(ctx, name)
}
