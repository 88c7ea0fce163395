package ledger

import (
	"fmt"
	"strings"

	gethAbi "github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for the contracts the attestor talks to.
const (
	fdcHubABIJSON = `[
	{"type":"function","name":"requestAttestation","stateMutability":"payable",
	 "inputs":[{"name":"_data","type":"bytes"}],"outputs":[]}
]`
	feeConfigABIJSON = `[
	{"type":"function","name":"getRequestFee","stateMutability":"view",
	 "inputs":[{"name":"_data","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]}
]`
	relayABIJSON = `[
	{"type":"function","name":"isFinalized","stateMutability":"view",
	 "inputs":[{"name":"_protocolId","type":"uint256"},{"name":"_votingRoundId","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`
	systemsManagerABIJSON = `[
	{"type":"function","name":"firstVotingRoundStartTs","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"votingEpochDurationSeconds","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint64"}]}
]`
	registryABIJSON = `[
	{"type":"function","name":"getContractAddressByName","stateMutability":"view",
	 "inputs":[{"name":"_name","type":"string"}],"outputs":[{"name":"","type":"address"}]}
]`
)

var (
	fdcHubABI         gethAbi.ABI
	feeConfigABI      gethAbi.ABI
	relayABI          gethAbi.ABI
	systemsManagerABI gethAbi.ABI
	registryABI       gethAbi.ABI
)

func init() {
	for _, c := range []struct {
		name string
		json string
		dst  *gethAbi.ABI
	}{
		{"FdcHub", fdcHubABIJSON, &fdcHubABI},
		{"FdcRequestFeeConfigurations", feeConfigABIJSON, &feeConfigABI},
		{"Relay", relayABIJSON, &relayABI},
		{"FlareSystemsManager", systemsManagerABIJSON, &systemsManagerABI},
		{"FlareContractRegistry", registryABIJSON, &registryABI},
	} {
		parsed, err := gethAbi.JSON(strings.NewReader(c.json))
		if err != nil {
			panic(fmt.Sprintf("ledger: failed to parse %s ABI: %v", c.name, err))
		}
		*c.dst = parsed
	}
}
