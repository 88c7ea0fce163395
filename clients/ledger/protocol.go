package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// FdcProtocolID is the protocol id under which FDC voting rounds are
// finalized in the Relay.
const FdcProtocolID uint64 = 200

// ProtocolParams maps block timestamps to voting rounds.
type ProtocolParams struct {
	FirstVotingRoundStartTs    uint64
	VotingEpochDurationSeconds uint64
}

// RoundForTimestamp returns the voting round containing ts.
func (p ProtocolParams) RoundForTimestamp(ts uint64) (uint64, error) {
	if p.VotingEpochDurationSeconds == 0 {
		return 0, errors.New("voting epoch duration is zero")
	}
	if ts < p.FirstVotingRoundStartTs {
		return 0, errors.Errorf("timestamp %d precedes the first voting round (%d)", ts, p.FirstVotingRoundStartTs)
	}
	return (ts - p.FirstVotingRoundStartTs) / p.VotingEpochDurationSeconds, nil
}

// LoadProtocolParams reads the voting round schedule from the
// FlareSystemsManager contract at manager.
func LoadProtocolParams(ctx context.Context, backend Backend, manager common.Address) (ProtocolParams, error) {
	start, err := call(ctx, backend, manager, systemsManagerABI, "firstVotingRoundStartTs")
	if err != nil {
		return ProtocolParams{}, err
	}
	duration, err := call(ctx, backend, manager, systemsManagerABI, "votingEpochDurationSeconds")
	if err != nil {
		return ProtocolParams{}, err
	}
	p := ProtocolParams{}
	var ok bool
	if p.FirstVotingRoundStartTs, ok = start.(uint64); !ok {
		return ProtocolParams{}, errors.Errorf("firstVotingRoundStartTs returned %T", start)
	}
	if p.VotingEpochDurationSeconds, ok = duration.(uint64); !ok {
		return ProtocolParams{}, errors.Errorf("votingEpochDurationSeconds returned %T", duration)
	}
	if p.VotingEpochDurationSeconds == 0 {
		return ProtocolParams{}, errors.New("votingEpochDurationSeconds returned zero")
	}
	return p, nil
}
