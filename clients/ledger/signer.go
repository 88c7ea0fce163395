package ledger

import (
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// TxSigner signs ledger transactions with a secp256k1 account key.
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	mu         sync.RWMutex
}

// NewTxSigner parses a hex private key, with or without 0x prefix.
func NewTxSigner(hexKey string) (*TxSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key cannot be empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return &TxSigner{privateKey: key}, nil
}

// Address returns the account address derived from the public key.
func (s *TxSigner) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

// SignTx signs tx for chainID.
func (s *TxSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return signed, nil
}
