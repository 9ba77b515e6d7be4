package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the account's secp256k1 key and produces the r/s/v signature
// the exchange endpoint expects over keccak(action || nonce).
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewSigner parses a hex-encoded private key, with or without 0x prefix.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address returns the 0x-prefixed account address derived from the key.
func (s *Signer) Address() string { return s.address }

// SignAction hashes the canonical JSON encoding of the action together with
// the nonce and signs the digest. The returned map carries hex r, s and the
// recovery id v.
func (s *Signer) SignAction(action any, nonce int64) (map[string]any, error) {
	encoded, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))

	digest := crypto.Keccak256(encoded, nonceBytes[:])
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}

	// crypto.Sign yields 65 bytes [R || S || V] with V in {0, 1}; the API
	// expects the Ethereum convention V in {27, 28}.
	return map[string]any{
		"r": hexutil.Encode(sig[:32]),
		"s": hexutil.Encode(sig[32:64]),
		"v": int(sig[64]) + 27,
	}, nil
}
