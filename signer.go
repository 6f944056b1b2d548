package crowdfund

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Signer is the wallet collaborator: it holds the key material and
// produces signatures, and nothing else. The client treats a missing
// signer as a precondition failure for every submit call.
type Signer interface {
	PublicKey() PublicKey
	Sign(Operation) (SignedOperation, error)
	SignAll([]Operation) ([]SignedOperation, error)
}

// LocalSigner signs with an ed25519 keypair held in memory. It backs the
// CLI and tests; production wallets implement Signer themselves.
type LocalSigner struct {
	key ed25519.PrivateKey
	pub PublicKey
}

// NewLocalSigner wraps an ed25519 private key.
func NewLocalSigner(key ed25519.PrivateKey) (*LocalSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("bad private key length: %d", len(key))
	}

	var pub PublicKey
	copy(pub[:], key.Public().(ed25519.PublicKey))
	return &LocalSigner{key: key, pub: pub}, nil
}

// LoadKeypair reads a keypair file in the standard CLI format: a JSON
// array of the 64 private key bytes.
func LoadKeypair(path string) (*LocalSigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to parse keypair file %s: %w", path, err)
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file %s holds %d bytes, want %d", path, len(values), ed25519.PrivateKeySize)
	}

	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file %s holds value %d outside the byte range", path, v)
		}
		key[i] = byte(v)
	}

	return NewLocalSigner(key)
}

func (s *LocalSigner) PublicKey() PublicKey {
	return s.pub
}

func (s *LocalSigner) Sign(op Operation) (SignedOperation, error) {
	if s.key == nil {
		return SignedOperation{}, errors.New("signer has no key material")
	}

	return SignedOperation{
		Operation: op,
		Signature: ed25519.Sign(s.key, op.Message()),
	}, nil
}

func (s *LocalSigner) SignAll(ops []Operation) ([]SignedOperation, error) {
	signed := make([]SignedOperation, 0, len(ops))
	for _, op := range ops {
		so, err := s.Sign(op)
		if err != nil {
			return nil, err
		}
		signed = append(signed, so)
	}
	return signed, nil
}
