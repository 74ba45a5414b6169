package chain

import (
	"crypto/ed25519"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// Signer holds the single backend authority keypair. Settlement
// submissions are serialized by the callers; the signer itself is
// stateless after construction and safe for concurrent reads.
type Signer struct {
	priv    ed25519.PrivateKey
	address string // base58-encoded public key
}

// NewSigner derives the authority keypair from a 32-byte ed25519 seed.
func NewSigner(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("chain: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	return &Signer{
		priv:    priv,
		address: base58.Encode(pub),
	}, nil
}

// Address returns the base58-encoded authority public key.
func (s *Signer) Address() string {
	return s.address
}

// Sign signs the message and returns the base58-encoded signature. The
// first signature over a transaction payload doubles as the transaction
// signature.
func (s *Signer) Sign(message []byte) string {
	return base58.Encode(ed25519.Sign(s.priv, message))
}

// String returns a redacted representation suitable for logging.
func (s *Signer) String() string {
	return fmt.Sprintf("Signer{authority=%s}", s.address)
}
