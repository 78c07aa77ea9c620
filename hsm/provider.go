// Package hsm provides the HSM key-management abstraction (§4.3): a single
// Provider interface behind four concrete backends (software, hardware,
// simulator, bitcoin), session-scoped key use, and a fallback-chain factory.
// Private key material never crosses the Provider boundary: callers receive
// opaque KeyHandle values and signatures/ciphertexts only.
package hsm

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bitset"
)

// Algorithm identifies the signing/encryption scheme a key was generated for.
type Algorithm string

const (
	AlgoEd25519          Algorithm = "ed25519"
	AlgoBLS12381         Algorithm = "bls12-381"
	AlgoSecp256k1Taproot Algorithm = "secp256k1-taproot"
	AlgoXChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
)

// Usage bits for KeyHandle.UsageMask.
const (
	UsageSign uint = iota
	UsageEncrypt
	UsageDerive
)

// KeyHandle is the opaque, non-secret reference callers hold for a key
// living inside a Provider. UsageMask is a bitset.BitSet so a key can be
// scoped to more than one allowed operation.
type KeyHandle struct {
	ID        string
	Algorithm Algorithm
	UsageMask *bitset.BitSet
	CreatedAt time.Time
}

// AllowsUsage reports whether bit is set in the key's usage mask.
func (k KeyHandle) AllowsUsage(bit uint) bool {
	if k.UsageMask == nil {
		return false
	}
	return k.UsageMask.Test(bit)
}

// NewUsageMask builds a UsageMask from the given usage bits.
func NewUsageMask(bits ...uint) *bitset.BitSet {
	b := bitset.New(8)
	for _, bit := range bits {
		b.Set(bit)
	}
	return b
}

// ProviderKind names one of the four HSM backend variants (§4.3).
type ProviderKind string

const (
	KindSoftware  ProviderKind = "software"
	KindHardware  ProviderKind = "hardware"
	KindSimulator ProviderKind = "simulator"
	KindBitcoin   ProviderKind = "bitcoin"
)

// Session is a time-boxed authorization to use keys through a Provider.
type Session struct {
	ID        string
	OpenedAt  time.Time
	ExpiresAt time.Time
}

// Provider is the uniform HSM backend contract. Every method is safe for
// concurrent use.
type Provider interface {
	Kind() ProviderKind

	OpenSession(ctx context.Context) (Session, error)
	CloseSession(ctx context.Context, sessionID string) error

	GenerateKey(ctx context.Context, sessionID string, algo Algorithm, usage []uint) (KeyHandle, error)
	Sign(ctx context.Context, sessionID, keyID string, digest []byte) ([]byte, error)
	Verify(ctx context.Context, keyID string, digest, sig []byte) (bool, error)
	Encrypt(ctx context.Context, sessionID, keyID string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, sessionID, keyID string, ciphertext []byte) ([]byte, error)

	// DeleteKey zeroizes and removes keyID. Idempotent: deleting an unknown
	// or already-deleted key id is not an error (§4.3).
	DeleteKey(ctx context.Context, sessionID, keyID string) error
}
