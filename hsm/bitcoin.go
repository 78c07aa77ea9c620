package hsm

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	bip39 "github.com/tyler-smith/go-bip39"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anya-org/anya-core/pkg/apperr"
)

const hardenedOffset = uint32(0x80000000)

var curveOrder = btcec.S256().N

type bitcoinKey struct {
	priv *btcec.PrivateKey
}

// BitcoinHsmProvider derives secp256k1/Taproot keys from a BIP-39 mnemonic
// using BIP-32 hardened derivation, the bitcoin-native counterpart to
// SoftwareProvider's generic ed25519/BLS keys. Signatures are BIP-340
// Schnorr, matching Taproot spending rules.
type BitcoinHsmProvider struct {
	mu         sync.RWMutex
	seed       []byte
	keys       map[string]*bitcoinKey
	nextIndex  uint32
	sessions   *SessionManager
	log        *logrus.Entry
	audit      AuditSink
}

// NewBitcoinHsmProvider generates a fresh 24-word mnemonic internally and
// derives from its seed. The mnemonic itself is never exposed through the
// Provider interface.
func NewBitcoinHsmProvider(sessionTimeout time.Duration, maxSessions int, clk clock.Clock, log *logrus.Logger, audit AuditSink) (*BitcoinHsmProvider, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "generate entropy")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "generate mnemonic")
	}
	return newBitcoinHsmFromMnemonic(mnemonic, "", sessionTimeout, maxSessions, clk, log, audit)
}

func newBitcoinHsmFromMnemonic(mnemonic, passphrase string, sessionTimeout time.Duration, maxSessions int, clk clock.Clock, log *logrus.Logger, audit AuditSink) (*BitcoinHsmProvider, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidParams, "invalid bip39 mnemonic")
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if audit == nil {
		audit = noopAuditSink{}
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return &BitcoinHsmProvider{
		seed:     seed,
		keys:     make(map[string]*bitcoinKey),
		sessions: NewSessionManager(sessionTimeout, maxSessions, clk),
		log:      log.WithField("hsm_provider", string(KindBitcoin)),
		audit:    audit,
	}, nil
}

func (p *BitcoinHsmProvider) Kind() ProviderKind { return KindBitcoin }

func (p *BitcoinHsmProvider) OpenSession(ctx context.Context) (Session, error) {
	return p.sessions.Open(ctx)
}

func (p *BitcoinHsmProvider) CloseSession(ctx context.Context, sessionID string) error {
	return p.sessions.Close(sessionID)
}

// masterKey derives (k, chainCode) from the wallet seed per BIP-32.
func (p *BitcoinHsmProvider) masterKey() ([]byte, []byte) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(p.seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// deriveHardened walks a single hardened BIP-32 derivation step.
func deriveHardened(k, chainCode []byte, index uint32) ([]byte, []byte) {
	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, k...)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, hardenedOffset+index)
	data = append(data, idx...)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	il := new(big.Int).SetBytes(sum[:32])
	kInt := new(big.Int).SetBytes(k)
	child := new(big.Int).Add(il, kInt)
	child.Mod(child, curveOrder)

	childBytes := make([]byte, 32)
	child.FillBytes(childBytes)
	return childBytes, sum[32:]
}

// GenerateKey derives the next hardened account key; algo must be
// AlgoSecp256k1Taproot, the only scheme this provider serves.
func (p *BitcoinHsmProvider) GenerateKey(ctx context.Context, sessionID string, algo Algorithm, usage []uint) (KeyHandle, error) {
	if err := p.sessions.Require(sessionID); err != nil {
		return KeyHandle{}, err
	}
	if algo != AlgoSecp256k1Taproot {
		return KeyHandle{}, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "bitcoin hsm only derives secp256k1-taproot keys").
			WithContext("algorithm", string(algo))
	}

	p.mu.Lock()
	index := p.nextIndex
	p.nextIndex++
	p.mu.Unlock()

	k, cc := p.masterKey()
	childK, _ := deriveHardened(k, cc, index)
	priv, _ := btcec.PrivKeyFromBytes(childK)

	id := uuid.NewString()
	p.mu.Lock()
	p.keys[id] = &bitcoinKey{priv: priv}
	p.mu.Unlock()
	p.log.WithFields(logrus.Fields{"key_id": id, "account_index": index}).Info("derived bitcoin key")
	p.audit.Log(ctx, "hsm_generate_key", "bitcoin key derived", map[string]string{"key_id": id, "algorithm": string(algo)})

	return KeyHandle{ID: id, Algorithm: algo, UsageMask: NewUsageMask(usage...), CreatedAt: time.Now()}, nil
}

func (p *BitcoinHsmProvider) lookup(keyID string) (*bitcoinKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.keys[keyID]
	if !ok {
		return nil, apperr.New(apperr.Security, apperr.CodeKeyNotFound, "key not found").WithContext("key_id", keyID)
	}
	return k, nil
}

// Sign produces a BIP-340 Schnorr signature over digest (expected to be a
// 32-byte sighash).
func (p *BitcoinHsmProvider) Sign(ctx context.Context, sessionID, keyID string, digest []byte) ([]byte, error) {
	if err := p.sessions.Require(sessionID); err != nil {
		return nil, err
	}
	k, err := p.lookup(keyID)
	if err != nil {
		return nil, err
	}
	if len(digest) != 32 {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidParams, "digest must be 32 bytes for schnorr signing")
	}
	sig, err := schnorr.Sign(k.priv, digest)
	if err != nil {
		return nil, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "schnorr sign")
	}
	p.audit.Log(ctx, "hsm_sign", "bitcoin key used to sign", map[string]string{"key_id": keyID})
	return sig.Serialize(), nil
}

func (p *BitcoinHsmProvider) Verify(ctx context.Context, keyID string, digest, sig []byte) (bool, error) {
	k, err := p.lookup(keyID)
	if err != nil {
		return false, err
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, nil
	}
	pub, err := schnorr.ParsePubKey(schnorr.SerializePubKey(k.priv.PubKey()))
	if err != nil {
		return false, err
	}
	return parsed.Verify(digest, pub), nil
}

func (p *BitcoinHsmProvider) Encrypt(ctx context.Context, sessionID, keyID string, plaintext []byte) ([]byte, error) {
	return nil, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "bitcoin hsm does not support symmetric encryption")
}

func (p *BitcoinHsmProvider) Decrypt(ctx context.Context, sessionID, keyID string, ciphertext []byte) ([]byte, error) {
	return nil, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "bitcoin hsm does not support symmetric decryption")
}

// DeleteKey zeroizes and removes keyID. Deleting an unknown id is a no-op.
func (p *BitcoinHsmProvider) DeleteKey(ctx context.Context, sessionID, keyID string) error {
	if err := p.sessions.Require(sessionID); err != nil {
		return err
	}
	p.mu.Lock()
	k, ok := p.keys[keyID]
	if ok {
		k.priv.Zero()
		delete(p.keys, keyID)
	}
	p.mu.Unlock()
	if ok {
		p.audit.Log(ctx, "hsm_delete_key", "bitcoin key deleted", map[string]string{"key_id": keyID})
	}
	return nil
}
