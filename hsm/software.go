package hsm

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	bls "github.com/herumi/bls-eth-go-binary/bls"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anya-org/anya-core/pkg/apperr"
)

type softwareKey struct {
	algo   Algorithm
	edPub  ed25519.PublicKey
	edPriv ed25519.PrivateKey
	blsPub bls.PublicKey
	blsSec bls.SecretKey
	symKey []byte
}

// SoftwareProvider is an in-process HSM backend: keys live in process
// memory, protected only by the session/usage-mask checks every Provider
// enforces. It is the default provider (§6 hsm.provider=software) and the
// terminal link in the factory fallback chain.
type SoftwareProvider struct {
	mu       sync.RWMutex
	keys     map[string]*softwareKey
	sessions *SessionManager
	log      *logrus.Entry
	audit    AuditSink
}

// NewSoftwareProvider constructs a SoftwareProvider with the given session
// timeout/cap. audit may be nil, in which case key operations are not logged.
func NewSoftwareProvider(sessionTimeout time.Duration, maxSessions int, clk clock.Clock, log *logrus.Logger, audit AuditSink) *SoftwareProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if audit == nil {
		audit = noopAuditSink{}
	}
	return &SoftwareProvider{
		keys:     make(map[string]*softwareKey),
		sessions: NewSessionManager(sessionTimeout, maxSessions, clk),
		log:      log.WithField("hsm_provider", string(KindSoftware)),
		audit:    audit,
	}
}

func (p *SoftwareProvider) Kind() ProviderKind { return KindSoftware }

func (p *SoftwareProvider) OpenSession(ctx context.Context) (Session, error) {
	return p.sessions.Open(ctx)
}

func (p *SoftwareProvider) CloseSession(ctx context.Context, sessionID string) error {
	return p.sessions.Close(sessionID)
}

func (p *SoftwareProvider) GenerateKey(ctx context.Context, sessionID string, algo Algorithm, usage []uint) (KeyHandle, error) {
	if err := p.sessions.Require(sessionID); err != nil {
		return KeyHandle{}, err
	}
	k := &softwareKey{algo: algo}
	switch algo {
	case AlgoEd25519:
		pub, priv, err := generateEd25519()
		if err != nil {
			return KeyHandle{}, err
		}
		k.edPub, k.edPriv = pub, priv
	case AlgoBLS12381:
		pub, sec, err := generateBLS()
		if err != nil {
			return KeyHandle{}, err
		}
		k.blsPub, k.blsSec = pub, sec
	case AlgoXChaCha20Poly1305:
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return KeyHandle{}, apperr.Wrap(apperr.Security, apperr.CodeHardwareError, err, "generate symmetric key")
		}
		k.symKey = key
	default:
		return KeyHandle{}, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "unsupported algorithm").
			WithContext("algorithm", string(algo))
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.keys[id] = k
	p.mu.Unlock()
	p.log.WithField("key_id", id).Info("generated key")
	p.audit.Log(ctx, "hsm_generate_key", "software key generated", map[string]string{"key_id": id, "algorithm": string(algo)})

	return KeyHandle{ID: id, Algorithm: algo, UsageMask: NewUsageMask(usage...), CreatedAt: time.Now()}, nil
}

func (p *SoftwareProvider) lookup(keyID string) (*softwareKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.keys[keyID]
	if !ok {
		return nil, apperr.New(apperr.Security, apperr.CodeKeyNotFound, "key not found").WithContext("key_id", keyID)
	}
	return k, nil
}

func (p *SoftwareProvider) Sign(ctx context.Context, sessionID, keyID string, digest []byte) ([]byte, error) {
	if err := p.sessions.Require(sessionID); err != nil {
		return nil, err
	}
	k, err := p.lookup(keyID)
	if err != nil {
		return nil, err
	}
	var sig []byte
	switch k.algo {
	case AlgoEd25519:
		sig = signEd25519(k.edPriv, digest)
	case AlgoBLS12381:
		sig = signBLS(k.blsSec, digest)
	default:
		return nil, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "key does not support signing").
			WithContext("key_id", keyID)
	}
	p.audit.Log(ctx, "hsm_sign", "software key used to sign", map[string]string{"key_id": keyID})
	return sig, nil
}

func (p *SoftwareProvider) Verify(ctx context.Context, keyID string, digest, sig []byte) (bool, error) {
	k, err := p.lookup(keyID)
	if err != nil {
		return false, err
	}
	switch k.algo {
	case AlgoEd25519:
		return verifyEd25519(k.edPub, digest, sig), nil
	case AlgoBLS12381:
		return verifyBLS(k.blsPub, digest, sig), nil
	default:
		return false, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "key does not support verification").
			WithContext("key_id", keyID)
	}
}

func (p *SoftwareProvider) Encrypt(ctx context.Context, sessionID, keyID string, plaintext []byte) ([]byte, error) {
	if err := p.sessions.Require(sessionID); err != nil {
		return nil, err
	}
	k, err := p.lookup(keyID)
	if err != nil {
		return nil, err
	}
	if k.algo != AlgoXChaCha20Poly1305 {
		return nil, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "key does not support encryption").
			WithContext("key_id", keyID)
	}
	return encryptXChaCha20Poly1305(k.symKey, plaintext)
}

func (p *SoftwareProvider) Decrypt(ctx context.Context, sessionID, keyID string, ciphertext []byte) ([]byte, error) {
	if err := p.sessions.Require(sessionID); err != nil {
		return nil, err
	}
	k, err := p.lookup(keyID)
	if err != nil {
		return nil, err
	}
	if k.algo != AlgoXChaCha20Poly1305 {
		return nil, apperr.New(apperr.Validation, apperr.CodeUnsupportedAlgorithm, "key does not support decryption").
			WithContext("key_id", keyID)
	}
	pt, err := decryptXChaCha20Poly1305(k.symKey, ciphertext)
	if err != nil {
		return nil, err
	}
	p.audit.Log(ctx, "hsm_decrypt", "software key used to decrypt", map[string]string{"key_id": keyID})
	return pt, nil
}

// DeleteKey zeroizes and removes keyID. Deleting an unknown id is a no-op.
func (p *SoftwareProvider) DeleteKey(ctx context.Context, sessionID, keyID string) error {
	if err := p.sessions.Require(sessionID); err != nil {
		return err
	}
	p.mu.Lock()
	k, ok := p.keys[keyID]
	if ok {
		zeroize(k.edPriv)
		zeroize(k.symKey)
		delete(p.keys, keyID)
	}
	p.mu.Unlock()
	if ok {
		p.audit.Log(ctx, "hsm_delete_key", "software key deleted", map[string]string{"key_id": keyID})
	}
	return nil
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
