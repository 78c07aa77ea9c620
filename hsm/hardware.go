package hsm

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/anya-org/anya-core/pkg/apperr"
)

// HardwareProvider talks to a physical HSM over its vendor driver. This
// build carries no vendor driver, so every key operation reports a
// hardware error; the factory's fallback chain treats that as a signal to
// fall through to the next provider rather than surfacing it directly.
// Session bookkeeping still works so OpenSession/CloseSession can be
// exercised independently of key operations.
type HardwareProvider struct {
	sessions *SessionManager
	log      *logrus.Entry
	audit    AuditSink
}

func NewHardwareProvider(sessionTimeout time.Duration, maxSessions int, clk clock.Clock, log *logrus.Logger, audit AuditSink) *HardwareProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if audit == nil {
		audit = noopAuditSink{}
	}
	return &HardwareProvider{
		sessions: NewSessionManager(sessionTimeout, maxSessions, clk),
		log:      log.WithField("hsm_provider", string(KindHardware)),
		audit:    audit,
	}
}

func (p *HardwareProvider) Kind() ProviderKind { return KindHardware }

func (p *HardwareProvider) OpenSession(ctx context.Context) (Session, error) {
	return p.sessions.Open(ctx)
}

func (p *HardwareProvider) CloseSession(ctx context.Context, sessionID string) error {
	return p.sessions.Close(sessionID)
}

func (p *HardwareProvider) unavailable() error {
	return apperr.New(apperr.Security, apperr.CodeHardwareError, "no physical HSM driver attached in this build")
}

func (p *HardwareProvider) GenerateKey(ctx context.Context, sessionID string, algo Algorithm, usage []uint) (KeyHandle, error) {
	return KeyHandle{}, p.unavailable()
}

func (p *HardwareProvider) Sign(ctx context.Context, sessionID, keyID string, digest []byte) ([]byte, error) {
	return nil, p.unavailable()
}

func (p *HardwareProvider) Verify(ctx context.Context, keyID string, digest, sig []byte) (bool, error) {
	return false, p.unavailable()
}

func (p *HardwareProvider) Encrypt(ctx context.Context, sessionID, keyID string, plaintext []byte) ([]byte, error) {
	return nil, p.unavailable()
}

func (p *HardwareProvider) Decrypt(ctx context.Context, sessionID, keyID string, ciphertext []byte) ([]byte, error) {
	return nil, p.unavailable()
}

func (p *HardwareProvider) DeleteKey(ctx context.Context, sessionID, keyID string) error {
	return p.unavailable()
}
