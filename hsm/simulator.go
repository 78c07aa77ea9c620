package hsm

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/anya-org/anya-core/pkg/apperr"
)

// SimulatorProvider wraps a SoftwareProvider with configurable artificial
// latency and failure injection, used to exercise retry/fallback paths in
// tests and demos without a real hardware or network dependency.
type SimulatorProvider struct {
	inner       *SoftwareProvider
	Latency     time.Duration
	FailureRate float64
	Clock       clock.Clock
	rng         *rand.Rand
}

func NewSimulatorProvider(sessionTimeout time.Duration, maxSessions int, latency time.Duration, failureRate float64, clk clock.Clock, log *logrus.Logger, audit AuditSink) *SimulatorProvider {
	if clk == nil {
		clk = clock.New()
	}
	return &SimulatorProvider{
		inner:       NewSoftwareProvider(sessionTimeout, maxSessions, clk, log, audit),
		Latency:     latency,
		FailureRate: failureRate,
		Clock:       clk,
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (p *SimulatorProvider) Kind() ProviderKind { return KindSimulator }

func (p *SimulatorProvider) maybeDelay() {
	if p.Latency > 0 {
		p.Clock.Sleep(p.Latency)
	}
}

func (p *SimulatorProvider) maybeFail(op string) error {
	if p.FailureRate <= 0 {
		return nil
	}
	if p.rng.Float64() < p.FailureRate {
		return apperr.Retryable(apperr.Network, apperr.CodeTimeout, "simulated hsm failure for "+op, 500*time.Millisecond)
	}
	return nil
}

func (p *SimulatorProvider) OpenSession(ctx context.Context) (Session, error) {
	p.maybeDelay()
	return p.inner.OpenSession(ctx)
}

func (p *SimulatorProvider) CloseSession(ctx context.Context, sessionID string) error {
	return p.inner.CloseSession(ctx, sessionID)
}

func (p *SimulatorProvider) GenerateKey(ctx context.Context, sessionID string, algo Algorithm, usage []uint) (KeyHandle, error) {
	p.maybeDelay()
	if err := p.maybeFail("generate_key"); err != nil {
		return KeyHandle{}, err
	}
	return p.inner.GenerateKey(ctx, sessionID, algo, usage)
}

func (p *SimulatorProvider) Sign(ctx context.Context, sessionID, keyID string, digest []byte) ([]byte, error) {
	p.maybeDelay()
	if err := p.maybeFail("sign"); err != nil {
		return nil, err
	}
	return p.inner.Sign(ctx, sessionID, keyID, digest)
}

func (p *SimulatorProvider) Verify(ctx context.Context, keyID string, digest, sig []byte) (bool, error) {
	p.maybeDelay()
	return p.inner.Verify(ctx, keyID, digest, sig)
}

func (p *SimulatorProvider) Encrypt(ctx context.Context, sessionID, keyID string, plaintext []byte) ([]byte, error) {
	p.maybeDelay()
	if err := p.maybeFail("encrypt"); err != nil {
		return nil, err
	}
	return p.inner.Encrypt(ctx, sessionID, keyID, plaintext)
}

func (p *SimulatorProvider) Decrypt(ctx context.Context, sessionID, keyID string, ciphertext []byte) ([]byte, error) {
	p.maybeDelay()
	if err := p.maybeFail("decrypt"); err != nil {
		return nil, err
	}
	return p.inner.Decrypt(ctx, sessionID, keyID, ciphertext)
}

func (p *SimulatorProvider) DeleteKey(ctx context.Context, sessionID, keyID string) error {
	p.maybeDelay()
	return p.inner.DeleteKey(ctx, sessionID, keyID)
}
