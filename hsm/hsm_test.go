package hsm

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type memAuditSink struct {
	events []string
}

func (m *memAuditSink) Log(ctx context.Context, kind, detail string, fields map[string]string) {
	m.events = append(m.events, kind)
}

func TestSoftwareProviderEd25519SignVerify(t *testing.T) {
	ctx := context.Background()
	p := NewSoftwareProvider(time.Minute, 4, nil, nil, nil)

	sess, err := p.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	key, err := p.GenerateKey(ctx, sess.ID, AlgoEd25519, []uint{UsageSign})
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	digest := sha256.Sum256([]byte("hello"))
	sig, err := p.Sign(ctx, sess.ID, key.ID, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := p.Verify(ctx, key.ID, digest[:], sig)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
}

func TestSoftwareProviderEncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewSoftwareProvider(time.Minute, 4, nil, nil, nil)
	sess, _ := p.OpenSession(ctx)
	key, err := p.GenerateKey(ctx, sess.ID, AlgoXChaCha20Poly1305, []uint{UsageEncrypt})
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	ct, err := p.Encrypt(ctx, sess.ID, key.ID, []byte("secret message"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := p.Decrypt(ctx, sess.ID, key.ID, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "secret message" {
		t.Fatalf("round trip mismatch: %q", pt)
	}
}

func TestSessionManagerExpiry(t *testing.T) {
	mc := clock.NewMock()
	sm := NewSessionManager(time.Minute, 2, mc)
	s, err := sm.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sm.Require(s.ID); err != nil {
		t.Fatalf("Require before expiry: %v", err)
	}
	mc.Add(2 * time.Minute)
	if err := sm.Require(s.ID); err == nil {
		t.Fatalf("expected session to be expired")
	}
}

func TestSessionManagerCapReached(t *testing.T) {
	sm := NewSessionManager(time.Minute, 1, nil)
	if _, err := sm.Open(context.Background()); err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	if _, err := sm.Open(context.Background()); err == nil {
		t.Fatalf("expected second Open to hit session cap")
	}
}

func TestHardwareProviderAlwaysUnavailable(t *testing.T) {
	ctx := context.Background()
	p := NewHardwareProvider(time.Minute, 2, nil, nil, nil)
	sess, err := p.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := p.GenerateKey(ctx, sess.ID, AlgoEd25519, nil); err == nil {
		t.Fatalf("expected hardware provider to report unavailable")
	}
}

func TestFactoryFallsBackFromHardwareToSoftware(t *testing.T) {
	Init(FactoryConfig{Preferred: KindHardware, SessionTimeout: time.Minute, MaxSessions: 4})
	f := Default()
	p, err := f.BuildPreferred(context.Background())
	if err != nil {
		t.Fatalf("BuildPreferred: %v", err)
	}
	if p.Kind() != KindSoftware {
		t.Fatalf("expected fallback to software, got %s", p.Kind())
	}
}

func TestSoftwareProviderDeleteKeyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	audit := &memAuditSink{}
	p := NewSoftwareProvider(time.Minute, 4, nil, nil, audit)
	sess, _ := p.OpenSession(ctx)
	key, err := p.GenerateKey(ctx, sess.ID, AlgoEd25519, []uint{UsageSign})
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := p.DeleteKey(ctx, sess.ID, key.ID); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if err := p.DeleteKey(ctx, sess.ID, key.ID); err != nil {
		t.Fatalf("DeleteKey on already-deleted key should be a no-op: %v", err)
	}
	if _, err := p.Sign(ctx, sess.ID, key.ID, make([]byte, 32)); err == nil {
		t.Fatalf("expected Sign to fail after key deletion")
	}
	var generated, deleted bool
	for _, e := range audit.events {
		if e == "hsm_generate_key" {
			generated = true
		}
		if e == "hsm_delete_key" {
			deleted = true
		}
	}
	if !generated || !deleted {
		t.Fatalf("expected both generate and delete to be audited, got %v", audit.events)
	}
}

func TestBitcoinHsmSchnorrSignVerify(t *testing.T) {
	ctx := context.Background()
	p, err := NewBitcoinHsmProvider(time.Minute, 4, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewBitcoinHsmProvider: %v", err)
	}
	sess, err := p.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	key, err := p.GenerateKey(ctx, sess.ID, AlgoSecp256k1Taproot, []uint{UsageSign})
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	digest := sha256.Sum256([]byte("bitcoin sighash"))
	sig, err := p.Sign(ctx, sess.ID, key.ID, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := p.Verify(ctx, key.ID, digest[:], sig)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
}
