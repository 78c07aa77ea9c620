package hsm

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// AuditSink is the narrow logging surface the factory needs from the audit
// package, kept local to hsm to avoid importing audit's full API and any
// import-cycle risk.
type AuditSink interface {
	Log(ctx context.Context, kind, detail string, fields map[string]string)
}

// noopAuditSink is used when no sink is supplied.
type noopAuditSink struct{}

func (noopAuditSink) Log(ctx context.Context, kind, detail string, fields map[string]string) {}

// FactoryConfig selects the preferred provider kind and the shared
// session policy every constructed provider is given.
type FactoryConfig struct {
	Preferred      ProviderKind
	SessionTimeout time.Duration
	MaxSessions    int
	Clock          clock.Clock
	Logger         *logrus.Logger
	Audit          AuditSink
}

// Factory builds the preferred Provider, falling back through
// hardware -> software -> simulator on construction failure, recording an
// audit event at each fallback step (§4.3).
type Factory struct {
	cfg FactoryConfig
}

var (
	factoryOnce sync.Once
	factory     *Factory
)

// Init installs the process-wide Factory. Safe to call once; subsequent
// calls are no-ops, mirroring the teacher's sync.Once singleton idiom used
// for its audit manager and id registry.
func Init(cfg FactoryConfig) {
	factoryOnce.Do(func() {
		if cfg.Audit == nil {
			cfg.Audit = noopAuditSink{}
		}
		if cfg.Logger == nil {
			cfg.Logger = logrus.StandardLogger()
		}
		factory = &Factory{cfg: cfg}
	})
}

// Default returns the process-wide Factory installed by Init.
func Default() *Factory {
	if factory == nil {
		Init(FactoryConfig{Preferred: KindSoftware, SessionTimeout: 5 * time.Minute, MaxSessions: 10})
	}
	return factory
}

// Build constructs a Provider for kind. Providers are cheap to construct
// (no I/O beyond key generation), so Build does not cache instances;
// callers that want a shared provider should hold on to the result.
func (f *Factory) Build(ctx context.Context, kind ProviderKind) (Provider, error) {
	switch kind {
	case KindHardware:
		return NewHardwareProvider(f.cfg.SessionTimeout, f.cfg.MaxSessions, f.cfg.Clock, f.cfg.Logger, f.cfg.Audit), nil
	case KindSoftware:
		return NewSoftwareProvider(f.cfg.SessionTimeout, f.cfg.MaxSessions, f.cfg.Clock, f.cfg.Logger, f.cfg.Audit), nil
	case KindSimulator:
		return NewSimulatorProvider(f.cfg.SessionTimeout, f.cfg.MaxSessions, 0, 0, f.cfg.Clock, f.cfg.Logger, f.cfg.Audit), nil
	case KindBitcoin:
		return NewBitcoinHsmProvider(f.cfg.SessionTimeout, f.cfg.MaxSessions, f.cfg.Clock, f.cfg.Logger, f.cfg.Audit)
	default:
		return NewSoftwareProvider(f.cfg.SessionTimeout, f.cfg.MaxSessions, f.cfg.Clock, f.cfg.Logger, f.cfg.Audit), nil
	}
}

// BuildPreferred constructs f.cfg.Preferred, probing it with a throwaway
// GenerateKey call and falling through software -> simulator on failure.
// Hardware is the only backend expected to fail this probe in practice
// (§4.3: no physical HSM driver attached).
func (f *Factory) BuildPreferred(ctx context.Context) (Provider, error) {
	chain := []ProviderKind{f.cfg.Preferred, KindSoftware, KindSimulator}
	var lastErr error
	for i, kind := range chain {
		if i > 0 && kind == chain[i-1] {
			continue
		}
		p, err := f.Build(ctx, kind)
		if err != nil {
			lastErr = err
			f.cfg.Audit.Log(ctx, "hsm_provider_fallback", "construction failed", map[string]string{"kind": string(kind)})
			continue
		}
		if err := f.probe(ctx, p); err != nil {
			lastErr = err
			f.cfg.Audit.Log(ctx, "hsm_provider_fallback", "probe failed", map[string]string{"kind": string(kind)})
			continue
		}
		if i > 0 {
			f.cfg.Audit.Log(ctx, "hsm_provider_selected", "fell back to non-preferred provider", map[string]string{"kind": string(kind)})
		}
		return p, nil
	}
	return nil, lastErr
}

func (f *Factory) probe(ctx context.Context, p Provider) error {
	sess, err := p.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer p.CloseSession(ctx, sess.ID)

	algo := AlgoEd25519
	if p.Kind() == KindBitcoin {
		algo = AlgoSecp256k1Taproot
	}
	_, err = p.GenerateKey(ctx, sess.ID, algo, []uint{UsageSign})
	return err
}
