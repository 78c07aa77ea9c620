// Command anyad runs the Anya-core Layer2 protocol framework: it loads
// configuration, builds the HSM provider, registers every protocol
// adapter, and brings the manager up.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anya-org/anya-core/audit"
	"github.com/anya-org/anya-core/core"
	"github.com/anya-org/anya-core/hsm"
	"github.com/anya-org/anya-core/pkg/apperr"
	"github.com/anya-org/anya-core/pkg/config"
	"github.com/anya-org/anya-core/rpc"
	"github.com/anya-org/anya-core/storage"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "anyad",
		Short: "Anya-core Layer2 protocol framework daemon",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to anya.toml")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	auditSink := audit.NewMemorySink(log)
	audit.InitDefault(auditSink)

	hsm.Init(hsm.FactoryConfig{
		Preferred:      hsm.ProviderKind(cfg.HSM.Provider),
		SessionTimeout: time.Duration(cfg.HSM.SessionTimeoutSecond) * time.Second,
		MaxSessions:    int(cfg.HSM.MaxSessions),
		Logger:         log,
		Audit:          auditSinkAdapter{auditSink},
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	provider, err := hsm.Default().BuildPreferred(ctx)
	if err != nil {
		return fmt.Errorf("build hsm provider: %w", err)
	}
	log.WithField("hsm_provider", provider.Kind()).Info("hsm provider ready")

	dataDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	storage.RegisterBackendMetrics(prometheus.DefaultRegisterer)
	backend := storage.AutoSelect(*cfg, dataDir)
	stateCache, err := storage.NewTTLCache[core.ProtocolId, core.ProtocolState](1000, 10*time.Minute, nil)
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}
	recovery := storage.NewRecoveryCache(backend)

	zapLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build zap logger: %w", err)
	}
	manager := core.NewLayer2Manager(zapLog.Sugar())

	adapters := buildAdapters(*cfg, log)
	for _, p := range adapters {
		if err := manager.Register(p); err != nil {
			return fmt.Errorf("register %s: %w", p.Id(), err)
		}
	}

	if err := manager.InitializeAll(ctx); err != nil {
		return fmt.Errorf("initialize adapters: %w", err)
	}

	btc := rpc.NewBitcoinAdapter(*cfg)
	defer btc.Close()
	tip, err := btc.GetChainTip(ctx)
	if err != nil {
		log.WithError(err).Warn("get chain tip failed")
	}
	fee, err := btc.EstimateFee(ctx, "medium")
	if err != nil {
		log.WithError(err).Warn("estimate fee failed")
	}
	feeSource := "simulated"
	if fee.Provenance == rpc.ProvenanceRPC {
		feeSource = "rpc"
	}
	for _, p := range adapters {
		p.Base().RecordSyncHeight(tip.Height)
		p.Base().RecordFeeSource(feeSource)
	}

	for _, id := range manager.Registered() {
		p, _ := manager.Get(id)
		st, err := p.GetState(ctx)
		if err != nil {
			log.WithError(err).WithField("protocol", id).Warn("get state failed")
			continue
		}
		recovery.Record(st)
		stateCache.Put(id, st)
		log.WithFields(logrus.Fields{"protocol": id, "health": st.Health, "fee_source": st.FeeSource}).Info("adapter ready")
	}

	log.Info("anyad startup complete")
	return nil
}

func buildAdapters(cfg config.Config, log *logrus.Logger) []core.Layer2Protocol {
	adapters := []core.Layer2Protocol{
		core.NewLightningAdapter(cfg.EnableSelfNodeFallback, cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewRgbAdapter(cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewDlcAdapter(cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewRskAdapter(cfg.EnableSelfNodeFallback, cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewStacksAdapter(cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewTaprootAssetsAdapter(cfg.EnableSelfNodeFallback, cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewStateChannelsAdapter(cfg.EnableSelfNodeFallback, cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewLiquidAdapter(cfg.MinPeers, cfg.PreferSelfAsMaster, log),
		core.NewBobAdapter(cfg.EnableSelfNodeFallback, cfg.MinPeers, cfg.PreferSelfAsMaster, log),
	}
	for _, p := range adapters {
		// Only protocols with their own peer-to-peer network (capability
		// SelfNodeFallback) have a dial to perform; RGB/Stacks/Liquid anchor
		// to bitcoin rather than dialing their own peers, so they keep the
		// base adapter's always-succeeds simulation.
		if p.Capabilities().SelfNodeFallback {
			p.Base().WithDialer(dialerFor(cfg, p.Id()))
		}
	}
	return adapters
}

// dialerFor builds the real-networking connect attempt for a protocol. With
// no bootstrap peer configured, or with real networking disabled outright,
// it fails deterministically so BaseAdapter.Connect's self-node fallback
// path (§8 property 2) is exercised instead of silently pretending to dial.
func dialerFor(cfg config.Config, id core.ProtocolId) func(ctx context.Context) error {
	addr := cfg.Peers[string(id)]
	return func(ctx context.Context) error {
		if !cfg.EnableRealNetworking || addr == "" {
			return apperr.New(apperr.Network, apperr.CodeNetworkUnreachable, "no bootstrap peer configured").
				WithContext("protocol", string(id))
		}
		dialer := net.Dialer{Timeout: 5 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return apperr.Wrap(apperr.Network, apperr.CodeNetworkUnreachable, err, "dial bootstrap peer").
				WithContext("protocol", string(id)).WithContext("addr", addr)
		}
		return conn.Close()
	}
}

// auditSinkAdapter bridges audit.Sink to hsm.AuditSink without hsm needing
// to import the audit package directly.
type auditSinkAdapter struct {
	sink audit.Sink
}

func (a auditSinkAdapter) Log(ctx context.Context, kind, detail string, fields map[string]string) {
	a.sink.Log(ctx, kind, detail, fields)
}
