package rpc

import (
	"context"
	"testing"

	"github.com/anya-org/anya-core/pkg/config"
)

func TestGetChainTipSimulatedWhenNetworkingDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.EnableRealNetworking = false
	a := NewBitcoinAdapter(cfg)
	defer a.Close()

	tip, err := a.GetChainTip(context.Background())
	if err != nil {
		t.Fatalf("GetChainTip: %v", err)
	}
	if tip.Provenance != ProvenanceSimulated {
		t.Fatalf("expected simulated provenance, got %s", tip.Provenance)
	}
	if tip.Hash == "" {
		t.Fatalf("expected non-empty simulated hash")
	}
}

func TestGetChainTipDeterministicAcrossCalls(t *testing.T) {
	cfg := config.Defaults()
	cfg.EnableRealNetworking = false
	a := NewBitcoinAdapter(cfg)
	defer a.Close()

	tip1, _ := a.GetChainTip(context.Background())
	tip2, _ := a.GetChainTip(context.Background())
	if tip1.Hash != tip2.Hash {
		t.Fatalf("expected deterministic simulated tip, got %s vs %s", tip1.Hash, tip2.Hash)
	}
}

func TestEstimateFeeFallsBackWhenNoRPCURL(t *testing.T) {
	cfg := config.Defaults()
	cfg.EnableRealNetworking = true
	cfg.Bitcoin.RPCURL = ""
	a := NewBitcoinAdapter(cfg)
	defer a.Close()

	fee, err := a.EstimateFee(context.Background(), "high")
	if err != nil {
		t.Fatalf("EstimateFee: %v", err)
	}
	if fee.Provenance != ProvenanceSimulated {
		t.Fatalf("expected simulated provenance without an rpc url, got %s", fee.Provenance)
	}
	if fee.SatPerVByte != 50 {
		t.Fatalf("expected high-priority simulated fee 50, got %v", fee.SatPerVByte)
	}
}
