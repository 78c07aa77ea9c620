package core

import (
	"context"
	"testing"
)

func newTestManager(t *testing.T) (*Layer2Manager, *RgbAdapter, *StacksAdapter) {
	t.Helper()
	m := NewLayer2Manager(nil)
	src := NewRgbAdapter(1, false, nil)
	dst := NewStacksAdapter(1, false, nil)
	if err := m.Register(src); err != nil {
		t.Fatalf("register src: %v", err)
	}
	if err := m.Register(dst); err != nil {
		t.Fatalf("register dst: %v", err)
	}
	if err := m.Register(src); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	ctx := context.Background()
	if err := m.InitializeAll(ctx); err != nil {
		t.Fatalf("InitializeAll: %v", err)
	}
	return m, src, dst
}

func TestLayer2ManagerRegisterAndInitialize(t *testing.T) {
	m, src, dst := newTestManager(t)
	if _, err := m.Get(src.Id()); err != nil {
		t.Fatalf("Get src: %v", err)
	}
	if _, err := m.Get(dst.Id()); err != nil {
		t.Fatalf("Get dst: %v", err)
	}
	if _, err := m.Get(Dlc); err == nil {
		t.Fatalf("expected unregistered protocol lookup to fail")
	}
}

func TestCrossLayerTransferAndVerify(t *testing.T) {
	m, src, dst := newTestManager(t)
	ctx := context.Background()

	proof, err := m.CrossLayerTransfer(ctx, "rgb:TST", 100, src.Id(), dst.Id())
	if err != nil {
		t.Fatalf("CrossLayerTransfer: %v", err)
	}
	if proof.AssetID != "rgb:TST" || proof.Amount != 100 {
		t.Fatalf("unexpected proof fields %+v", proof)
	}
	if len(proof.SourceCommitment) != 32 || len(proof.DestinationCommitment) != 32 {
		t.Fatalf("expected 32-byte commitments, got %d/%d", len(proof.SourceCommitment), len(proof.DestinationCommitment))
	}

	ok, err := m.VerifyCrossLayerProof(ctx, proof)
	if err != nil {
		t.Fatalf("VerifyCrossLayerProof: %v", err)
	}
	if !ok {
		t.Fatalf("expected proof to verify")
	}

	replay, err := m.CrossLayerTransfer(ctx, "rgb:TST", 100, src.Id(), dst.Id())
	if err != nil {
		t.Fatalf("idempotent replay: %v", err)
	}
	if string(replay.SourceCommitment) != string(proof.SourceCommitment) ||
		string(replay.DestinationCommitment) != string(proof.DestinationCommitment) {
		t.Fatalf("expected idempotent replay to return identical proof")
	}
}

func TestCrossLayerTransferUnknownProtocol(t *testing.T) {
	m, src, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.CrossLayerTransfer(ctx, "rgb:TST", 1, src.Id(), Dlc)
	if err == nil {
		t.Fatalf("expected unregistered destination to fail")
	}
}
