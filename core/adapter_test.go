package core

import (
	"context"
	"fmt"
	"testing"
)

// adapterCases enumerates one representative construction per protocol, used
// to exercise the shared BaseAdapter lifecycle and each adapter's
// capability-gated issuance behavior without duplicating the same assertions
// nine times over.
func adapterCases(t *testing.T) []Layer2Protocol {
	t.Helper()
	return []Layer2Protocol{
		NewLightningAdapter(true, 2, false, nil),
		NewRgbAdapter(2, false, nil),
		NewDlcAdapter(2, false, nil),
		NewRskAdapter(true, 2, false, nil),
		NewStacksAdapter(2, false, nil),
		NewTaprootAssetsAdapter(true, 2, false, nil),
		NewStateChannelsAdapter(true, 2, false, nil),
		NewLiquidAdapter(2, false, nil),
		NewBobAdapter(true, 2, false, nil),
	}
}

func TestAdapterLifecycle(t *testing.T) {
	ctx := context.Background()
	for _, a := range adapterCases(t) {
		a := a
		t.Run(string(a.Id()), func(t *testing.T) {
			if err := a.Initialize(ctx); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if err := a.Initialize(ctx); err == nil {
				t.Fatalf("expected double Initialize to fail")
			}
			if err := a.Connect(ctx); err != nil {
				t.Fatalf("Connect: %v", err)
			}
			st, err := a.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState: %v", err)
			}
			if st.Health != Healthy {
				t.Fatalf("expected healthy state after connect, got %s", st.Health)
			}
			res, err := a.SubmitTransaction(ctx, []byte("payload"))
			if err != nil {
				t.Fatalf("SubmitTransaction: %v", err)
			}
			if res.Status != StatusPending {
				t.Fatalf("expected pending status, got %s", res.Status)
			}
			if err := a.SyncState(ctx); err != nil {
				t.Fatalf("SyncState: %v", err)
			}
			status, err := a.CheckTransactionStatus(ctx, res.TxID)
			if err != nil {
				t.Fatalf("CheckTransactionStatus: %v", err)
			}
			if status != StatusConfirmed {
				t.Fatalf("expected confirmed after sync, got %s", status)
			}
			if err := a.Disconnect(ctx); err != nil {
				t.Fatalf("Disconnect: %v", err)
			}
		})
	}
}

func TestAdapterCapabilityMatrix(t *testing.T) {
	ctx := context.Background()
	for _, a := range adapterCases(t) {
		a := a
		if err := a.Initialize(ctx); err != nil {
			t.Fatalf("%s Initialize: %v", a.Id(), err)
		}
		if err := a.Connect(ctx); err != nil {
			t.Fatalf("%s Connect: %v", a.Id(), err)
		}
		_, err := a.IssueAsset(ctx, AssetParams{Ticker: "TST", TotalSupply: 1000})
		if a.Capabilities().Issuance && err != nil {
			t.Fatalf("%s: expected issuance to succeed, got %v", a.Id(), err)
		}
		if !a.Capabilities().Issuance {
			if err == nil {
				t.Fatalf("%s: expected issuance to be unsupported", a.Id())
			}
		}
	}
}

func TestSelfPrimaryWithNoPeersIsHealthy(t *testing.T) {
	ctx := context.Background()
	a := NewLightningAdapter(true, 2, true, nil)
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a.Base().WithDialer(func(ctx context.Context) error {
		return fmt.Errorf("no bootstrap peer configured")
	})
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st, err := a.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !st.Network.IsPrimary || st.Network.PeerCount != 0 {
		t.Fatalf("expected self-node fallback to elect primary with zero peers, got %+v", st.Network)
	}
	if st.Health != Healthy {
		t.Fatalf("expected self-primary with prefer_self_as_master to be healthy, got %s", st.Health)
	}
}

func TestIssueAssetRecordsBalance(t *testing.T) {
	ctx := context.Background()
	a := NewRgbAdapter(2, false, nil)
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	id, err := a.IssueAsset(ctx, AssetParams{Ticker: "TST", TotalSupply: 5000})
	if err != nil {
		t.Fatalf("IssueAsset: %v", err)
	}
	st, err := a.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.BalanceInfo[id] != 5000 {
		t.Fatalf("expected balance_info[%s]=5000, got %d", id, st.BalanceInfo[id])
	}
}

func TestSubmissionQueueBackpressure(t *testing.T) {
	ctx := context.Background()
	a := NewRgbAdapter(2, false, nil)
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	var lastErr error
	for i := 0; i < defaultQueueDepth+8; i++ {
		_, lastErr = a.SubmitTransaction(ctx, []byte("x"))
		if lastErr != nil {
			break
		}
	}
	if lastErr == nil {
		t.Fatalf("expected queue to eventually report capacity error")
	}
}
