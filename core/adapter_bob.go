package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// BobAdapter implements Layer2Protocol for the Bob hybrid rollup (bitcoin
// settlement, EVM execution). No native issuance primitive is exposed
// through this adapter; transfers and merkle inclusion proofs are.
type BobAdapter struct {
	*BaseAdapter
}

func NewBobAdapter(enableSelfNodeFallback bool, minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *BobAdapter {
	caps := Capabilities{Issuance: false, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: true}
	return &BobAdapter{BaseAdapter: NewBaseAdapter(Bob, caps, enableSelfNodeFallback, minPeers, preferSelfMaster, log)}
}

func (a *BobAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	return "", a.notSupported("issue_asset")
}

func (a *BobAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("bob-tx:%s:%d", transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *BobAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Bob || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "rollup_inclusion", nil
}

func (a *BobAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
