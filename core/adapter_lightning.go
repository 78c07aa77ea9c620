package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LightningAdapter implements Layer2Protocol for the Lightning Network.
// Lightning has no native asset-issuance primitive, so Capabilities.Issuance
// is false; payments and HTLC preimage proofs are fully supported.
type LightningAdapter struct {
	*BaseAdapter
}

// NewLightningAdapter constructs a Lightning adapter.
func NewLightningAdapter(enableSelfNodeFallback bool, minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *LightningAdapter {
	caps := Capabilities{Issuance: false, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: true}
	return &LightningAdapter{BaseAdapter: NewBaseAdapter(Lightning, caps, enableSelfNodeFallback, minPeers, preferSelfMaster, log)}
}

func (a *LightningAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	return "", a.notSupported("issue_asset")
}

func (a *LightningAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("lightning-payment:%s:%d", transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *LightningAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Lightning || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "htlc_preimage", nil
}

func (a *LightningAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
