package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// StacksAdapter implements Layer2Protocol for Stacks, which anchors to
// bitcoin via Proof-of-Transfer and supports SIP-10 fungible token
// issuance, hence full issuance/transfer/proof capability.
type StacksAdapter struct {
	*BaseAdapter
}

func NewStacksAdapter(minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *StacksAdapter {
	caps := Capabilities{Issuance: true, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: false}
	return &StacksAdapter{BaseAdapter: NewBaseAdapter(Stacks, caps, false, minPeers, preferSelfMaster, log)}
}

func (a *StacksAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	if err := a.requireConnected(); err != nil {
		return "", err
	}
	assetID := fmt.Sprintf("stacks-sip10:%s", params.Ticker)
	a.RecordBalance(assetID, params.TotalSupply)
	return assetID, nil
}

func (a *StacksAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("stacks-transfer:%s:%s:%d", transfer.Asset, transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *StacksAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Stacks || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "pox_microblock", nil
}

func (a *StacksAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
