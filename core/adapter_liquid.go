package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LiquidAdapter implements Layer2Protocol for the Liquid federated
// sidechain: full confidential-asset issuance and transfer, no self-node
// fallback since consensus is federated rather than peer-discovered.
type LiquidAdapter struct {
	*BaseAdapter
}

func NewLiquidAdapter(minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *LiquidAdapter {
	caps := Capabilities{Issuance: true, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: false}
	return &LiquidAdapter{BaseAdapter: NewBaseAdapter(Liquid, caps, false, minPeers, preferSelfMaster, log)}
}

func (a *LiquidAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	if err := a.requireConnected(); err != nil {
		return "", err
	}
	assetID := fmt.Sprintf("liquid-asset:%s:%d", params.Ticker, params.TotalSupply)
	a.RecordBalance(assetID, params.TotalSupply)
	return assetID, nil
}

func (a *LiquidAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("liquid-transfer:%s:%s:%d", transfer.Asset, transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *LiquidAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Liquid || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "federation_signature", nil
}

func (a *LiquidAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
