package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TaprootAssetsAdapter implements Layer2Protocol for the Taproot Assets
// protocol: full issuance/transfer/proof support, and self-node fallback
// since it runs against a lnd-style peer connection.
type TaprootAssetsAdapter struct {
	*BaseAdapter
}

func NewTaprootAssetsAdapter(enableSelfNodeFallback bool, minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *TaprootAssetsAdapter {
	caps := Capabilities{Issuance: true, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: true}
	return &TaprootAssetsAdapter{BaseAdapter: NewBaseAdapter(TaprootAssets, caps, enableSelfNodeFallback, minPeers, preferSelfMaster, log)}
}

func (a *TaprootAssetsAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	if err := a.requireConnected(); err != nil {
		return "", err
	}
	assetID := fmt.Sprintf("taproot-asset:%s:%d", params.Ticker, params.TotalSupply)
	a.RecordBalance(assetID, params.TotalSupply)
	return assetID, nil
}

func (a *TaprootAssetsAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("taproot-transfer:%s:%s:%d", transfer.Asset, transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *TaprootAssetsAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != TaprootAssets || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "asset_proof", nil
}

func (a *TaprootAssetsAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
