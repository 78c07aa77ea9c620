package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RgbAdapter implements Layer2Protocol for the RGB client-side-validated
// asset protocol: full issuance, transfer and proof verification support,
// no self-node fallback since RGB relies on a bitcoin anchor chain rather
// than a peer network of its own.
type RgbAdapter struct {
	*BaseAdapter
}

func NewRgbAdapter(minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *RgbAdapter {
	caps := Capabilities{Issuance: true, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: false}
	return &RgbAdapter{BaseAdapter: NewBaseAdapter(Rgb, caps, false, minPeers, preferSelfMaster, log)}
}

func (a *RgbAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	if err := a.requireConnected(); err != nil {
		return "", err
	}
	contractID := fmt.Sprintf("rgb:%s:%d", params.Ticker, params.TotalSupply)
	a.RecordBalance(contractID, params.TotalSupply)
	return contractID, nil
}

func (a *RgbAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("rgb-transfer:%s:%s:%d", transfer.Asset, transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *RgbAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Rgb || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "consignment", nil
}

func (a *RgbAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
