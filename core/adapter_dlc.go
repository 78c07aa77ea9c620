package core

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DlcAdapter implements Layer2Protocol for Discreet Log Contracts. DLCs
// settle a fixed contract outcome rather than transferring a fungible
// asset, so Issuance and AssetTransfer are both unsupported; oracle
// attestation proofs are the adapter's primary extra surface.
type DlcAdapter struct {
	*BaseAdapter
}

func NewDlcAdapter(minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *DlcAdapter {
	caps := Capabilities{Issuance: false, AssetTransfer: false, ProofVerification: true, SelfNodeFallback: false}
	return &DlcAdapter{BaseAdapter: NewBaseAdapter(Dlc, caps, false, minPeers, preferSelfMaster, log)}
}

func (a *DlcAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	return "", a.notSupported("issue_asset")
}

func (a *DlcAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	return SubmitResult{}, a.notSupported("transfer_asset")
}

func (a *DlcAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Dlc || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "oracle_attestation", nil
}

func (a *DlcAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
