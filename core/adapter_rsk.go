package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RskAdapter implements Layer2Protocol for RSK, a bitcoin-merge-mined
// sidechain with its own peer-to-peer network, hence self-node fallback
// applies the same as for Lightning.
type RskAdapter struct {
	*BaseAdapter
}

func NewRskAdapter(enableSelfNodeFallback bool, minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *RskAdapter {
	caps := Capabilities{Issuance: false, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: true}
	return &RskAdapter{BaseAdapter: NewBaseAdapter(Rsk, caps, enableSelfNodeFallback, minPeers, preferSelfMaster, log)}
}

func (a *RskAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	return "", a.notSupported("issue_asset")
}

func (a *RskAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("rsk-tx:%s:%d", transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *RskAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != Rsk || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "spv_merkle", nil
}

func (a *RskAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
