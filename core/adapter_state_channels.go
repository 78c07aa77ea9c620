package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// StateChannelsAdapter implements Layer2Protocol for a generic bilateral
// payment/state channel network. No native asset-issuance primitive;
// transfers are off-chain balance updates, proofs are the latest signed
// channel state.
type StateChannelsAdapter struct {
	*BaseAdapter
}

func NewStateChannelsAdapter(enableSelfNodeFallback bool, minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *StateChannelsAdapter {
	caps := Capabilities{Issuance: false, AssetTransfer: true, ProofVerification: true, SelfNodeFallback: true}
	return &StateChannelsAdapter{BaseAdapter: NewBaseAdapter(StateChannels, caps, enableSelfNodeFallback, minPeers, preferSelfMaster, log)}
}

func (a *StateChannelsAdapter) IssueAsset(ctx context.Context, params AssetParams) (string, error) {
	return "", a.notSupported("issue_asset")
}

func (a *StateChannelsAdapter) TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error) {
	if err := a.requireConnected(); err != nil {
		return SubmitResult{}, err
	}
	payload := fmt.Sprintf("channel-update:%s:%d", transfer.Recipient, transfer.Amount)
	return a.SubmitTransaction(ctx, []byte(payload))
}

func (a *StateChannelsAdapter) VerifyProof(ctx context.Context, proof Proof) (bool, error) {
	if ok, handled := a.verifyCrossLayerEnvelope(proof); handled {
		return ok, nil
	}
	if proof.Protocol != StateChannels || len(proof.Payload) == 0 {
		return false, nil
	}
	return proof.Kind == "channel_state", nil
}

func (a *StateChannelsAdapter) ValidateState(ctx context.Context) error {
	return a.requireConnected()
}
