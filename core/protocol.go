// Package core defines the Layer2 protocol contract shared by every
// protocol adapter (Lightning, RGB, DLC, RSK, Stacks, Taproot Assets, State
// Channels, Liquid, Bob) along with the adapter registry and cross-layer
// transfer orchestration in manager.go.
package core

import (
	"context"
	"time"
)

// ProtocolId identifies one of the supported Layer2 protocols.
type ProtocolId string

const (
	Lightning      ProtocolId = "lightning"
	Rgb            ProtocolId = "rgb"
	Dlc            ProtocolId = "dlc"
	Rsk            ProtocolId = "rsk"
	Stacks         ProtocolId = "stacks"
	TaprootAssets  ProtocolId = "taproot_assets"
	StateChannels  ProtocolId = "state_channels"
	Liquid         ProtocolId = "liquid"
	Bob            ProtocolId = "bob"
)

// AllProtocols lists every ProtocolId the manager knows how to register.
var AllProtocols = []ProtocolId{
	Lightning, Rgb, Dlc, Rsk, Stacks, TaprootAssets, StateChannels, Liquid, Bob,
}

// TransactionStatus is the lifecycle state of a submitted transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusFailed    TransactionStatus = "failed"
	StatusRejected  TransactionStatus = "rejected"
)

// NetworkState is the raw connectivity/sync snapshot an adapter reports; it
// is the sole input to the health classification in health.go.
type NetworkState struct {
	Connected        bool
	Synced           bool
	PeerCount        uint32
	IsPrimary        bool
	MinPeers         uint32
	PreferSelfMaster bool
}

// ProtocolState is the full state an adapter returns from GetState: the raw
// NetworkState plus the derived Health classification and a monotonic
// sequence number used for crash-recovery reconciliation (§6).
//
// BalanceInfo maps an issued asset id to its last known total supply,
// populated by issuance-capable adapters after IssueAsset succeeds.
// SyncHeight and FeeSource are populated from the Bitcoin RPC adapter (C2)
// through RecordSyncHeight/RecordFeeSource, which cmd/anyad calls on every
// registered adapter; FeeSource is "simulated" when C2 fell back to its
// deterministic estimate rather than a live node.
type ProtocolState struct {
	Protocol    NetworkStateOwner
	Network     NetworkState
	Health      Health
	Sequence    uint64
	AsOf        time.Time
	BalanceInfo map[string]uint64
	SyncHeight  uint64
	FeeSource   string
}

// NetworkStateOwner names the protocol a ProtocolState belongs to; kept as a
// distinct type alias so call sites read naturally (state.Protocol == Lightning).
type NetworkStateOwner = ProtocolId

// AssetParams describes an asset to be issued on a protocol that supports
// issuance (RGB, Taproot Assets, Liquid, ...).
type AssetParams struct {
	Ticker      string
	Name        string
	TotalSupply uint64
	Decimals    uint8
	Metadata    map[string]string
}

// AssetTransfer describes a transfer of a previously issued asset, or of the
// protocol's native unit when Asset is empty.
type AssetTransfer struct {
	Asset     string
	Amount    uint64
	Recipient string
	Memo      string
}

// Proof is an opaque, protocol-specific proof blob (a state-channel
// signature, a DLC oracle attestation, an SPV merkle branch, ...).
type Proof struct {
	Protocol ProtocolId
	Kind     string
	Payload  []byte
}

// TransferProof is the record a cross-layer transfer produces: a 32-byte
// commitment anchoring the source-side lock, and, once the destination
// accepts it, a 32-byte commitment anchoring the destination-side credit
// (§3, §4.2). Re-invoking CrossLayerTransfer with the same
// (source, destination, asset, amount) tuple returns the same commitments.
type TransferProof struct {
	SourceProtocol        ProtocolId
	DestProtocol          ProtocolId
	AssetID               string
	Amount                uint64
	SourceCommitment      []byte
	DestinationCommitment []byte
	Proof                 Proof
	IssuedAt              time.Time
}

// SubmitResult is returned by SubmitTransaction: a protocol-assigned
// transaction id plus its initial status.
type SubmitResult struct {
	TxID   string
	Status TransactionStatus
}

// Layer2Protocol is the uniform async operation set every adapter
// implements. All operations accept a context for deadline/cancellation
// propagation; long-running or network-bound operations must respect it.
type Layer2Protocol interface {
	Id() ProtocolId
	Capabilities() Capabilities

	// Base exposes the shared adapter plumbing (dialer override, balance
	// and chain-sync bookkeeping) every concrete adapter embeds. It lets
	// the manager and the daemon wire cross-cutting concerns (C1 HSM, C2
	// RPC, C3 storage) into an adapter without a type switch per protocol.
	Base() *BaseAdapter

	Initialize(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetState(ctx context.Context) (ProtocolState, error)

	SubmitTransaction(ctx context.Context, raw []byte) (SubmitResult, error)
	CheckTransactionStatus(ctx context.Context, txID string) (TransactionStatus, error)
	SyncState(ctx context.Context) error

	IssueAsset(ctx context.Context, params AssetParams) (string, error)
	TransferAsset(ctx context.Context, transfer AssetTransfer) (SubmitResult, error)
	VerifyProof(ctx context.Context, proof Proof) (bool, error)
	ValidateState(ctx context.Context) error
}

// Capabilities is the static support matrix a protocol advertises. An
// operation flagged false is not a bug when called; it returns an
// apperr.Error with CodeNotSupported.
type Capabilities struct {
	Issuance           bool
	AssetTransfer      bool
	ProofVerification  bool
	SelfNodeFallback   bool
}
