package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anya-org/anya-core/pkg/apperr"
)

// AdapterState is the lifecycle state machine every protocol adapter walks
// through: Uninitialized -> Initialized -> Connected -> Syncing -> Synced,
// with Warning/Disconnected reachable from Connected/Synced on health
// degradation or a lost link.
type AdapterState string

const (
	StateUninitialized AdapterState = "uninitialized"
	StateInitialized   AdapterState = "initialized"
	StateConnected     AdapterState = "connected"
	StateSyncing       AdapterState = "syncing"
	StateSynced        AdapterState = "synced"
	StateWarning       AdapterState = "warning"
	StateDisconnected  AdapterState = "disconnected"
)

// defaultQueueDepth is the bounded submission queue size (§4.1): once full,
// SubmitTransaction fails fast with apperr.CodeQueueFull instead of blocking.
const defaultQueueDepth = 1024

// BaseAdapter holds the state, network snapshot and submission queue shared
// by every per-protocol adapter. Protocol files embed it and implement the
// protocol-specific parts of Layer2Protocol (IssueAsset, TransferAsset,
// VerifyProof, ValidateState); Connect's dial attempt is installed from
// outside through WithDialer.
type BaseAdapter struct {
	id   ProtocolId
	caps Capabilities

	mu    sync.RWMutex
	state AdapterState
	ns    NetworkState
	seq   uint64

	enableSelfNodeFallback bool
	minPeers               uint32

	queue  chan []byte
	log    *logrus.Entry
	backoff BackoffPolicy

	txMu    sync.RWMutex
	txStore map[string]TransactionStatus

	balMu      sync.RWMutex
	balances   map[string]uint64
	syncHeight uint64
	feeSource  string

	// dial is the connect attempt against the counterparty node/daemon,
	// installed through WithDialer (cmd/anyad does so for protocols with
	// capability SelfNodeFallback); nil means "always succeeds".
	dial func(ctx context.Context) error
}

// NewBaseAdapter constructs a BaseAdapter in StateUninitialized. preferSelfMaster
// seeds NetworkState.PreferSelfMaster (§4.5, wired from Config.PreferSelfAsMaster)
// so the primary-election/health branches can actually be exercised outside tests.
func NewBaseAdapter(id ProtocolId, caps Capabilities, enableSelfNodeFallback bool, minPeers uint32, preferSelfMaster bool, log *logrus.Logger) *BaseAdapter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BaseAdapter{
		id:                     id,
		caps:                   caps,
		state:                  StateUninitialized,
		ns:                     NetworkState{PreferSelfMaster: preferSelfMaster},
		enableSelfNodeFallback: enableSelfNodeFallback,
		minPeers:               minPeers,
		queue:                  make(chan []byte, defaultQueueDepth),
		log:                    log.WithField("protocol", string(id)),
		backoff:                DefaultBackoff(),
		txStore:                make(map[string]TransactionStatus),
		balances:               make(map[string]uint64),
	}
}

// Base implements Layer2Protocol.Base by returning itself; embedding structs
// get this for free through method promotion.
func (a *BaseAdapter) Base() *BaseAdapter { return a }

// WithDialer overrides the connect simulation with real dial logic.
func (a *BaseAdapter) WithDialer(dial func(ctx context.Context) error) *BaseAdapter {
	a.dial = dial
	return a
}

// RecordBalance stores the last known total supply for an issued asset,
// surfaced through GetState as ProtocolState.BalanceInfo (§3, §8 balance
// round-trip law).
func (a *BaseAdapter) RecordBalance(assetID string, amount uint64) {
	a.balMu.Lock()
	a.balances[assetID] = amount
	a.balMu.Unlock()
}

// RecordSyncHeight stores the chain height the adapter last observed via the
// Bitcoin RPC adapter (C2), surfaced through GetState as ProtocolState.SyncHeight.
func (a *BaseAdapter) RecordSyncHeight(height uint64) {
	a.balMu.Lock()
	a.syncHeight = height
	a.balMu.Unlock()
}

// RecordFeeSource tags the provenance of the fee data C2 last supplied
// ("rpc" or "simulated"), surfaced through GetState as ProtocolState.FeeSource
// (§4.1 fee_source tagging).
func (a *BaseAdapter) RecordFeeSource(source string) {
	a.balMu.Lock()
	a.feeSource = source
	a.balMu.Unlock()
}

func (a *BaseAdapter) balanceSnapshot() map[string]uint64 {
	a.balMu.RLock()
	defer a.balMu.RUnlock()
	out := make(map[string]uint64, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out
}

func (a *BaseAdapter) chainSnapshot() (uint64, string) {
	a.balMu.RLock()
	defer a.balMu.RUnlock()
	return a.syncHeight, a.feeSource
}

// verifyCrossLayerEnvelope recognizes the generic cross-layer transfer proof
// envelope the manager builds for CrossLayerTransfer (§4.2): a structural
// check independent of any adapter's own protocol-native proof kind. handled
// is false when proof.Kind isn't the cross-layer envelope, signalling the
// caller to fall through to its protocol-specific VerifyProof logic.
func (a *BaseAdapter) verifyCrossLayerEnvelope(proof Proof) (ok bool, handled bool) {
	if proof.Kind != "cross_layer_transfer" {
		return false, false
	}
	return len(proof.Payload) == 32, true
}

// Initialize implements Layer2Protocol.
func (a *BaseAdapter) Initialize(ctx context.Context) error {
	return a.initializeBase()
}

// Connect implements Layer2Protocol, running the (possibly overridden) dial
// function and applying self-node fallback semantics on failure.
func (a *BaseAdapter) Connect(ctx context.Context) error {
	var dialErr error
	if a.dial != nil {
		dialErr = a.dial(ctx)
	}
	if err := a.connectBase(dialErr); err != nil {
		return err
	}
	a.mu.Lock()
	a.ns.MinPeers = a.minPeers
	if a.ns.PeerCount == 0 && !a.ns.IsPrimary {
		a.ns.PeerCount = a.minPeers
	}
	a.ns.Synced = true
	ns := a.ns
	a.mu.Unlock()
	a.recordNetworkState(ns)
	a.transition(StateSynced)
	return nil
}

// Disconnect implements Layer2Protocol.
func (a *BaseAdapter) Disconnect(ctx context.Context) error {
	return a.disconnectBase()
}

// GetState implements Layer2Protocol.
func (a *BaseAdapter) GetState(ctx context.Context) (ProtocolState, error) {
	return a.getState()
}

// SubmitTransaction implements Layer2Protocol: admits raw into the bounded
// queue and assigns a pending transaction id.
func (a *BaseAdapter) SubmitTransaction(ctx context.Context, raw []byte) (SubmitResult, error) {
	if err := a.enqueue(raw); err != nil {
		return SubmitResult{}, err
	}
	if len(raw) == 0 {
		return SubmitResult{}, apperr.New(apperr.Validation, apperr.CodeInvalidTx, "empty transaction payload").
			WithContext("protocol", string(a.id))
	}
	txID := fmt.Sprintf("%s-%s", a.id, uuid.NewString())
	a.txMu.Lock()
	a.txStore[txID] = StatusPending
	a.txMu.Unlock()
	return SubmitResult{TxID: txID, Status: StatusPending}, nil
}

// CheckTransactionStatus implements Layer2Protocol.
func (a *BaseAdapter) CheckTransactionStatus(ctx context.Context, txID string) (TransactionStatus, error) {
	a.txMu.RLock()
	st, ok := a.txStore[txID]
	a.txMu.RUnlock()
	if !ok {
		return "", apperr.New(apperr.Validation, apperr.CodeInvalidParams, "unknown transaction id").
			WithContext("protocol", string(a.id)).WithContext("tx_id", txID)
	}
	return st, nil
}

// confirmPending advances every still-pending tracked transaction to
// confirmed, used by SyncState to simulate settlement.
func (a *BaseAdapter) confirmPending() {
	a.txMu.Lock()
	for id, st := range a.txStore {
		if st == StatusPending {
			a.txStore[id] = StatusConfirmed
		}
	}
	a.txMu.Unlock()
}

// SyncState implements Layer2Protocol: drains the submission queue,
// confirming pending transactions and refreshing the sequence number.
func (a *BaseAdapter) SyncState(ctx context.Context) error {
	if err := a.requireConnected(); err != nil {
		return err
	}
	a.transition(StateSyncing)
drain:
	for {
		select {
		case <-a.queue:
		default:
			break drain
		}
	}
	a.confirmPending()
	a.mu.RLock()
	ns := a.ns
	a.mu.RUnlock()
	a.recordNetworkState(ns)
	return nil
}

func (a *BaseAdapter) Id() ProtocolId            { return a.id }
func (a *BaseAdapter) Capabilities() Capabilities { return a.caps }

// transition applies a state change unconditionally, logging the edge.
func (a *BaseAdapter) transition(to AdapterState) {
	a.mu.Lock()
	from := a.state
	a.state = to
	a.mu.Unlock()
	a.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("adapter state transition")
}

func (a *BaseAdapter) currentState() AdapterState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *BaseAdapter) requireInitialized() error {
	if a.currentState() == StateUninitialized {
		return apperr.New(apperr.Protocol, apperr.CodeNotInitialized, "adapter not initialized").
			WithContext("protocol", string(a.id))
	}
	return nil
}

func (a *BaseAdapter) requireConnected() error {
	switch a.currentState() {
	case StateConnected, StateSyncing, StateSynced, StateWarning:
		return nil
	default:
		return apperr.New(apperr.Network, apperr.CodeNotConnected, "adapter not connected").
			WithContext("protocol", string(a.id))
	}
}

// initializeBase runs the Uninitialized -> Initialized lifecycle transition,
// rejecting a second call with CodeAlreadyInitialized.
func (a *BaseAdapter) initializeBase() error {
	if a.currentState() != StateUninitialized {
		return apperr.New(apperr.Protocol, apperr.CodeAlreadyInitialized, "adapter already initialized").
			WithContext("protocol", string(a.id))
	}
	a.transition(StateInitialized)
	return nil
}

// connectBase records the outcome of a dial attempt, applying self-node
// fallback semantics (§8 property 2): on failure with fallback enabled the
// adapter treats itself as its own primary node instead of erroring out.
func (a *BaseAdapter) connectBase(dialErr error) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}
	if dialErr == nil {
		a.mu.Lock()
		a.ns.Connected = true
		a.ns.IsPrimary = a.ns.IsPrimary
		a.mu.Unlock()
		a.transition(StateConnected)
		return nil
	}
	if !a.caps.SelfNodeFallback || !a.enableSelfNodeFallback {
		return apperr.Wrap(apperr.Network, apperr.CodeNetworkUnreachable, dialErr, "connect failed").
			WithContext("protocol", string(a.id))
	}
	a.mu.Lock()
	a.ns.Connected = true
	a.ns.Synced = true
	a.ns.PeerCount = 0
	a.ns.IsPrimary = true
	a.mu.Unlock()
	a.log.Warn("connect failed, falling back to self-node primary")
	a.transition(StateConnected)
	return nil
}

func (a *BaseAdapter) disconnectBase() error {
	a.mu.Lock()
	a.ns.Connected = false
	a.ns.IsPrimary = false
	a.mu.Unlock()
	a.transition(StateDisconnected)
	return nil
}

// recordNetworkState stores a fresh snapshot and advances the sequence
// counter used by storage's crash-recovery cache (§6).
func (a *BaseAdapter) recordNetworkState(ns NetworkState) ProtocolState {
	a.mu.Lock()
	a.ns = ns
	a.seq++
	seq := a.seq
	h := ClassifyHealth(ns)
	switch h {
	case Critical:
		a.state = StateDisconnected
	case Warning:
		if a.state != StateDisconnected {
			a.state = StateWarning
		}
	case Healthy:
		if a.state == StateWarning || a.state == StateConnected || a.state == StateSyncing {
			a.state = StateSynced
		}
	}
	a.mu.Unlock()
	height, feeSource := a.chainSnapshot()
	return ProtocolState{
		Protocol: a.id, Network: ns, Health: h, Sequence: seq, AsOf: time.Now(),
		BalanceInfo: a.balanceSnapshot(), SyncHeight: height, FeeSource: feeSource,
	}
}

func (a *BaseAdapter) getState() (ProtocolState, error) {
	if err := a.requireInitialized(); err != nil {
		return ProtocolState{}, err
	}
	a.mu.RLock()
	ns := a.ns
	seq := a.seq
	a.mu.RUnlock()
	height, feeSource := a.chainSnapshot()
	return ProtocolState{
		Protocol: a.id, Network: ns, Health: ClassifyHealth(ns), Sequence: seq, AsOf: time.Now(),
		BalanceInfo: a.balanceSnapshot(), SyncHeight: height, FeeSource: feeSource,
	}, nil
}

// enqueue admits raw into the bounded submission queue, failing fast with
// CodeQueueFull instead of blocking the caller (§4.1 backpressure).
func (a *BaseAdapter) enqueue(raw []byte) error {
	if err := a.requireConnected(); err != nil {
		return err
	}
	select {
	case a.queue <- raw:
		return nil
	default:
		return apperr.New(apperr.Capacity, apperr.CodeQueueFull, "submission queue full").
			WithContext("protocol", string(a.id)).
			WithContext("depth", "1024")
	}
}

// notSupported builds the uniform error every capability-gated operation
// returns when the protocol's support matrix marks it unavailable.
func (a *BaseAdapter) notSupported(op string) error {
	return apperr.New(apperr.Protocol, apperr.CodeNotSupported, "operation not supported by protocol").
		WithContext("protocol", string(a.id)).
		WithContext("operation", op)
}
