package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anya-org/anya-core/audit"
	"github.com/anya-org/anya-core/pkg/apperr"
)

// Layer2Manager is the adapter registry and cross-protocol transfer
// orchestrator (§4.2). Its registry is a mutex-guarded map, the same
// "at most one entry per key" idiom the teacher codebase uses for its
// address/role cache, generalized here to ProtocolId keys.
type Layer2Manager struct {
	mu       sync.RWMutex
	adapters map[ProtocolId]Layer2Protocol

	commitMu    sync.Mutex
	commitments map[string]TransferProof

	log *zap.SugaredLogger
}

// NewLayer2Manager constructs an empty manager. Cross-transfer and
// initialization logging uses zap, mirroring the teacher's bridge-code
// logging choice, distinct from the logrus used by adapters/HSM/audit.
func NewLayer2Manager(log *zap.SugaredLogger) *Layer2Manager {
	if log == nil {
		l, _ := zap.NewProduction()
		log = l.Sugar()
	}
	return &Layer2Manager{
		adapters:    make(map[ProtocolId]Layer2Protocol),
		commitments: make(map[string]TransferProof),
		log:         log,
	}
}

// Register adds a protocol adapter to the registry. Registering the same
// ProtocolId twice is rejected with CodeAlreadyRegistered.
func (m *Layer2Manager) Register(p Layer2Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.adapters[p.Id()]; exists {
		return apperr.New(apperr.Protocol, apperr.CodeAlreadyRegistered, "protocol already registered").
			WithContext("protocol", string(p.Id()))
	}
	m.adapters[p.Id()] = p
	return nil
}

// Get returns the adapter registered for id.
func (m *Layer2Manager) Get(id ProtocolId) (Layer2Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.adapters[id]
	if !ok {
		return nil, apperr.New(apperr.Protocol, apperr.CodeNotInitialized, "protocol not registered").
			WithContext("protocol", string(id))
	}
	return p, nil
}

// Registered returns the ids of every registered adapter.
func (m *Layer2Manager) Registered() []ProtocolId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]ProtocolId, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	return ids
}

// InitializeAll initializes and connects every registered adapter
// concurrently, returning the first error encountered (if any), following
// the teacher's errgroup-based fan-out idiom for independent startup work.
func (m *Layer2Manager) InitializeAll(ctx context.Context) error {
	m.mu.RLock()
	adapters := make([]Layer2Protocol, 0, len(m.adapters))
	for _, p := range m.adapters {
		adapters = append(adapters, p)
	}
	m.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range adapters {
		p := p
		g.Go(func() error {
			if err := p.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize %s: %w", p.Id(), err)
			}
			if err := p.Connect(ctx); err != nil {
				return fmt.Errorf("connect %s: %w", p.Id(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// transferKey derives the manager's internal idempotency key for a
// (source, destination, asset, amount) tuple, computed before the lock
// phase so retries of the same public cross_layer_transfer call (which
// carries no caller-supplied token) are naturally deduplicated.
func transferKey(sourceID, destID ProtocolId, assetID string, amount uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", sourceID, destID, assetID, amount)))
	return hex.EncodeToString(sum[:])
}

// CrossLayerTransfer moves amount of assetID from sourceID to destID using a
// two-phase lock-verify-credit protocol (§4.2):
//
//  1. Lock phase: submit the debit on the source protocol with a sentinel
//     cross-layer-egress recipient, producing a 32-byte source commitment.
//  2. Verify phase: the destination's VerifyProof is called with a
//     cross_layer_transfer Proof carrying the source commitment. Credit
//     never runs if this returns false.
//  3. Credit phase: submit the equivalent credit on the destination
//     protocol with a sentinel cross-layer-credit recipient, producing a
//     32-byte destination commitment.
//
// If verification or the credit phase fails, the manager attempts to
// compensate by reversing the source-side lock. If that reversal also
// fails, the transfer is left in PendingReconciliation rather than
// silently losing or duplicating funds — matching the teacher's
// LockAndMint/BurnAndRelease rollback-on-second-failure behavior. Every
// rollback outcome is recorded to the audit log (§4.7).
//
// Retries of the same (sourceID, destID, assetID, amount) tuple are
// idempotent (§8 property 3/4): a prior successful TransferProof is
// returned without re-executing any phase.
func (m *Layer2Manager) CrossLayerTransfer(ctx context.Context, assetID string, amount uint64, sourceID, destID ProtocolId) (TransferProof, error) {
	key := transferKey(sourceID, destID, assetID, amount)

	m.commitMu.Lock()
	if existing, ok := m.commitments[key]; ok {
		m.commitMu.Unlock()
		return existing, nil
	}
	m.commitMu.Unlock()

	source, err := m.Get(sourceID)
	if err != nil {
		return TransferProof{}, err
	}
	dest, err := m.Get(destID)
	if err != nil {
		return TransferProof{}, err
	}

	lock := AssetTransfer{Asset: assetID, Amount: amount, Recipient: "cross-layer-egress", Memo: "lock-for:" + string(destID)}
	lockResult, err := source.TransferAsset(ctx, lock)
	if err != nil {
		return TransferProof{}, apperr.Wrap(apperr.Protocol, apperr.CodeInvalidTx, err, "source lock failed").
			WithContext("source", string(sourceID))
	}
	sourceCommitment := sha256.Sum256([]byte(lockResult.TxID))
	egressProof := Proof{Protocol: sourceID, Kind: "cross_layer_transfer", Payload: sourceCommitment[:]}

	valid, err := dest.VerifyProof(ctx, egressProof)
	if err != nil {
		return TransferProof{}, m.abortTransfer(ctx, source, sourceID, destID, assetID, amount, lockResult.TxID, err)
	}
	if !valid {
		verifyErr := apperr.New(apperr.Protocol, apperr.CodeMalformedProof, "destination rejected cross-layer transfer proof").
			WithContext("source", string(sourceID)).WithContext("dest", string(destID))
		return TransferProof{}, m.abortTransfer(ctx, source, sourceID, destID, assetID, amount, lockResult.TxID, verifyErr)
	}

	credit := AssetTransfer{Asset: assetID, Amount: amount, Recipient: "cross-layer-credit", Memo: "credit-from:" + string(sourceID)}
	creditResult, err := dest.TransferAsset(ctx, credit)
	if err != nil {
		return TransferProof{}, m.abortTransfer(ctx, source, sourceID, destID, assetID, amount, lockResult.TxID, err)
	}
	destCommitment := sha256.Sum256([]byte(creditResult.TxID))

	proof := TransferProof{
		SourceProtocol:        sourceID,
		DestProtocol:          destID,
		AssetID:               assetID,
		Amount:                amount,
		SourceCommitment:      sourceCommitment[:],
		DestinationCommitment: destCommitment[:],
		Proof: Proof{
			Protocol: destID,
			Kind:     "cross_layer_transfer",
			Payload:  destCommitment[:],
		},
	}

	m.commitMu.Lock()
	m.commitments[key] = proof
	m.commitMu.Unlock()

	return proof, nil
}

// abortTransfer reverses the source-side lock after the destination
// rejects or fails a cross-layer transfer, returning PendingReconciliation
// when the reversal itself fails. Both outcomes are recorded to the audit
// log (§4.7); the PendingReconciliation case never auto-heals (§8).
func (m *Layer2Manager) abortTransfer(ctx context.Context, source Layer2Protocol, sourceID, destID ProtocolId, assetID string, amount uint64, lockTxID string, cause error) error {
	m.log.Warnw("destination rejected cross-layer transfer, attempting source rollback",
		"source", sourceID, "dest", destID, "asset", assetID, "error", cause)
	reverse := AssetTransfer{Asset: assetID, Amount: amount, Recipient: "cross-layer-rollback", Memo: "rollback:" + lockTxID}
	if _, rbErr := source.TransferAsset(ctx, reverse); rbErr != nil {
		m.log.Errorw("source rollback failed, transfer left pending reconciliation",
			"source", sourceID, "dest", destID, "asset", assetID, "rollback_error", rbErr)
		audit.Default().Log(ctx, "cross_layer_transfer_pending_reconciliation",
			fmt.Sprintf("destination rejection and source rollback both failed for %s -> %s", sourceID, destID),
			map[string]string{"source": string(sourceID), "dest": string(destID), "asset": assetID})
		return apperr.New(apperr.Consistency, apperr.CodePendingReconciliation,
			"destination rejection and source rollback both failed").
			WithContext("source", string(sourceID)).
			WithContext("dest", string(destID)).
			WithContext("asset", assetID)
	}
	audit.Default().Log(ctx, "cross_layer_transfer_rolled_back",
		fmt.Sprintf("rolled back source lock for %s -> %s after destination rejection", sourceID, destID),
		map[string]string{"source": string(sourceID), "dest": string(destID), "asset": assetID})
	return apperr.Wrap(apperr.Protocol, apperr.CodeInvalidTx, cause, "destination rejected transfer, source rolled back").
		WithContext("source", string(sourceID)).WithContext("dest", string(destID))
}

// VerifyCrossLayerProof re-checks a TransferProof against the manager's own
// commitment ledger, keyed the same way CrossLayerTransfer derives its
// idempotency key. This is the external re-verification path (§8 property
// 3); the destination's own VerifyProof is the gate CrossLayerTransfer
// itself consults before crediting.
func (m *Layer2Manager) VerifyCrossLayerProof(ctx context.Context, proof TransferProof) (bool, error) {
	if _, err := m.Get(proof.DestProtocol); err != nil {
		return false, err
	}
	key := transferKey(proof.SourceProtocol, proof.DestProtocol, proof.AssetID, proof.Amount)
	m.commitMu.Lock()
	stored, ok := m.commitments[key]
	m.commitMu.Unlock()
	if !ok {
		return false, nil
	}
	return stored.DestProtocol == proof.DestProtocol &&
		stored.SourceProtocol == proof.SourceProtocol &&
		bytesEqual(stored.SourceCommitment, proof.SourceCommitment) &&
		bytesEqual(stored.DestinationCommitment, proof.DestinationCommitment), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
