package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/anya-org/anya-core/core"
	"github.com/anya-org/anya-core/pkg/apperr"
)

// RecoveryCache persists the most recent ProtocolState per adapter so a
// restarted process can recover its last known network view instead of
// starting cold (§6). Entries are only overwritten by a state carrying a
// strictly greater Sequence number, so a reordered or duplicate write from
// a racing goroutine can never regress the recovered state.
type RecoveryCache struct {
	mu      sync.RWMutex
	backend Backend
	states  map[core.ProtocolId]core.ProtocolState
}

func NewRecoveryCache(backend Backend) *RecoveryCache {
	return &RecoveryCache{backend: backend, states: make(map[core.ProtocolId]core.ProtocolState)}
}

// Record stores st if it is newer than anything already held for its
// protocol.
func (r *RecoveryCache) Record(st core.ProtocolState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.states[st.Protocol]
	if ok && prev.Sequence >= st.Sequence {
		return
	}
	r.states[st.Protocol] = st
}

// Last returns the most recently recorded state for id, if any.
func (r *RecoveryCache) Last(id core.ProtocolId) (core.ProtocolState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[id]
	return st, ok
}

// Snapshot persists every held state to the backend as a single blob,
// returning the content id it was pinned under.
func (r *RecoveryCache) Snapshot(ctx context.Context) (string, error) {
	r.mu.RLock()
	raw, err := json.Marshal(r.states)
	r.mu.RUnlock()
	if err != nil {
		return "", apperr.Wrap(apperr.Consistency, apperr.CodeInconsistent, err, "marshal recovery snapshot")
	}
	return r.backend.Pin(ctx, raw)
}

// Restore loads a previously snapshotted blob back into memory, replacing
// any in-memory state whose sequence number the restored entry exceeds.
func (r *RecoveryCache) Restore(ctx context.Context, cidStr string) error {
	raw, err := r.backend.Retrieve(ctx, cidStr)
	if err != nil {
		return err
	}
	var restored map[core.ProtocolId]core.ProtocolState
	if err := json.Unmarshal(raw, &restored); err != nil {
		return apperr.Wrap(apperr.Consistency, apperr.CodeInconsistent, err, "unmarshal recovery snapshot")
	}
	for _, st := range restored {
		r.Record(st)
	}
	return nil
}
