package storage

import (
	"context"
	"testing"

	"github.com/anya-org/anya-core/core"
)

func TestRecoveryCacheIgnoresStaleSequence(t *testing.T) {
	rc := NewRecoveryCache(NewMemoryBackend())
	rc.Record(core.ProtocolState{Protocol: core.Lightning, Sequence: 5})
	rc.Record(core.ProtocolState{Protocol: core.Lightning, Sequence: 3})

	st, ok := rc.Last(core.Lightning)
	if !ok {
		t.Fatalf("expected recorded state")
	}
	if st.Sequence != 5 {
		t.Fatalf("expected newest sequence 5 to win, got %d", st.Sequence)
	}
}

func TestRecoveryCacheSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	rc := NewRecoveryCache(NewMemoryBackend())
	rc.Record(core.ProtocolState{Protocol: core.Rgb, Sequence: 1})

	id, err := rc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	rc2 := NewRecoveryCache(rc.backend)
	if err := rc2.Restore(ctx, id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	st, ok := rc2.Last(core.Rgb)
	if !ok || st.Sequence != 1 {
		t.Fatalf("expected restored state with sequence 1, got %+v ok=%v", st, ok)
	}
}
