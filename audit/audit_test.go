package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemorySinkLogAndArchive(t *testing.T) {
	s := NewMemorySink(nil)
	ctx := context.Background()
	s.Log(ctx, "hsm_provider_fallback", "probe failed", map[string]string{"kind": "hardware"})
	s.Log(ctx, "cross_layer_rollback", "destination credit failed", map[string]string{"commitment": "c-1"})

	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Fatalf("expected strictly increasing sequence numbers, got %d,%d", events[0].Sequence, events[1].Sequence)
	}

	manifest, err := s.Archive()
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(manifest) != 64 {
		t.Fatalf("expected 64-char hex sha256 manifest, got %q", manifest)
	}
}

func TestFileSinkPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	s1, err := NewFileSink(path, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	s1.Log(context.Background(), "storage_backend_selected", "auto-selected persistent backend", nil)
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewFileSink(path, nil)
	if err != nil {
		t.Fatalf("reopen NewFileSink: %v", err)
	}
	defer s2.Close()
	events := s2.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
	if events[0].Kind != "storage_backend_selected" {
		t.Fatalf("unexpected event kind %q", events[0].Kind)
	}
}
