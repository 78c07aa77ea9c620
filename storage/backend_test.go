package storage

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/anya-org/anya-core/pkg/config"
)

func TestMemoryBackendPinRetrieve(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	id, err := b.Pin(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	data, err := b.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestPersistentBackendPinRetrieve(t *testing.T) {
	b := NewPersistentBackend(t.TempDir())
	ctx := context.Background()
	id, err := b.Pin(ctx, []byte("disk payload"))
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	data, err := b.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(data) != "disk payload" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestAutoSelectPrefersMemoryWithoutEndpointOrDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.IPFSEndpoint = ""
	backend := AutoSelect(cfg, "")
	if backend.Kind() != config.StorageMemory {
		t.Fatalf("expected memory backend, got %s", backend.Kind())
	}
}

func TestAutoSelectPrefersPersistentWhenDirWritable(t *testing.T) {
	cfg := config.Defaults()
	cfg.IPFSEndpoint = ""
	backend := AutoSelect(cfg, t.TempDir())
	if backend.Kind() != config.StoragePersistent {
		t.Fatalf("expected persistent backend, got %s", backend.Kind())
	}
}

func TestAutoSelectRecordsSelectionMetric(t *testing.T) {
	before := testutil.ToFloat64(backendSelectionMetric.WithLabelValues(string(config.StorageMemory)))
	cfg := config.Defaults()
	cfg.IPFSEndpoint = ""
	AutoSelect(cfg, "")
	after := testutil.ToFloat64(backendSelectionMetric.WithLabelValues(string(config.StorageMemory)))
	if after != before+1 {
		t.Fatalf("expected memory selection counter to increment by 1, went %v -> %v", before, after)
	}
}
