package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/anya-org/anya-core/audit"
	"github.com/anya-org/anya-core/pkg/apperr"
	"github.com/anya-org/anya-core/pkg/config"
)

// Backend is the storage collaborator interface every storage_backend
// variant implements: content-addressed blob storage with CID computation
// (§4.6).
type Backend interface {
	Kind() config.StorageBackend
	Pin(ctx context.Context, data []byte) (string, error)
	Retrieve(ctx context.Context, cidStr string) ([]byte, error)
}

// computeCID hashes data with sha2-256 and wraps it as a CIDv1 raw-codec
// content identifier, the same scheme the teacher's storage.go used ahead
// of pinning to its IPFS gateway.
func computeCID(data []byte) (cid.Cid, error) {
	mhash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, apperr.Wrap(apperr.Consistency, apperr.CodeInconsistent, err, "compute multihash")
	}
	return cid.NewCidV1(cid.Raw, mhash), nil
}

// DWNBackend pins blobs to a DWN/IPFS-style HTTP gateway and keeps a local
// disk cache so repeated Retrieve calls for recently pinned data avoid a
// network round trip, adapted from the teacher's disk-LRU + gateway-Pin
// pattern in storage.go.
type DWNBackend struct {
	endpoint string
	client   *http.Client
	cacheDir string
	mu       sync.Mutex
}

func NewDWNBackend(endpoint, cacheDir string) *DWNBackend {
	return &DWNBackend{endpoint: endpoint, client: &http.Client{}, cacheDir: cacheDir}
}

func (b *DWNBackend) Kind() config.StorageBackend { return config.StorageDWN }

func (b *DWNBackend) diskPath(id string) string {
	return filepath.Join(b.cacheDir, id)
}

func (b *DWNBackend) Pin(ctx context.Context, data []byte) (string, error) {
	c, err := computeCID(data)
	if err != nil {
		return "", err
	}
	id := c.String()

	if b.cacheDir != "" {
		b.mu.Lock()
		_ = os.MkdirAll(b.cacheDir, 0o700)
		_ = os.WriteFile(b.diskPath(id), data, 0o600)
		b.mu.Unlock()
	}

	if b.endpoint == "" {
		return id, nil
	}
	url := fmt.Sprintf("%s/api/v0/add?pin=true", b.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", apperr.Wrap(apperr.Network, apperr.CodeNetworkError, err, "build pin request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.Network, apperr.CodeNetworkUnreachable, err, "pin to gateway").
			WithContext("endpoint", b.endpoint)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", apperr.New(apperr.Network, apperr.CodeNetworkError, "gateway rejected pin").
			WithContext("status", resp.Status)
	}
	return id, nil
}

func (b *DWNBackend) Retrieve(ctx context.Context, cidStr string) ([]byte, error) {
	if b.cacheDir != "" {
		b.mu.Lock()
		data, err := os.ReadFile(b.diskPath(cidStr))
		b.mu.Unlock()
		if err == nil {
			return data, nil
		}
	}
	if b.endpoint == "" {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidParams, "not found in local cache and no gateway configured").
			WithContext("cid", cidStr)
	}
	url := fmt.Sprintf("%s/api/v0/cat?arg=%s", b.endpoint, cidStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Network, apperr.CodeNetworkError, err, "build retrieve request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Network, apperr.CodeNetworkUnreachable, err, "retrieve from gateway")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.Network, apperr.CodeNetworkError, "gateway rejected retrieve").
			WithContext("status", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// PersistentBackend stores blobs directly on local disk, content-addressed
// by the same CID scheme, with no network dependency.
type PersistentBackend struct {
	dir string
	mu  sync.Mutex
}

func NewPersistentBackend(dir string) *PersistentBackend {
	return &PersistentBackend{dir: dir}
}

func (b *PersistentBackend) Kind() config.StorageBackend { return config.StoragePersistent }

func (b *PersistentBackend) Pin(ctx context.Context, data []byte) (string, error) {
	c, err := computeCID(data)
	if err != nil {
		return "", err
	}
	id := c.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return "", apperr.Wrap(apperr.Config, apperr.CodeConfigInvalid, err, "create persistent storage dir")
	}
	if err := os.WriteFile(filepath.Join(b.dir, id), data, 0o600); err != nil {
		return "", apperr.Wrap(apperr.Consistency, apperr.CodeInconsistent, err, "write persistent blob")
	}
	return id, nil
}

func (b *PersistentBackend) Retrieve(ctx context.Context, cidStr string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(b.dir, cidStr))
	if err != nil {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidParams, "blob not found").WithContext("cid", cidStr)
	}
	return data, nil
}

// MemoryBackend keeps blobs only in process memory; used for
// storage_backend=memory and in tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

func (b *MemoryBackend) Kind() config.StorageBackend { return config.StorageMemory }

func (b *MemoryBackend) Pin(ctx context.Context, data []byte) (string, error) {
	c, err := computeCID(data)
	if err != nil {
		return "", err
	}
	id := c.String()
	b.mu.Lock()
	b.blobs[id] = append([]byte(nil), data...)
	b.mu.Unlock()
	return id, nil
}

func (b *MemoryBackend) Retrieve(ctx context.Context, cidStr string) ([]byte, error) {
	b.mu.RLock()
	data, ok := b.blobs[cidStr]
	b.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidParams, "blob not found").WithContext("cid", cidStr)
	}
	return data, nil
}

// backendSelectionMetric counts AutoSelect's resolved Backend.Kind() so an
// operator can see which storage tier a fleet actually landed on, not just
// which storage_backend value was configured (§4.6).
var backendSelectionMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "anya_storage_backend_selected_total", Help: "AutoSelect outcomes by resolved backend kind."},
	[]string{"kind"},
)

// RegisterBackendMetrics registers AutoSelect's selection counter under reg.
// Safe to call once at process startup; a nil registry is a no-op (tests
// that don't care about exposition can skip it).
func RegisterBackendMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(backendSelectionMetric)
}

// AutoSelect implements the storage_backend=auto resolution rule (§4.6):
// prefer dwn whenever an IPFS endpoint is configured (the endpoint is not
// probed for reachability), else persistent when dataDir is writable, else
// memory. The chosen backend is
// recorded to the process audit log and to backendSelectionMetric so an
// auto resolution is observable the same way an explicit choice would be.
func AutoSelect(cfg config.Config, dataDir string) Backend {
	b := resolveBackend(cfg, dataDir)
	backendSelectionMetric.WithLabelValues(string(b.Kind())).Inc()
	audit.Default().Log(context.Background(), "storage_backend_selected",
		fmt.Sprintf("storage backend resolved to %s", b.Kind()),
		map[string]string{"kind": string(b.Kind()), "configured": string(cfg.StorageBackend)})
	return b
}

func resolveBackend(cfg config.Config, dataDir string) Backend {
	switch cfg.StorageBackend {
	case config.StorageDWN:
		return NewDWNBackend(cfg.IPFSEndpoint, filepath.Join(dataDir, "dwn-cache"))
	case config.StoragePersistent:
		return NewPersistentBackend(dataDir)
	case config.StorageMemory:
		return NewMemoryBackend()
	default: // StorageAuto
		if cfg.IPFSEndpoint != "" {
			return NewDWNBackend(cfg.IPFSEndpoint, filepath.Join(dataDir, "dwn-cache"))
		}
		if dataDir != "" && dirWritable(dataDir) {
			return NewPersistentBackend(dataDir)
		}
		return NewMemoryBackend()
	}
}

func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, []byte("x"), 0o600); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}
