package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anya-org/anya-core/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range envKeys {
		os.Unsetenv(key)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.PreferSelfAsMaster {
		t.Fatalf("expected prefer_self_as_master default true")
	}
	if cfg.MinPeers != 2 {
		t.Fatalf("expected min_peers default 2, got %d", cfg.MinPeers)
	}
	if cfg.StorageBackend != StorageAuto {
		t.Fatalf("expected storage_backend default auto, got %s", cfg.StorageBackend)
	}
	if cfg.HSM.SessionTimeoutSecond != 300 {
		t.Fatalf("expected session timeout default 300, got %d", cfg.HSM.SessionTimeoutSecond)
	}
}

func TestLoadTOMLOverride(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	path := sb.Path("anya.toml")
	toml := "min_peers = 5\nstorage_backend = \"persistent\"\n"
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinPeers != 5 {
		t.Fatalf("expected TOML override min_peers=5, got %d", cfg.MinPeers)
	}
	if cfg.StorageBackend != StoragePersistent {
		t.Fatalf("expected TOML override storage_backend=persistent, got %s", cfg.StorageBackend)
	}
}

// envKeys are the ANYA_ variables TestLoadDefaults clears so it observes the
// defaults; TestEnvOverridesTOML checks env > TOML > default (§8
// "Configuration precedence").
var envKeys = []string{
	"ANYA_MIN_PEERS",
	"ANYA_STORAGE_BACKEND",
	"ANYA_PREFER_SELF_AS_MASTER",
}

func TestEnvOverridesTOML(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	path := sb.Path("anya.toml")
	toml := "min_peers = 5\n"
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	os.Setenv("ANYA_MIN_PEERS", "9")
	defer os.Unsetenv("ANYA_MIN_PEERS")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinPeers != 9 {
		t.Fatalf("expected env override min_peers=9, got %d", cfg.MinPeers)
	}
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	cfg, err := Load(filepath.Join(os.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatalf("expected error for unreadable explicit config path, got cfg=%+v", cfg)
	}
}
