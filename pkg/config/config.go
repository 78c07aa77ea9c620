// Package config provides a reusable loader for Anya-core configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/anya-org/anya-core/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// StorageBackend enumerates the recognized storage_backend values (§4.6).
type StorageBackend string

const (
	StorageAuto       StorageBackend = "auto"
	StorageDWN        StorageBackend = "dwn"
	StoragePersistent StorageBackend = "persistent"
	StorageMemory     StorageBackend = "memory"
)

// BitcoinNetwork enumerates bitcoin.network values.
type BitcoinNetwork string

const (
	NetMainnet BitcoinNetwork = "mainnet"
	NetTestnet BitcoinNetwork = "testnet"
	NetSignet  BitcoinNetwork = "signet"
	NetRegtest BitcoinNetwork = "regtest"
)

// HsmProviderKind enumerates hsm.provider values.
type HsmProviderKind string

const (
	HsmSoftware  HsmProviderKind = "software"
	HsmHardware  HsmProviderKind = "hardware"
	HsmSimulator HsmProviderKind = "simulator"
	HsmBitcoin   HsmProviderKind = "bitcoin"
)

// Config is the unified configuration for an Anya-core process. Field names
// mirror the option table in spec.md §6.
type Config struct {
	PreferSelfAsMaster       bool           `mapstructure:"prefer_self_as_master"`
	EnableSelfNodeFallback   bool           `mapstructure:"enable_self_node_fallback"`
	EnableRealNetworking     bool           `mapstructure:"enable_real_networking"`
	MinPeers                 uint32         `mapstructure:"min_peers"`
	StorageBackend           StorageBackend `mapstructure:"storage_backend"`
	IPFSEndpoint             string         `mapstructure:"ipfs_endpoint"`

	Bitcoin struct {
		RPCURL  string         `mapstructure:"rpc_url"`
		RPCUser string         `mapstructure:"rpc_user"`
		RPCPass string         `mapstructure:"rpc_pass"`
		Network BitcoinNetwork `mapstructure:"network"`
	} `mapstructure:"bitcoin"`

	// Peers maps a protocol id (e.g. "lightning", "rsk") to a bootstrap
	// "host:port" address to dial on Connect. A protocol with no entry here
	// dials nothing and its connect attempt fails outright (as every attempt
	// does while enable_real_networking is off), surfacing self-node
	// fallback the same way a real unreachable peer would (§4.1, §8 property 2).
	Peers map[string]string `mapstructure:"peers"`

	HSM struct {
		Provider             HsmProviderKind `mapstructure:"provider"`
		SessionTimeoutSecond uint32          `mapstructure:"session_timeout_seconds"`
		MaxSessions          uint32          `mapstructure:"max_sessions"`
	} `mapstructure:"hsm"`
}

// Defaults returns a Config populated with the defaults from spec.md §6.
func Defaults() Config {
	var c Config
	c.PreferSelfAsMaster = true
	c.EnableSelfNodeFallback = true
	c.EnableRealNetworking = true
	c.MinPeers = 2
	c.StorageBackend = StorageAuto
	c.IPFSEndpoint = "http://127.0.0.1:5001"
	c.Bitcoin.Network = NetRegtest
	c.Peers = map[string]string{}
	c.HSM.Provider = HsmSoftware
	c.HSM.SessionTimeoutSecond = 300
	c.HSM.MaxSessions = 10
	return c
}

// Load reads a TOML configuration file (if present) and merges ANYA_-prefixed
// environment variable overrides on top, per §6's precedence rule: env
// overrides TOML, TOML overrides default. configPath may be empty, in which
// case only defaults + environment are applied.
func Load(configPath string) (*Config, error) {
	// Best-effort .env loading, same precedence role godotenv plays ahead of
	// viper.AutomaticEnv in the teacher's config wiring.
	_ = godotenv.Load()

	cfg := Defaults()

	v := viper.New()
	v.SetConfigType("toml")
	setViperDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, utils.Wrap(err, "load config "+configPath)
		}
	}

	v.SetEnvPrefix("ANYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the ANYA_CONFIG_PATH environment
// variable to locate an optional TOML file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("ANYA_CONFIG_PATH", ""))
}

func setViperDefaults(v *viper.Viper, c Config) {
	v.SetDefault("prefer_self_as_master", c.PreferSelfAsMaster)
	v.SetDefault("enable_self_node_fallback", c.EnableSelfNodeFallback)
	v.SetDefault("enable_real_networking", c.EnableRealNetworking)
	v.SetDefault("min_peers", c.MinPeers)
	v.SetDefault("storage_backend", string(c.StorageBackend))
	v.SetDefault("ipfs_endpoint", c.IPFSEndpoint)
	v.SetDefault("bitcoin.network", string(c.Bitcoin.Network))
	v.SetDefault("hsm.provider", string(c.HSM.Provider))
	v.SetDefault("hsm.session_timeout_seconds", c.HSM.SessionTimeoutSecond)
	v.SetDefault("hsm.max_sessions", c.HSM.MaxSessions)
}

// bindEnv registers the explicit ANYA_ env var names named in §6 so viper
// picks them up even though AutomaticEnv alone only matches keys it has
// already seen via a config file or default.
func bindEnv(v *viper.Viper) {
	pairs := [][2]string{
		{"prefer_self_as_master", "ANYA_PREFER_SELF_AS_MASTER"},
		{"enable_self_node_fallback", "ANYA_ENABLE_SELF_NODE_FALLBACK"},
		{"enable_real_networking", "ANYA_ENABLE_REAL_NETWORKING"},
		{"min_peers", "ANYA_MIN_PEERS"},
		{"storage_backend", "ANYA_STORAGE_BACKEND"},
		{"ipfs_endpoint", "ANYA_IPFS_ENDPOINT"},
		{"bitcoin.rpc_url", "ANYA_BITCOIN_RPC_URL"},
		{"bitcoin.rpc_user", "ANYA_BITCOIN_RPC_USER"},
		{"bitcoin.rpc_pass", "ANYA_BITCOIN_RPC_PASS"},
		{"bitcoin.network", "ANYA_BITCOIN_NETWORK"},
		{"hsm.provider", "ANYA_HSM_PROVIDER"},
		{"hsm.session_timeout_seconds", "ANYA_HSM_SESSION_TIMEOUT_SECONDS"},
		{"hsm.max_sessions", "ANYA_HSM_MAX_SESSIONS"},
	}
	for _, p := range pairs {
		_ = v.BindEnv(p[0], p[1])
	}
}
