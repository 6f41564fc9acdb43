// Package config enables config file parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/yearn/stack-router/common"
	"github.com/yearn/stack-router/log"
)

// DefaultRouterName is the router's name unless configured otherwise.
const DefaultRouterName = "YearnV3 Router 0.0.1"

// Config contains the CLI configuration.
type Config struct {
	Router  *RouterConfig  `koanf:"router"`
	Server  *ServerConfig  `koanf:"server"`
	Log     *LogConfig     `koanf:"log"`
	Metrics *MetricsConfig `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Router != nil {
		if err := cfg.Router.Validate(); err != nil {
			return fmt.Errorf("router: %w", err)
		}
	}
	if cfg.Server != nil {
		if cfg.Router == nil {
			return fmt.Errorf("server: no router config provided")
		}
		if err := cfg.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// RouterConfig is the configuration of the router itself.
type RouterConfig struct {
	// Name is the router's human-readable name.
	Name string `koanf:"name"`

	// Governance is the initial governance, used only when the store does
	// not hold one yet.
	Governance string `koanf:"governance"`

	Vaults VaultsConfig `koanf:"vaults"`

	Storage *StorageConfig `koanf:"storage"`
}

// Validate validates the router configuration.
func (cfg *RouterConfig) Validate() error {
	if cfg.Name == "" {
		cfg.Name = DefaultRouterName
	}
	gov, err := common.ParseEthAddress(cfg.Governance)
	if err != nil {
		return fmt.Errorf("governance: %w", err)
	}
	if gov == common.ZeroAddress {
		return fmt.Errorf("governance must not be the zero address")
	}
	if err = cfg.Vaults.Validate(); err != nil {
		return fmt.Errorf("vaults: %w", err)
	}
	if cfg.Storage == nil {
		return fmt.Errorf("no storage config provided")
	}
	return cfg.Storage.Validate()
}

// GovernanceAddress returns the parsed initial governance. Only valid after
// Validate succeeded.
func (cfg *RouterConfig) GovernanceAddress() ethCommon.Address {
	addr, _ := common.ParseEthAddress(cfg.Governance)
	return addr
}

// VaultsConfig selects where strategy activeness comes from: the vault
// contracts over JSON-RPC, or a static list.
type VaultsConfig struct {
	// RPC is an Ethereum JSON-RPC endpoint.
	RPC string `koanf:"rpc"`

	// Static maps each vault to its active strategies.
	Static map[string][]string `koanf:"static"`
}

// Validate validates the vaults configuration.
func (cfg *VaultsConfig) Validate() error {
	switch {
	case cfg.RPC == "" && cfg.Static == nil:
		return fmt.Errorf("not configured, specify either rpc or static")
	case cfg.RPC != "" && cfg.Static != nil:
		return fmt.Errorf("rpc and static specified, can only use one")
	}
	for vault, strategies := range cfg.Static {
		if _, err := common.ParseEthAddress(vault); err != nil {
			return fmt.Errorf("static: %w", err)
		}
		if _, err := common.ParseEthAddresses(strategies); err != nil {
			return fmt.Errorf("static[%s]: %w", vault, err)
		}
	}
	return nil
}

// ServerConfig contains the API server configuration.
type ServerConfig struct {
	// Endpoint is the service endpoint from which to serve the API.
	Endpoint string `koanf:"endpoint"`

	// RequestTimeout bounds the handling of a single request.
	RequestTimeout *time.Duration `koanf:"request_timeout"`

	// CORSAllowedOrigins lists the origins browsers may call the API from.
	// Empty means any origin.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// Validate validates the server configuration.
func (cfg *ServerConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed server endpoint '%s'", cfg.Endpoint)
	}
	if cfg.RequestTimeout != nil && *cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", *cfg.RequestTimeout)
	}
	return nil
}

// StorageBackend is a storage backend.
type StorageBackend uint

const (
	// BackendInMemory keeps state in process memory only.
	BackendInMemory StorageBackend = iota
	// BackendPostgres is the PostgreSQL storage backend.
	BackendPostgres
	// BackendFile is the embedded pogreb storage backend.
	BackendFile
)

var storageBackendNames = map[StorageBackend]string{
	BackendInMemory: "inmemory",
	BackendPostgres: "postgres",
	BackendFile:     "file",
}

// String returns the string representation of a StorageBackend.
func (sb *StorageBackend) String() string {
	name, ok := storageBackendNames[*sb]
	if !ok {
		panic("config: unsupported storage backend")
	}
	return name
}

// Set sets the StorageBackend to the value specified by the provided string.
func (sb *StorageBackend) Set(s string) error {
	for backend, name := range storageBackendNames {
		if strings.EqualFold(s, name) {
			*sb = backend
			return nil
		}
	}
	return fmt.Errorf("config: invalid storage backend: '%s'", s)
}

// Type returns the list of supported StorageBackends.
func (sb *StorageBackend) Type() string {
	return "[inmemory,postgres,file]"
}

// StorageConfig contains the storage layer configuration.
type StorageConfig struct {
	// Endpoint is the PostgreSQL connection string, or the directory of the
	// file backend.
	Endpoint string `koanf:"endpoint"`

	// Backend is the storage backend to select.
	Backend string `koanf:"backend"`

	// Migrations is a golang-migrate source URL. If empty, the migrations
	// compiled into the binary are used.
	Migrations string `koanf:"migrations"`

	// If true, we'll first delete all state in the store. Governance then
	// reverts to the configured one and all stacks are emptied.
	WipeStorage bool `koanf:"DANGER__WIPE_STORAGE_ON_STARTUP"`
}

// Validate validates the storage configuration.
func (cfg *StorageConfig) Validate() error {
	var sb StorageBackend
	if err := sb.Set(cfg.Backend); err != nil {
		return err
	}
	if sb != BackendInMemory && cfg.Endpoint == "" {
		return fmt.Errorf("malformed storage endpoint '%s'", cfg.Endpoint)
	}
	return nil
}

// StorageBackend returns the parsed backend. Only valid after Validate
// succeeded.
func (cfg *StorageConfig) StorageBackend() StorageBackend {
	var sb StorageBackend
	_ = sb.Set(cfg.Backend)
	return sb
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file.
func InitConfig(f string) (*Config, error) {
	return initConfig(file.Provider(f))
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, err
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
