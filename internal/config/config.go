package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Blockchain    BlockchainConfig    `yaml:"blockchain"`
	Signer        SignerConfig        `yaml:"signer"`
	Relayer       RelayerConfig       `yaml:"relayer"`
	NATS          NATSConfig          `yaml:"nats"`
	Auth          AuthConfig          `yaml:"auth"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Session       SessionConfig       `yaml:"session"`
	Lock          LockConfig          `yaml:"lock"`
	GC            GCConfig            `yaml:"gc"`
	Payment       PaymentConfig       `yaml:"payment"`
	CallChain     CallChainConfig     `yaml:"callChain"`
	Risk          RiskConfig          `yaml:"risk"`
	CORS          CORSConfig          `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// BlockchainConfig per-network chain configuration
type BlockchainConfig struct {
	Networks map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig a single EVM network the treasury operates on
type NetworkConfig struct {
	ChainID               int64    `yaml:"chainId"`
	Name                  string   `yaml:"name"`
	RPCEndpoints          []string `yaml:"rpcEndpoints"`
	TokenContract         string   `yaml:"tokenContract"`         // EIP-3009 token the authorizations are signed against
	TokenName             string   `yaml:"tokenName"`             // EIP-712 domain name of the token
	TokenVersion          string   `yaml:"tokenVersion"`          // EIP-712 domain version of the token
	WalletFactory         string   `yaml:"walletFactory"`         // CREATE2 factory for multisig wallets
	WalletRuntimeCodeHash string   `yaml:"walletRuntimeCodeHash"` // expected keccak256 of deployed wallet bytecode
	GasLimit              uint64   `yaml:"gasLimit"`
	Enabled               bool     `yaml:"enabled"`
}

// SignerConfig external signer service configuration. Signing is the only
// operation that suspends on an external party, so it carries its own
// timeout budget.
type SignerConfig struct {
	ServiceURL string `yaml:"serviceUrl"`
	AuthToken  string `yaml:"authToken"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// RelayerConfig execution relayer service configuration
type RelayerConfig struct {
	ServiceURL string `yaml:"serviceUrl"`
	AuthToken  string `yaml:"authToken"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// NATSConfig lifecycle event bus configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Enabled       bool   `yaml:"enabled"`
}

// AuthConfig JWT session token configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
	TokenTTL  int    `yaml:"tokenTTL"` // hours
}

// AuthorizationConfig transfer authorization policy knobs
type AuthorizationConfig struct {
	DefaultValiditySeconds int `yaml:"defaultValiditySeconds"` // default 3600 (1h)
	SuspiciousWindowDays   int `yaml:"suspiciousWindowDays"`   // windows beyond this are flagged, default 7
}

// SessionConfig session binding policy knobs
type SessionConfig struct {
	TTLMinutes int `yaml:"ttlMinutes"`
	MaxActions int `yaml:"maxActions"`
}

// LockConfig transaction lock policy knobs
type LockConfig struct {
	DefaultTTLSeconds  int `yaml:"defaultTTLSeconds"`
	HardAgeCeilingMins int `yaml:"hardAgeCeilingMins"` // GC may remove unconsumed locks past this age
}

// GCConfig garbage collection worker configuration
type GCConfig struct {
	IntervalSeconds     int `yaml:"intervalSeconds"`
	CallChainMaxAgeMins int `yaml:"callChainMaxAgeMins"`
}

// PaymentConfig payment retry flow configuration
type PaymentConfig struct {
	MicroPaymentCeilingWei string `yaml:"microPaymentCeilingWei"` // auto-accept ceiling for 402 terms
}

// CallChainConfig required step declarations per sensitive operation type.
// Values here extend (and may override) the built-in defaults.
type CallChainConfig struct {
	Operations map[string][]string `yaml:"operations"`
}

// RiskConfig heuristic risk policy. These are deployment knobs, not
// protocol constants; the core components never read them directly.
type RiskConfig struct {
	BlockScoreThreshold int `yaml:"blockScoreThreshold"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

var AppConfig *Config

// LoadConfig loads the yaml configuration file, then applies environment
// overrides. An empty path falls back to config.yaml, preferring
// config.local.yaml when present.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if signerURL := os.Getenv("SIGNER_SERVICE_URL"); signerURL != "" {
		config.Signer.ServiceURL = signerURL
	}
	if signerToken := os.Getenv("SIGNER_AUTH_TOKEN"); signerToken != "" {
		config.Signer.AuthToken = signerToken
	}
	if relayerURL := os.Getenv("RELAYER_SERVICE_URL"); relayerURL != "" {
		config.Relayer.ServiceURL = relayerURL
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
		config.NATS.Enabled = true
	}
}

// applyDefaults fills policy knobs the file left unset
func applyDefaults(config *Config) {
	if config.Auth.TokenTTL <= 0 {
		config.Auth.TokenTTL = 24
	}
	if config.Auth.Issuer == "" {
		config.Auth.Issuer = "treasury-backend"
	}
	if config.Authorization.DefaultValiditySeconds <= 0 {
		config.Authorization.DefaultValiditySeconds = 3600
	}
	if config.Authorization.SuspiciousWindowDays <= 0 {
		config.Authorization.SuspiciousWindowDays = 7
	}
	if config.Session.TTLMinutes <= 0 {
		config.Session.TTLMinutes = 60
	}
	if config.Session.MaxActions <= 0 {
		config.Session.MaxActions = 1000
	}
	if config.Lock.DefaultTTLSeconds <= 0 {
		config.Lock.DefaultTTLSeconds = 300
	}
	if config.Lock.HardAgeCeilingMins <= 0 {
		config.Lock.HardAgeCeilingMins = 60
	}
	if config.GC.IntervalSeconds <= 0 {
		config.GC.IntervalSeconds = 60
	}
	if config.GC.CallChainMaxAgeMins <= 0 {
		config.GC.CallChainMaxAgeMins = 120
	}
	if config.Signer.Timeout <= 0 {
		config.Signer.Timeout = 30
	}
	if config.Relayer.Timeout <= 0 {
		config.Relayer.Timeout = 60
	}
}

// DefaultValidity returns the default authorization validity window
func (c *AuthorizationConfig) DefaultValidity() time.Duration {
	return time.Duration(c.DefaultValiditySeconds) * time.Second
}

// SuspiciousWindow returns the window length beyond which an authorization
// must be flagged by callers
func (c *AuthorizationConfig) SuspiciousWindow() time.Duration {
	return time.Duration(c.SuspiciousWindowDays) * 24 * time.Hour
}

// NetworkByChainID looks up the enabled network for a chain id
func (c *Config) NetworkByChainID(chainID int64) (*NetworkConfig, bool) {
	for _, network := range c.Blockchain.Networks {
		if network.ChainID == chainID && network.Enabled {
			n := network
			return &n, true
		}
	}
	return nil, false
}
