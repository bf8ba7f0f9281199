package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"vatchain/crypto"
	"vatchain/storage"
)

const (
	defaultListenAddress     = ":8547"
	defaultDataDir           = "./vat-data"
	defaultEnvironment       = "dev"
	defaultIssuer            = "vatchain"
	defaultRequestsPerMinute = 600
	defaultBurst             = 50
	defaultLogMaxSizeMB      = 100
	defaultLogMaxBackups     = 5
	defaultClockSkew         = 60 * time.Second
	defaultEpochSeconds      = 60

	// DeployerKeyFile holds the hex private key generated alongside a default
	// configuration.
	DeployerKeyFile = "deployer.key"
)

// Config is the node configuration for vatd.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir       string `toml:"DataDir" yaml:"dataDir"`
	// StorageEngine is leveldb (default) or bolt.
	StorageEngine string          `toml:"StorageEngine" yaml:"storageEngine"`
	Environment   string          `toml:"Environment" yaml:"environment"`
	Deployer      string          `toml:"Deployer" yaml:"deployer"`
	Auth          AuthConfig      `toml:"Auth" yaml:"auth"`
	RateLimit     RateLimitConfig `toml:"RateLimit" yaml:"rateLimit"`
	Log           LogConfig       `toml:"Log" yaml:"log"`
	Telemetry     TelemetryConfig `toml:"Telemetry" yaml:"telemetry"`
	Quota         Quota           `toml:"Quota" yaml:"quota"`
	Index         IndexConfig     `toml:"Index" yaml:"index"`
	// AllowedOrigins lists the browser origins, such as
	// https://app.example.com, admitted by CORS and the receipt stream. When
	// empty the stream accepts same-origin clients only.
	AllowedOrigins []string `toml:"AllowedOrigins" yaml:"allowedOrigins"`
	// Pauses lists modules (vat, join, jug) halted at startup.
	Pauses  []string `toml:"Pauses" yaml:"pauses"`
	Genesis Genesis  `toml:"Genesis" yaml:"genesis"`
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. A missing file is replaced with a
// default configuration and a freshly generated deployer key.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DeployerAddress returns the decoded deployer.
func (cfg *Config) DeployerAddress() crypto.Address {
	addr, _ := crypto.DecodeAddress(cfg.Deployer)
	return addr
}

// QuotaEpoch returns the quota window as a duration.
func (cfg *Config) QuotaEpoch() time.Duration {
	return time.Duration(cfg.Quota.EpochSeconds) * time.Second
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.StorageEngine = strings.ToLower(strings.TrimSpace(cfg.StorageEngine))
	if cfg.StorageEngine == "" {
		cfg.StorageEngine = storage.EngineLevelDB
	}
	cfg.Index.DSN = strings.TrimSpace(cfg.Index.DSN)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	cfg.Deployer = strings.TrimSpace(cfg.Deployer)
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = defaultIssuer
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = defaultClockSkew
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB <= 0 {
			cfg.Log.MaxSizeMB = defaultLogMaxSizeMB
		}
		if cfg.Log.MaxBackups <= 0 {
			cfg.Log.MaxBackups = defaultLogMaxBackups
		}
	}
	if cfg.Quota.MaxRequestsPerEpoch > 0 && cfg.Quota.EpochSeconds == 0 {
		cfg.Quota.EpochSeconds = defaultEpochSeconds
	}
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.AllowedOrigins = origins
	pauses := make([]string, 0, len(cfg.Pauses))
	for _, module := range cfg.Pauses {
		if module = strings.ToLower(strings.TrimSpace(module)); module != "" {
			pauses = append(pauses, module)
		}
	}
	cfg.Pauses = pauses
}

// createDefault writes a development configuration next to a new deployer key.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	keyPath := filepath.Join(filepath.Dir(path), DeployerKeyFile)
	if err := writeFile(keyPath, []byte(hex.EncodeToString(key.Bytes())+"\n"), 0o600); err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       defaultDataDir,
		StorageEngine: storage.EngineLevelDB,
		Environment:   defaultEnvironment,
		Deployer:      key.PubKey().Address().String(),
		Auth: AuthConfig{
			HMACSecret: hex.EncodeToString(secret),
			Issuer:     defaultIssuer,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: defaultRequestsPerMinute,
			Burst:             defaultBurst,
		},
		Genesis: Genesis{Line: "0"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	var buf strings.Builder
	if isYAML(path) {
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		buf.Write(raw)
	} else if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return writeFile(path, []byte(buf.String()), 0o644)
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, perm)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
