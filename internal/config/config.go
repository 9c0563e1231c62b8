// Package config loads the engine configuration from YAML with
// environment overrides for secrets and the database DSN.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bridgeflow/transfer_engine/internal/chainid"
	"github.com/bridgeflow/transfer_engine/internal/route"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	HTTP         HTTPConfig         `yaml:"http"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Persistence  PersistenceConfig  `yaml:"persistence"`

	SignerKey string `yaml:"signer_key"`

	Adapters AdaptersConfig       `yaml:"adapters"`
	Chains   []ChainMappingConfig `yaml:"chains"`
	Routes   []RouteConfig        `yaml:"routes"`
}

// HTTPConfig configures the read/submit API server.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// OrchestratorConfig configures polling policy.
type OrchestratorConfig struct {
	PollInitialBackoff Duration `yaml:"poll_initial_backoff"`
	PollMaxBackoff     Duration `yaml:"poll_max_backoff"`
	PollJitter         float64  `yaml:"poll_jitter"`
	MaxPollRetries     int      `yaml:"max_poll_retries"`
	ToleranceBps       int64    `yaml:"tolerance_bps"`
}

// PersistenceConfig selects the transaction store backend.
type PersistenceConfig struct {
	Driver      string `yaml:"driver"` // memory | postgres
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AdaptersConfig holds per-protocol adapter configuration.
type AdaptersConfig struct {
	Snowbridge AdapterConfig `yaml:"snowbridge"`
	XCM        AdapterConfig `yaml:"xcm"`
	CCTP       AdapterConfig `yaml:"cctp"`
}

// AdapterConfig configures one protocol adapter.
type AdapterConfig struct {
	RPCURL              string   `yaml:"rpc_url"`
	RequestsPerSecond   float64  `yaml:"requests_per_second"`
	Timeout             Duration `yaml:"timeout"`
	SourceDeadline      Duration `yaml:"source_deadline"`
	DestinationDeadline Duration `yaml:"destination_deadline"`
}

// ChainMappingConfig declares one canonical-id to protocol-name pair.
type ChainMappingConfig struct {
	Protocol  string `yaml:"protocol"`
	Canonical string `yaml:"canonical"`
	Name      string `yaml:"name"`
}

// RouteConfig declares one route table entry. Declaration order is
// evaluation order.
type RouteConfig struct {
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	Protocol string   `yaml:"protocol"`
	Tokens   []string `yaml:"tokens"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.LogLevel = "info"
	cfg.HTTP.ListenAddr = ":8080"
	cfg.Orchestrator.PollInitialBackoff = Duration(2 * time.Second)
	cfg.Orchestrator.PollMaxBackoff = Duration(30 * time.Second)
	cfg.Orchestrator.PollJitter = 0.2
	cfg.Orchestrator.MaxPollRetries = 10
	cfg.Orchestrator.ToleranceBps = 100
	cfg.Persistence.Driver = "memory"
	return cfg
}

// Load reads the configuration from path, applies environment overrides
// and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Persistence.Driver = "postgres"
		cfg.Persistence.PostgresDSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.HTTP.JWTSecret = v
	}
	if v := os.Getenv("SIGNER_KEY"); v != "" {
		cfg.SignerKey = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Persistence.Driver != "memory" && c.Persistence.Driver != "postgres" {
		return fmt.Errorf("config: unknown persistence driver %q", c.Persistence.Driver)
	}
	if c.Persistence.Driver == "postgres" && c.Persistence.PostgresDSN == "" {
		return fmt.Errorf("config: postgres driver requires a DSN")
	}
	if c.SignerKey == "" {
		return fmt.Errorf("config: signer key required")
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("config: at least one route required")
	}
	for _, r := range c.Routes {
		if _, ok := transfer.ParseProtocolID(r.Protocol); !ok {
			return fmt.Errorf("config: route %s->%s: unknown protocol %q", r.From, r.To, r.Protocol)
		}
		if len(r.Tokens) == 0 {
			return fmt.Errorf("config: route %s->%s: token list empty", r.From, r.To)
		}
	}
	for _, m := range c.Chains {
		if _, ok := transfer.ParseProtocolID(m.Protocol); !ok {
			return fmt.Errorf("config: chain mapping for %s: unknown protocol %q", m.Canonical, m.Protocol)
		}
	}
	return nil
}

// ChainMappings converts the declared chain table for the identity mapper.
func (c *Config) ChainMappings() []chainid.Mapping {
	out := make([]chainid.Mapping, 0, len(c.Chains))
	for _, m := range c.Chains {
		p, _ := transfer.ParseProtocolID(m.Protocol)
		out = append(out, chainid.Mapping{
			Protocol:  p,
			Canonical: transfer.CanonicalChainID(m.Canonical),
			Name:      m.Name,
		})
	}
	return out
}

// RouteTable converts the declared routes for the registry, preserving
// declaration order.
func (c *Config) RouteTable() []route.Route {
	out := make([]route.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		p, _ := transfer.ParseProtocolID(r.Protocol)
		out = append(out, route.Route{
			From:     transfer.CanonicalChainID(r.From),
			To:       transfer.CanonicalChainID(r.To),
			Protocol: p,
			Tokens:   r.Tokens,
		})
	}
	return out
}
