// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms"`
	Enabled   []string                  `mapstructure:"enabled_platforms"`
	Cex       CexConfig                 `mapstructure:"cex"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Telemetry TelemetryConfig           `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// DexKind tags a DEX deployment entry.
type DexKind string

const (
	DexKindV2 DexKind = "v2"
	DexKindV3 DexKind = "v3"
	DexKindV4 DexKind = "v4"
)

// DexConfig is one DEX deployment on a platform. Exactly the fields for
// its kind are set.
type DexConfig struct {
	Name string  `mapstructure:"name"`
	Kind DexKind `mapstructure:"kind"`

	// v2 / v3
	Factory      string `mapstructure:"factory"`
	Router       string `mapstructure:"router"`
	InitCodeHash string `mapstructure:"init_code_hash"`

	// v3 / v4
	Quoter string `mapstructure:"quoter"`

	// v4
	PoolManager string `mapstructure:"pool_manager"`
	StateView   string `mapstructure:"state_view"`
}

// TokenSeed is a trusted token from configuration.
type TokenSeed struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Decimals uint8  `mapstructure:"decimals"`
	Stable   bool   `mapstructure:"stable"` // USD anchor for the oracle
}

// Thresholds carries the strategy limits a downstream consumer reads;
// the engine itself only transports them.
type Thresholds struct {
	MinGrossProfitUSD float64 `mapstructure:"min_gross_profit_usd"`
	MaxSlippageBps    int     `mapstructure:"max_slippage_bps"`
	MinLiquidityUSD   float64 `mapstructure:"min_liquidity_usd"`
	MaxHops           int     `mapstructure:"max_hops"`
}

// PlatformConfig describes one watched chain.
type PlatformConfig struct {
	ChainID       uint64      `mapstructure:"chain_id"`
	WSURL         string      `mapstructure:"ws_url"`
	Native        string      `mapstructure:"native"`
	WrappedNative string      `mapstructure:"wrapped_native"`
	Multicall     string      `mapstructure:"multicall"`
	BorrowTokens  []string    `mapstructure:"borrow_tokens"`
	Tokens        []TokenSeed `mapstructure:"tokens"`
	Dexes         []DexConfig `mapstructure:"dexes"`
	Thresholds    Thresholds  `mapstructure:"thresholds"`
}

// CexConfig holds the centralised-exchange feed settings.
type CexConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Symbols []string `mapstructure:"symbols"`
	BaseURL string   `mapstructure:"base_url"`
	Depth   bool     `mapstructure:"depth"`
}

// CacheConfig holds the static-cache layout.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// RequestTimeout is the bus request deadline.
const RequestTimeout = 10 * time.Second

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MDE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; env vars may carry everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "MDE_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "MDE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "MDE_LOG_LEVEL", "LOG_LEVEL")

	// Platform selection; per-platform WS URLs bind as
	// MDE_PLATFORMS_<NAME>_WS_URL through AutomaticEnv.
	v.BindEnv("enabled_platforms", "MDE_ENABLED_PLATFORMS", "ENABLED_PLATFORMS")

	// CEX feed
	v.BindEnv("cex.enabled", "MDE_CEX_ENABLED")
	v.BindEnv("cex.symbols", "MDE_CEX_SYMBOLS")

	// Telemetry
	v.BindEnv("telemetry.enabled", "MDE_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "MDE_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "MDE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "market-data-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("enabled_platforms", []string{})

	v.SetDefault("cex.enabled", false)
	v.SetDefault("cex.symbols", []string{"ETHUSDC"})
	v.SetDefault("cex.base_url", "wss://stream.binance.com:9443")

	v.SetDefault("cache.dir", "./data")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "market-data-engine")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, name := range c.Enabled {
		platform, ok := c.Platforms[name]
		if !ok {
			return fmt.Errorf("enabled platform %q has no configuration", name)
		}
		if platform.ChainID == 0 {
			return fmt.Errorf("platform %q: chain_id is required", name)
		}
		if platform.WSURL == "" {
			return fmt.Errorf("platform %q: ws_url is required", name)
		}
		for _, dex := range platform.Dexes {
			if err := dex.Validate(); err != nil {
				return fmt.Errorf("platform %q: %w", name, err)
			}
		}
		for _, seed := range platform.Tokens {
			if !common.IsHexAddress(seed.Address) {
				return fmt.Errorf("platform %q: bad token address %q", name, seed.Address)
			}
		}
	}
	return nil
}

// Validate checks a DEX entry carries the fields its kind requires.
func (d *DexConfig) Validate() error {
	switch d.Kind {
	case DexKindV2:
		if !common.IsHexAddress(d.Factory) {
			return fmt.Errorf("dex %q: v2 needs a factory address", d.Name)
		}
	case DexKindV3:
		if !common.IsHexAddress(d.Factory) {
			return fmt.Errorf("dex %q: v3 needs a factory address", d.Name)
		}
	case DexKindV4:
		if !common.IsHexAddress(d.PoolManager) || !common.IsHexAddress(d.StateView) {
			return fmt.Errorf("dex %q: v4 needs pool_manager and state_view addresses", d.Name)
		}
	default:
		return fmt.Errorf("dex %q: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

// FactoryHex returns the factory address.
func (d *DexConfig) FactoryHex() common.Address { return common.HexToAddress(d.Factory) }

// RouterHex returns the router address.
func (d *DexConfig) RouterHex() common.Address { return common.HexToAddress(d.Router) }

// QuoterHex returns the quoter address.
func (d *DexConfig) QuoterHex() common.Address { return common.HexToAddress(d.Quoter) }

// PoolManagerHex returns the V4 pool manager address.
func (d *DexConfig) PoolManagerHex() common.Address { return common.HexToAddress(d.PoolManager) }

// StateViewHex returns the V4 state view address.
func (d *DexConfig) StateViewHex() common.Address { return common.HexToAddress(d.StateView) }

// InitCodeHashHex returns the init code hash.
func (d *DexConfig) InitCodeHashHex() common.Hash { return common.HexToHash(d.InitCodeHash) }

// MulticallHex returns the platform's Multicall3 address, defaulting to
// the canonical deployment shared across chains.
func (p *PlatformConfig) MulticallHex() common.Address {
	if p.Multicall == "" {
		return common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	}
	return common.HexToAddress(p.Multicall)
}

// StableAnchors returns the seeded stable-coin addresses.
func (p *PlatformConfig) StableAnchors() []string {
	var out []string
	for _, t := range p.Tokens {
		if t.Stable {
			out = append(out, strings.ToLower(t.Address))
		}
	}
	return out
}
