package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"token-flow/pkg/intent"
)

// Config holds the application configuration
type Config struct {
	QuoteURL       string
	RPCURL         string
	PrivateKey     string
	Slippage       float64
	DebounceMS     int
	RequestTimeout time.Duration
	MaxRetries     uint
	SkipPreflight  bool
	Commitment     string
	ListenAddr     string
	LogLevel       string
	LogFormat      string
	ExplorerURL    string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".token-flow")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("TOKEN_FLOW")
	v.AutomaticEnv()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("quote_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("slippage", intent.DefaultSlippagePct)
	v.SetDefault("debounce_ms", 500)
	v.SetDefault("request_timeout", "15s")
	v.SetDefault("max_retries", 2)
	v.SetDefault("skip_preflight", true)
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("explorer_url", "https://solscan.io/tx/")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		QuoteURL:       v.GetString("quote_url"),
		RPCURL:         v.GetString("rpc_url"),
		PrivateKey:     v.GetString("private_key"),
		Slippage:       v.GetFloat64("slippage"),
		DebounceMS:     v.GetInt("debounce_ms"),
		RequestTimeout: v.GetDuration("request_timeout"),
		MaxRetries:     v.GetUint("max_retries"),
		SkipPreflight:  v.GetBool("skip_preflight"),
		Commitment:     v.GetString("commitment"),
		ListenAddr:     v.GetString("listen_addr"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		ExplorerURL:    v.GetString("explorer_url"),
	}
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if c.QuoteURL == "" {
		return fmt.Errorf("quote_url is required. Set TOKEN_FLOW_QUOTE_URL or add it to .token-flow.yaml")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required. Set TOKEN_FLOW_RPC_URL or add it to .token-flow.yaml")
	}
	if err := intent.ValidateSlippage(c.Slippage); err != nil {
		return fmt.Errorf("invalid slippage: %w", err)
	}
	if c.DebounceMS <= 0 {
		return fmt.Errorf("debounce_ms must be positive, got %d", c.DebounceMS)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unsupported commitment: %s", c.Commitment)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}
	return nil
}

// Debounce returns the quiet period as a duration
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
