// Configuration management for bolt.
//
// Configuration comes from a YAML file (see config.yml at the repository
// root), optionally layered with a .env file and environment variable
// overrides for the identity fields. It is loaded once at startup and never
// mutated afterwards; everything that needs it receives the same pointer.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nbd-wtf/go-nostr/nip19"
	"gopkg.in/yaml.v3"
)

// SupportedNip is one protocol extension the relay implements, with a
// reference URL for the index page.
type SupportedNip struct {
	Nip int    `yaml:"nip" json:"nip"`
	URL string `yaml:"url" json:"url"`
}

// Limitations is the server-side admission threshold set, advertised verbatim
// in the NIP-11 information document.
type Limitations struct {
	MaxMessageLength    int   `yaml:"max_message_length" json:"max_message_length"`
	MaxSubscriptions    int   `yaml:"max_subscriptions" json:"max_subscriptions"`
	MaxFilters          int   `yaml:"max_filters" json:"max_filters"`
	MaxLimit            int   `yaml:"max_limit" json:"max_limit"`
	MaxSubidLength      int   `yaml:"max_subid_length" json:"max_subid_length"`
	MaxEventTags        int   `yaml:"max_event_tags" json:"max_event_tags"`
	MaxContentLength    int   `yaml:"max_content_length" json:"max_content_length"`
	MinPowDifficulty    int   `yaml:"min_pow_difficulty" json:"min_pow_difficulty"`
	AuthRequired        bool  `yaml:"auth_required" json:"auth_required"`
	PaymentRequired     bool  `yaml:"payment_required" json:"payment_required"`
	RestrictedWrites    bool  `yaml:"restricted_writes" json:"restricted_writes"`
	CreatedAtLowerLimit int64 `yaml:"created_at_lower_limit" json:"created_at_lower_limit"`
	CreatedAtUpperLimit int64 `yaml:"created_at_upper_limit" json:"created_at_upper_limit"`
}

// DefaultLimitations returns the limits applied when the config file omits
// them. These follow the sensible defaults from NIP-11, except that
// min_pow_difficulty defaults to zero because bolt actually enforces it.
func DefaultLimitations() Limitations {
	return Limitations{
		MaxMessageLength:    16384,
		MaxSubscriptions:    20,
		MaxFilters:          100,
		MaxLimit:            5000,
		MaxSubidLength:      100,
		MaxEventTags:        100,
		MaxContentLength:    8196,
		MinPowDifficulty:    0,
		AuthRequired:        false,
		PaymentRequired:     false,
		RestrictedWrites:    false,
		CreatedAtLowerLimit: 31536000,
		CreatedAtUpperLimit: 3,
	}
}

// Config holds the full runtime configuration.
type Config struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Banner        string         `yaml:"banner"`
	Icon          string         `yaml:"icon"`
	PubKey        string         `yaml:"pubkey"`
	Contact       string         `yaml:"contact"`
	SupportedNips []SupportedNip `yaml:"supported_nips"`
	Software      string         `yaml:"software"`
	Version       string         `yaml:"version"`

	RelayBindAddress string `yaml:"relay_bind_address"`
	RelayPort        int    `yaml:"relay_port"`

	DBPath    string `yaml:"db_path"`
	IndexPath string `yaml:"index_path"`
	Verbose   string `yaml:"verbose"`

	// RejectFutureSeconds is the clock-skew tolerance applied to incoming
	// event timestamps, independent of the advertised created_at limits.
	RejectFutureSeconds int64 `yaml:"reject_future_seconds"`

	// WriteBufferSize is the websocket write buffer, in bytes.
	WriteBufferSize int `yaml:"write_buffer_size"`

	// MessageRateLimit and MessageRateBurst throttle inbound messages per
	// connection (token bucket: sustained rate and burst size).
	MessageRateLimit int `yaml:"message_rate_limit"`
	MessageRateBurst int `yaml:"message_rate_burst"`

	Limits Limitations `yaml:"limits"`
}

// Load reads the YAML configuration at path, applies defaults for anything
// omitted, and finally applies environment overrides. A .env file in the
// working directory is honored if present.
func Load(path string) (*Config, error) {
	// best-effort, a missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{
		RelayBindAddress:    "0.0.0.0",
		RelayPort:           3000,
		RejectFutureSeconds: 3,
		WriteBufferSize:     2 << 17, // 256KiB
		MessageRateLimit:    25,
		MessageRateBurst:    50,
		Limits:              DefaultLimitations(),
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides identity and runtime fields from the environment.
func (c *Config) applyEnv() {
	set := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(&c.Name, "RELAY_NAME")
	set(&c.Description, "RELAY_DESCRIPTION")
	set(&c.Banner, "RELAY_BANNER")
	set(&c.Icon, "RELAY_ICON")
	set(&c.PubKey, "RELAY_PUBKEY")
	set(&c.Contact, "RELAY_CONTACT")
	set(&c.DBPath, "DB_PATH")
	set(&c.IndexPath, "INDEX_PATH")
	set(&c.Verbose, "VERBOSE")
}

func (c *Config) validate() error {
	if c.RelayPort <= 0 || c.RelayPort > 65535 {
		return fmt.Errorf("invalid relay_port: %d", c.RelayPort)
	}
	if c.Limits.MaxMessageLength <= 0 {
		return fmt.Errorf("invalid max_message_length: %d", c.Limits.MaxMessageLength)
	}
	if c.Limits.MaxContentLength <= 0 {
		return fmt.Errorf("invalid max_content_length: %d", c.Limits.MaxContentLength)
	}
	if c.RejectFutureSeconds < 0 {
		return fmt.Errorf("invalid reject_future_seconds: %d", c.RejectFutureSeconds)
	}
	if c.MessageRateLimit <= 0 {
		return fmt.Errorf("invalid message_rate_limit: %d", c.MessageRateLimit)
	}
	if c.MessageRateBurst <= 0 {
		return fmt.Errorf("invalid message_rate_burst: %d", c.MessageRateBurst)
	}

	// accept npub-encoded pubkeys and normalize to hex
	if strings.HasPrefix(c.PubKey, "npub") {
		prefix, val, err := nip19.Decode(c.PubKey)
		if err != nil || prefix != "npub" {
			return fmt.Errorf("invalid pubkey %q: %v", c.PubKey, err)
		}
		if pk, ok := val.(string); ok {
			c.PubKey = pk
		}
	}
	return nil
}

// Addr returns the bind address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.RelayBindAddress, c.RelayPort)
}

// NipNumbers returns just the numbers of the supported protocol extensions,
// the shape NIP-11 wants.
func (c *Config) NipNumbers() []int {
	nums := make([]int, 0, len(c.SupportedNips))
	for _, n := range c.SupportedNips {
		nums = append(nums, n.Nip)
	}
	return nums
}
