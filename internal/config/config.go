// Package config loads and validates the forwarder's YAML configuration.
// ${VAR} references are expanded from the environment before parsing and
// absent keys keep their defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmagro/acct-xmlrpc/internal/pool"
	"github.com/dmagro/acct-xmlrpc/internal/rpc"
)

// Version is reported in the default User-Agent.
const Version = "0.1.0"

// Defaults for optional keys.
const (
	DefaultInterface = "lo"
	DefaultUserAgent = "acct-xmlrpc/" + Version
)

// Config is the root of the configuration file.
type Config struct {
	URL    string `yaml:"url"`    // endpoint, http or https
	Method string `yaml:"method"` // remote method name

	Interface       string `yaml:"interface"` // local interface or IP; "" disables binding
	SSLNoVerifyPeer bool   `yaml:"ssl_no_verify_peer"`
	SSLNoVerifyHost bool   `yaml:"ssl_no_verify_host"`
	UserAgent       string `yaml:"user_agent"`

	PoolSize int    `yaml:"pool_size"`
	Mode     string `yaml:"mode"` // rotate or checkout

	AuthType   string `yaml:"auth_type"` // none, basic, digest, negotiate, ntlm
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Realm      string `yaml:"realm"`
	SPN        string `yaml:"spn"`
	Krb5Config string `yaml:"krb5_config"`

	Timeout time.Duration `yaml:"timeout"` // per call; 0 means none

	Log Log `yaml:"log"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with every optional key at its default.
func Default() Config {
	return Config{
		Interface:  DefaultInterface,
		UserAgent:  DefaultUserAgent,
		PoolSize:   pool.DefaultSize,
		Mode:       string(pool.ModeRotate),
		AuthType:   string(rpc.AuthNone),
		Krb5Config: rpc.DefaultKrb5Config,
		Log:        Log{Level: "info", Format: "console"},
	}
}

// Validate checks required keys and value ranges. It may print warnings
// to stderr for suspicious values but does not fail on them.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url (missing scheme or host)")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q (expected http or https)", u.Scheme)
	}
	if c.Method == "" {
		return fmt.Errorf("method is required")
	}

	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be >= 1")
	}
	if _, err := pool.ParseMode(c.Mode); err != nil {
		return err
	}

	auth, err := rpc.ParseAuthMode(c.AuthType)
	if err != nil {
		return err
	}
	if auth != rpc.AuthNone && c.User == "" {
		return fmt.Errorf("user is required for auth_type %s", auth)
	}
	if auth != rpc.AuthNone && c.Password == "" {
		return fmt.Errorf("password is required for auth_type %s", auth)
	}
	if auth == rpc.AuthNone && (c.User != "" || c.Password != "") {
		fmt.Fprintf(os.Stderr, "Warning: user/password set but auth_type is none; credentials are ignored\n")
	}
	if auth == rpc.AuthNegotiate && c.Krb5Config == "" {
		return fmt.Errorf("krb5_config is required for auth_type negotiate")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	const low = 100 * time.Millisecond
	const high = 2 * time.Minute
	if c.Timeout > 0 && c.Timeout < low {
		fmt.Fprintf(os.Stderr, "Warning: timeout is very low (%s); calls may fail under normal network jitter\n", c.Timeout)
	}
	if c.Timeout > high {
		fmt.Fprintf(os.Stderr, "Warning: timeout is very high (%s); a stuck endpoint will hold workers for a long time\n", c.Timeout)
	}

	if u.Scheme == "http" && (c.SSLNoVerifyPeer || c.SSLNoVerifyHost) {
		fmt.Fprintf(os.Stderr, "Warning: ssl_no_verify_* has no effect on an http url\n")
	}
	if u.Scheme == "http" && auth == rpc.AuthBasic {
		fmt.Fprintf(os.Stderr, "Warning: basic auth over plain http sends the password in clear text\n")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug|info|warn|error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}
	return nil
}

// PoolOptions returns the pool settings. Validate must have succeeded.
func (c *Config) PoolOptions() pool.Options {
	mode, _ := pool.ParseMode(c.Mode)
	auth, _ := rpc.ParseAuthMode(c.AuthType)
	return pool.Options{
		URL:        c.URL,
		Size:       c.PoolSize,
		Mode:       mode,
		Auth:       auth,
		User:       c.User,
		Password:   c.Password,
		Realm:      c.Realm,
		SPN:        c.SPN,
		Krb5Config: c.Krb5Config,
	}
}

// TransportParams returns the settings shared by every client.
func (c *Config) TransportParams() rpc.TransportParams {
	return rpc.TransportParams{
		Interface:      c.Interface,
		SkipPeerVerify: c.SSLNoVerifyPeer,
		SkipHostVerify: c.SSLNoVerifyHost,
		UserAgent:      c.UserAgent,
	}
}

// Load reads, expands and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it over the
// defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
