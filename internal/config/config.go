// Package config loads the push server configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and environment variables. Command line flags that the
// operator set explicitly are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/and161185/goph-push/internal/crypto/keyfile"
	"github.com/and161185/goph-push/internal/model"
	"github.com/and161185/goph-push/internal/webpush"
)

// Environment variables that override the file.
const (
	EnvVapidPublicKey  = "VAPID_PUBLIC_KEY"
	EnvVapidPrivateKey = "VAPID_PRIVATE_KEY"
	EnvVapidSubject    = "VAPID_SUBJECT"
	EnvJWTKey          = "GP_JWT_KEY"
	EnvDSN             = "GP_DSN"
	EnvVapidPassphrase = "GP_VAPID_PASSPHRASE"
)

// Config is the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Vapid    VapidConfig    `yaml:"vapid"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	// Addr is the listen address. Default: :8443
	Addr string `yaml:"addr"`

	// TLSCert and TLSKey are PEM files. Both are required unless Dev is set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// Dev enables server reflection and allows plaintext.
	Dev bool `yaml:"dev"`
}

// DatabaseConfig configures the subscription store.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// AuthConfig configures API access tokens.
type AuthConfig struct {
	// JWTKey is the HS256 signing key.
	JWTKey string `yaml:"jwt_key"`

	// AccessTTL is the lifetime of minted tokens. Default: 24h
	AccessTTL time.Duration `yaml:"access_ttl"`
}

// VapidConfig holds the application server identity.
type VapidConfig struct {
	// PublicKey is base64url of the 65-byte uncompressed point.
	PublicKey string `yaml:"public_key"`

	// PrivateKey is base64url of the 32-byte scalar.
	PrivateKey string `yaml:"private_key"`

	// PrivateKeyFile is a sealed key file holding the raw scalar, used
	// when PrivateKey is empty. It opens with Passphrase.
	PrivateKeyFile string `yaml:"private_key_file"`
	Passphrase     string `yaml:"-"`

	// Subject is the contact address placed in the "sub" claim.
	Subject string `yaml:"subject"`
}

// DispatchConfig configures fan-out and delivery.
type DispatchConfig struct {
	// Workers bounds concurrent deliveries per batch. Default: 16
	Workers int `yaml:"workers"`

	// Timeout bounds one delivery request. Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// TTL is the push service retention in seconds. Default: 86400
	TTL int `yaml:"ttl"`

	// Urgency is one of very-low, low, normal, high. Default: normal
	Urgency string `yaml:"urgency"`
}

// LimitsConfig caps targeted notifications per member.
// MemberNotifyMax of zero disables the limit.
type LimitsConfig struct {
	MemberNotifyMax    int           `yaml:"member_notify_max"`
	MemberNotifyWindow time.Duration `yaml:"member_notify_window"`
}

// Default returns the configuration used before any file or environment is read.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8443"},
		Auth:   AuthConfig{AccessTTL: 24 * time.Hour},
		Dispatch: DispatchConfig{
			Workers: 16,
			Timeout: webpush.DefaultTimeout,
			TTL:     webpush.DefaultTTL,
			Urgency: webpush.DefaultUrgency,
		},
		Limits: LimitsConfig{MemberNotifyWindow: time.Hour},
	}
}

// LoadFile reads path over the defaults. An empty path yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Vapid.PublicKey, EnvVapidPublicKey)
	set(&c.Vapid.PrivateKey, EnvVapidPrivateKey)
	set(&c.Vapid.Subject, EnvVapidSubject)
	set(&c.Auth.JWTKey, EnvJWTKey)
	set(&c.Database.DSN, EnvDSN)
	set(&c.Vapid.Passphrase, EnvVapidPassphrase)
}

var urgencies = map[string]bool{"very-low": true, "low": true, "normal": true, "high": true}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var problems []error
	if c.Server.Addr == "" {
		problems = append(problems, errors.New("server.addr is required"))
	}
	if !c.Server.Dev && (c.Server.TLSCert == "" || c.Server.TLSKey == "") {
		problems = append(problems, errors.New("server.tls_cert and server.tls_key are required outside dev mode"))
	}
	if c.Database.DSN == "" {
		problems = append(problems, errors.New("database.dsn is required"))
	}
	if c.Auth.JWTKey == "" {
		problems = append(problems, fmt.Errorf("auth.jwt_key is required (or %s)", EnvJWTKey))
	}
	if _, err := c.VapidKeys(); err != nil {
		problems = append(problems, err)
	}
	if strings.TrimSpace(c.Vapid.Subject) == "" {
		problems = append(problems, fmt.Errorf("vapid.subject is required (or %s)", EnvVapidSubject))
	}
	if c.Dispatch.Workers <= 0 {
		problems = append(problems, errors.New("dispatch.workers must be positive"))
	}
	if c.Dispatch.Timeout <= 0 {
		problems = append(problems, errors.New("dispatch.timeout must be positive"))
	}
	if c.Dispatch.TTL < 0 {
		problems = append(problems, errors.New("dispatch.ttl must not be negative"))
	}
	if !urgencies[c.Dispatch.Urgency] {
		problems = append(problems, fmt.Errorf("dispatch.urgency %q is not one of very-low, low, normal, high", c.Dispatch.Urgency))
	}
	if c.Limits.MemberNotifyMax < 0 || (c.Limits.MemberNotifyMax > 0 && c.Limits.MemberNotifyWindow <= 0) {
		problems = append(problems, errors.New("limits: member_notify_max needs a positive member_notify_window"))
	}
	return errors.Join(problems...)
}

// VapidKeys decodes the configured key pair.
func (c *Config) VapidKeys() (model.VapidKeyPair, error) {
	priv := c.Vapid.PrivateKey
	if priv == "" && c.Vapid.PrivateKeyFile != "" {
		raw, err := keyfile.ReadFile(c.Vapid.PrivateKeyFile, []byte(c.Vapid.Passphrase))
		if err != nil {
			return model.VapidKeyPair{}, fmt.Errorf("vapid.private_key_file: %w", err)
		}
		priv = webpush.EncodeKey(raw)
	}
	if c.Vapid.PublicKey == "" || priv == "" {
		return model.VapidKeyPair{}, fmt.Errorf("vapid.public_key and vapid.private_key are required (or %s/%s)",
			EnvVapidPublicKey, EnvVapidPrivateKey)
	}
	return webpush.ParseVapidKeyPair(c.Vapid.PublicKey, priv)
}
