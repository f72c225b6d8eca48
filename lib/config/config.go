// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Persistent-tier backends.
const (
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// DefaultRoot is the value of ${SDMS_ROOT} when the environment does
// not set it.
const DefaultRoot = "/etc/sdms"

// Config is the complete server configuration.
type Config struct {
	Environment Environment       `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Security    SecurityConfig    `yaml:"security"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Database    DatabaseConfig    `yaml:"database"`

	// Per-environment overrides, applied after the base values.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment may override. Zero
// fields leave the base value alone.
type Overrides struct {
	Server   *ServerConfig   `yaml:"server,omitempty"`
	Security *SecurityConfig `yaml:"security,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// ServerConfig configures the message server.
type ServerConfig struct {
	// Endpoint is where the ROUTER socket binds, e.g. "tcp://*:7512".
	Endpoint string `yaml:"endpoint"`

	// Workers is the number of request handler goroutines.
	Workers int `yaml:"workers"`

	// QueueSize bounds the inbound and outbound queues.
	QueueSize int `yaml:"queue_size"`

	// MaintenanceTick is how often the credential sweeper wakes.
	MaintenanceTick time.Duration `yaml:"maintenance_tick"`
}

// SecurityConfig configures the CURVE secure channel.
type SecurityConfig struct {
	// Enabled turns on CURVE. With it off, traffic is unencrypted
	// and unauthenticated at the socket level.
	Enabled bool `yaml:"enabled"`

	PublicKeyFile string `yaml:"public_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`

	// AgeIdentityFile decrypts an age-sealed secret key file.
	AgeIdentityFile string `yaml:"age_identity_file"`

	// ServerKeyFile is the server's public key, for clients.
	ServerKeyFile string `yaml:"server_key_file"`
}

// CredentialsConfig configures the credential lifecycle.
type CredentialsConfig struct {
	Transient  TransientConfig  `yaml:"transient"`
	Session    SessionConfig    `yaml:"session"`
	Persistent PersistentConfig `yaml:"persistent"`

	// ServiceKeys maps public keys to uids preloaded into the
	// persistent tier, for gateways and other services.
	ServiceKeys map[string]string `yaml:"service_keys"`
}

// TransientConfig configures the transient tier.
type TransientConfig struct {
	PurgeInterval    time.Duration `yaml:"purge_interval"`
	Expiration       time.Duration `yaml:"expiration"`
	PromoteThreshold int           `yaml:"promote_threshold"`
}

// SessionConfig configures the session tier.
type SessionConfig struct {
	PurgeInterval  time.Duration `yaml:"purge_interval"`
	Expiration     time.Duration `yaml:"expiration"`
	ResetThreshold int           `yaml:"reset_threshold"`
}

// PersistentConfig selects the persistent-tier backend.
type PersistentConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DatabaseConfig locates the metadata database service.
type DatabaseConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the base configuration a file is loaded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Endpoint:        "tcp://*:7512",
			Workers:         4,
			QueueSize:       1000,
			MaintenanceTick: 5 * time.Second,
		},
		Security: SecurityConfig{
			Enabled:       true,
			PublicKeyFile: "${SDMS_ROOT}/keys/sdms-core.pub",
			SecretKeyFile: "${SDMS_ROOT}/keys/sdms-core.key",
		},
		Credentials: CredentialsConfig{
			Transient: TransientConfig{
				PurgeInterval:    30 * time.Second,
				Expiration:       60 * time.Second,
				PromoteThreshold: 2,
			},
			Session: SessionConfig{
				PurgeInterval:  15 * time.Minute,
				Expiration:     30 * time.Minute,
				ResetThreshold: 1,
			},
			Persistent: PersistentConfig{
				Backend:    BackendNone,
				SQLitePath: "${SDMS_ROOT}/keys.db",
			},
		},
		Database: DatabaseConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load loads the file named by SDMS_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("SDMS_CONFIG")
	if path == "" {
		return nil, errors.New("SDMS_CONFIG environment variable not set; " +
			"set it to the path of your sdms.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads the configuration at path over Default, applies the
// matching environment section and expands variables. It does not
// validate.
func LoadFile(path string) (*Config, error) {
	config := Default()
	if err := config.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	config.applyEnvironmentOverrides()
	config.expandVariables()
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	// JSON is YAML, so one strict decoder serves both.
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if server := overrides.Server; server != nil {
		if server.Endpoint != "" {
			c.Server.Endpoint = server.Endpoint
		}
		if server.Workers != 0 {
			c.Server.Workers = server.Workers
		}
		if server.QueueSize != 0 {
			c.Server.QueueSize = server.QueueSize
		}
		if server.MaintenanceTick != 0 {
			c.Server.MaintenanceTick = server.MaintenanceTick
		}
	}

	if security := overrides.Security; security != nil {
		// Enabled is a bool, so an override section always sets it.
		c.Security.Enabled = security.Enabled
		if security.PublicKeyFile != "" {
			c.Security.PublicKeyFile = security.PublicKeyFile
		}
		if security.SecretKeyFile != "" {
			c.Security.SecretKeyFile = security.SecretKeyFile
		}
		if security.AgeIdentityFile != "" {
			c.Security.AgeIdentityFile = security.AgeIdentityFile
		}
		if security.ServerKeyFile != "" {
			c.Security.ServerKeyFile = security.ServerKeyFile
		}
	}

	if database := overrides.Database; database != nil {
		if database.URL != "" {
			c.Database.URL = database.URL
		}
		if database.Timeout != 0 {
			c.Database.Timeout = database.Timeout
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"SDMS_ROOT": os.Getenv("SDMS_ROOT"),
		"HOME":      os.Getenv("HOME"),
	}
	if vars["SDMS_ROOT"] == "" {
		vars["SDMS_ROOT"] = DefaultRoot
	}
	for _, field := range []*string{
		&c.Security.PublicKeyFile,
		&c.Security.SecretKeyFile,
		&c.Security.AgeIdentityFile,
		&c.Security.ServerKeyFile,
		&c.Credentials.Persistent.SQLitePath,
		&c.Database.URL,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}, preferring vars,
// then the environment, then the default.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value := vars[name]; value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Server.Endpoint == "" {
		errs = append(errs, errors.New("server.endpoint is required"))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers))
	}
	if c.Server.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("server.queue_size must be at least 1, got %d", c.Server.QueueSize))
	}
	if c.Server.MaintenanceTick <= 0 {
		errs = append(errs, errors.New("server.maintenance_tick must be positive"))
	}

	if c.Security.Enabled {
		if c.Security.PublicKeyFile == "" {
			errs = append(errs, errors.New("security.public_key_file is required when security is enabled"))
		}
		if c.Security.SecretKeyFile == "" {
			errs = append(errs, errors.New("security.secret_key_file is required when security is enabled"))
		}
	} else if c.Environment == Production {
		errs = append(errs, errors.New("security.enabled must be true in production"))
	}

	transient := c.Credentials.Transient
	errs = append(errs, validateTier("transient", transient.PurgeInterval, transient.Expiration, c.Server.MaintenanceTick)...)
	if transient.PromoteThreshold < 1 {
		errs = append(errs, errors.New("credentials.transient.promote_threshold must be at least 1"))
	}
	session := c.Credentials.Session
	errs = append(errs, validateTier("session", session.PurgeInterval, session.Expiration, c.Server.MaintenanceTick)...)
	if session.ResetThreshold < 1 {
		errs = append(errs, errors.New("credentials.session.reset_threshold must be at least 1"))
	}

	switch c.Credentials.Persistent.Backend {
	case BackendHTTP:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the http persistent backend"))
		}
	case BackendSQLite:
		if c.Credentials.Persistent.SQLitePath == "" {
			errs = append(errs, errors.New("credentials.persistent.sqlite_path is required for the sqlite persistent backend"))
		}
	case BackendNone:
	default:
		errs = append(errs, fmt.Errorf("credentials.persistent.backend must be one of %s, %s, %s; got %q",
			BackendHTTP, BackendSQLite, BackendNone, c.Credentials.Persistent.Backend))
	}

	for key, uid := range c.Credentials.ServiceKeys {
		if len(key) != 40 {
			errs = append(errs, fmt.Errorf("credentials.service_keys: key for %q must be 40 characters, got %d", uid, len(key)))
		}
		if uid == "" {
			errs = append(errs, errors.New("credentials.service_keys: empty uid"))
		}
	}

	if c.Database.URL != "" && c.Database.Timeout <= 0 {
		errs = append(errs, errors.New("database.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// validateTier checks one expiring tier. A sweep only selects entries
// whose expiration is still ahead of it, and a due sweep waits for the
// next maintenance tick, so sweeps can be up to purge_interval plus
// one tick apart. Every entry must outlive that gap or no sweep ever
// selects it.
func validateTier(name string, purgeInterval, expiration, tick time.Duration) []error {
	var errs []error
	if purgeInterval <= 0 {
		errs = append(errs, fmt.Errorf("credentials.%s.purge_interval must be positive", name))
	}
	if gap := purgeInterval + max(tick, 0); expiration <= gap {
		errs = append(errs, fmt.Errorf("credentials.%s.expiration (%s) must exceed purge_interval plus server.maintenance_tick (%s)",
			name, expiration, gap))
	}
	return errs
}
