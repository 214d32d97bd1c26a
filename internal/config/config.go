// Package config handles configuration loading for the security header
// service.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows keystore
// passwords and database credentials to be injected at runtime.
//
// # Configuration Sections
//
//   - logging: level and handler format
//   - keystore: key management mode (file, pkcs11, or mongodb)
//   - security: failure policy, default SOAP version, P-Mode directory
//   - pipeline: worker pool sizing
//
// # Example Configuration
//
//	logging:
//	  level: info
//	  format: json
//
//	keystore:
//	  mode: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: as4wssec
//
//	security:
//	  failurePolicy: closed
//	  soapVersion: "1.2"
//	  pmodeDir: /etc/as4/pmodes
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// Config is the root configuration structure
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Keystore KeystoreConfig `yaml:"keystore"`
	Security SecurityConfig `yaml:"security"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// LoggingConfig holds slog settings
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format"`
}

// KeystoreConfig holds key management settings
type KeystoreConfig struct {
	// Mode determines where keys and certificates are loaded from
	// - "file": PEM, PKCS#8 and PKCS#12 files in a directory
	// - "pkcs11": Keys stored in PKCS#11 token (HSM/smart card)
	// - "mongodb": Password protected PKCS#8 entries in MongoDB
	Mode string `yaml:"mode"`

	File    FileKeyConfig `yaml:"file"`
	PKCS11  PKCS11Config  `yaml:"pkcs11"`
	MongoDB MongoDBConfig `yaml:"mongodb"`

	// Cache bounds decrypted keys held in memory in mongodb mode
	Cache KeyCacheConfig `yaml:"cache"`
}

// KeyCacheConfig holds decrypted key cache settings
type KeyCacheConfig struct {
	// KeyTTL is how long decrypted keys remain in memory
	KeyTTL time.Duration `yaml:"keyTTL"`
	// MaxKeys is the maximum number of cached keys
	MaxKeys int `yaml:"maxKeys"`
}

// FileKeyConfig holds file-based key settings
type FileKeyConfig struct {
	// Directory containing {alias}.key/.crt or {alias}.p12 files
	KeyDir string `yaml:"keyDir"`
}

// PKCS11Config holds PKCS#11 HSM settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or label to use
	SlotID    uint   `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN string `yaml:"pin"`
	// Key labels for keystore aliases (pattern: as4-{alias})
	KeyLabelPattern string `yaml:"keyLabelPattern"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectRetries uint64        `yaml:"connectRetries"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SecurityConfig holds header creation settings
type SecurityConfig struct {
	// FailurePolicy is "closed" (abort on header failure) or "open"
	FailurePolicy string `yaml:"failurePolicy"`
	// SOAPVersion is used when an envelope does not identify itself
	SOAPVersion string `yaml:"soapVersion"`
	// PModeDir is loaded into the P-Mode manager at startup
	PModeDir string `yaml:"pmodeDir"`
}

// PipelineConfig holds outbound worker pool settings
type PipelineConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Keystore.Mode == "" {
		c.Keystore.Mode = "file"
	}
	if c.Keystore.File.KeyDir == "" {
		c.Keystore.File.KeyDir = "./keys"
	}
	if c.Keystore.PKCS11.KeyLabelPattern == "" {
		c.Keystore.PKCS11.KeyLabelPattern = "{alias}"
	}
	if c.Keystore.MongoDB.Database == "" {
		c.Keystore.MongoDB.Database = "as4wssec"
	}
	if c.Keystore.MongoDB.Collection == "" {
		c.Keystore.MongoDB.Collection = "key_material"
	}
	if c.Keystore.Cache.KeyTTL == 0 {
		c.Keystore.Cache.KeyTTL = 15 * time.Minute
	}
	if c.Keystore.Cache.MaxKeys == 0 {
		c.Keystore.Cache.MaxKeys = 100
	}
	if c.Security.FailurePolicy == "" {
		c.Security.FailurePolicy = "closed"
	}
	if c.Security.SOAPVersion == "" {
		c.Security.SOAPVersion = string(message.SOAP12)
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 100
	}
}

func (c *Config) validate() error {
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", c.Logging.Format)
	}

	switch c.Keystore.Mode {
	case "file", "pkcs11", "mongodb":
		// Valid modes
	default:
		return fmt.Errorf("keystore.mode must be 'file', 'pkcs11', or 'mongodb', got '%s'", c.Keystore.Mode)
	}
	if c.Keystore.Mode == "pkcs11" && c.Keystore.PKCS11.ModulePath == "" {
		return fmt.Errorf("keystore.pkcs11.modulePath is required when mode is 'pkcs11'")
	}
	if c.Keystore.Mode == "mongodb" && c.Keystore.MongoDB.URI == "" {
		return fmt.Errorf("keystore.mongodb.uri is required when mode is 'mongodb'")
	}

	if _, err := c.Security.Policy(); err != nil {
		return fmt.Errorf("security.failurePolicy: %w", err)
	}
	if _, err := c.Security.Version(); err != nil {
		return fmt.Errorf("security.soapVersion: %w", err)
	}

	if c.Pipeline.Workers < 0 || c.Pipeline.QueueSize < 0 {
		return fmt.Errorf("pipeline.workers and pipeline.queueSize must not be negative")
	}
	return nil
}

// Policy returns the configured header failure policy.
func (s SecurityConfig) Policy() (wssec.FailurePolicy, error) {
	return wssec.ParseFailurePolicy(s.FailurePolicy)
}

// Version returns the configured default SOAP version.
func (s SecurityConfig) Version() (message.SOAPVersion, error) {
	return message.ParseSOAPVersion(s.SOAPVersion)
}

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("logging.level: unknown level '%s'", s)
	}
	return level, nil
}
