package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "file", cfg.Keystore.Mode)
	assert.Equal(t, "./keys", cfg.Keystore.File.KeyDir)
	assert.Equal(t, 4, cfg.Pipeline.Workers)

	policy, err := cfg.Security.Policy()
	require.NoError(t, err)
	assert.Equal(t, wssec.FailClosed, policy)

	version, err := cfg.Security.Version()
	require.NoError(t, err)
	assert.Equal(t, message.SOAP12, version)

	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_MONGODB_URI", "mongodb://db.example.com:27017")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
keystore:
  mode: mongodb
  mongodb:
    uri: ${TEST_MONGODB_URI}
security:
  failurePolicy: open
  soapVersion: "1.1"
pipeline:
  workers: 2
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.example.com:27017", cfg.Keystore.MongoDB.URI)
	assert.Equal(t, "key_material", cfg.Keystore.MongoDB.Collection)
	assert.Equal(t, 2, cfg.Pipeline.Workers)

	policy, err := cfg.Security.Policy()
	require.NoError(t, err)
	assert.Equal(t, wssec.FailOpen, policy)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "keystore:\n  mode: prf\n"},
		{"pkcs11 without module", "keystore:\n  mode: pkcs11\n"},
		{"mongodb without uri", "keystore:\n  mode: mongodb\n"},
		{"unknown policy", "security:\n  failurePolicy: maybe\n"},
		{"unknown soap version", "security:\n  soapVersion: \"2.0\"\n"},
		{"unknown level", "logging:\n  level: loud\n"},
		{"unknown format", "logging:\n  format: xml\n"},
		{"negative workers", "pipeline:\n  workers: -1\n"},
		{"malformed", "keystore: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "target", "ebms")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"target":"ebms"`)
}
