package keystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/internal/config"
)

func TestNewProvider_File(t *testing.T) {
	cfg := config.Default().Keystore
	cfg.File.KeyDir = t.TempDir()

	p, err := NewProvider(context.Background(), &cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &FileProvider{}, p)
}

func TestNewProvider_UnknownMode(t *testing.T) {
	cfg := config.Default().Keystore
	cfg.Mode = "prf"

	_, err := NewProvider(context.Background(), &cfg)
	assert.Error(t, err)
}
