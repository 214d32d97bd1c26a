package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/internal/storage"
)

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	km := &storage.KeyMaterial{Alias: "sender", PrivateKeyPEM: []byte("key"), CertificatePEM: []byte("cert")}
	require.NoError(t, s.PutKeyMaterial(ctx, km))

	got, err := s.GetKeyMaterial(ctx, "sender")
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), got.PrivateKeyPEM)
	assert.False(t, got.UpdatedAt.IsZero())

	// Stored entries are isolated from caller mutation.
	km.PrivateKeyPEM[0] = 'X'
	got.CertificatePEM[0] = 'X'
	again, err := s.GetKeyMaterial(ctx, "sender")
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), again.PrivateKeyPEM)
	assert.Equal(t, []byte("cert"), again.CertificatePEM)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetKeyMaterial(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteKeyMaterial(ctx, "missing"), storage.ErrNotFound)
}

func TestStore_ListAndClose(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, alias := range []string{"c", "a", "b"} {
		require.NoError(t, s.PutKeyMaterial(ctx, &storage.KeyMaterial{Alias: alias}))
	}

	aliases, err := s.ListAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, aliases)

	require.NoError(t, s.DeleteKeyMaterial(ctx, "b"))
	aliases, err = s.ListAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, aliases)

	require.NoError(t, s.Close(ctx))
	aliases, err = s.ListAliases(ctx)
	require.NoError(t, err)
	assert.Empty(t, aliases)
}
