package wssec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialStore(t *testing.T) {
	s := NewCredentialStore()
	assert.Equal(t, 0, s.Len())

	s.Register("cert1", "p4ss")
	s.Register("alice", "s3cret")

	pw, ok := s.Password("alice")
	assert.True(t, ok)
	assert.Equal(t, "s3cret", pw)

	_, ok = s.Password("bob")
	assert.False(t, ok)

	assert.Equal(t, []string{"alice", "cert1"}, s.Identities())
}

func TestCredentialStore_LastWriteWins(t *testing.T) {
	s := NewCredentialStore()
	s.Register("alice", "first")
	s.Register("alice", "second")

	assert.Equal(t, 1, s.Len())
	pw, _ := s.Password("alice")
	assert.Equal(t, "second", pw)
}

func TestCredentialStore_SnapshotIsCopy(t *testing.T) {
	s := NewCredentialStore()
	s.Register("alice", "s3cret")

	snap := s.Snapshot()
	snap["mallory"] = "x"
	assert.Equal(t, 1, s.Len())
}

func TestCredentialStore_StringHidesSecrets(t *testing.T) {
	s := NewCredentialStore()
	s.Register("alice", "s3cret")

	str := s.String()
	assert.Contains(t, str, "alice")
	assert.NotContains(t, str, "s3cret")
}
