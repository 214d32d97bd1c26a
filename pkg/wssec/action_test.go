package wssec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	tests := []struct {
		ut, sig, enc bool
		want         string
	}{
		{false, false, false, ""},
		{true, false, false, "USERNAME_TOKEN"},
		{false, true, false, "SIGNATURE"},
		{false, false, true, "ENCRYPT"},
		{false, true, true, "SIGNATURE ENCRYPT"},
		{true, true, false, "USERNAME_TOKEN SIGNATURE"},
		{true, false, true, "USERNAME_TOKEN ENCRYPT"},
		{true, true, true, "USERNAME_TOKEN SIGNATURE ENCRYPT"},
	}
	for _, tt := range tests {
		got := Sequence(tt.ut, tt.sig, tt.enc)
		assert.Equal(t, tt.want, got.String())
	}
}

func TestActionList_RequiresUsername(t *testing.T) {
	assert.True(t, ActionList{ActionUsernameToken}.RequiresUsername())
	assert.True(t, ActionList{ActionSignature, ActionEncrypt}.RequiresUsername())
	assert.False(t, ActionList{ActionEncrypt}.RequiresUsername())
	assert.False(t, ActionList{}.RequiresUsername())
}

func TestParseActions(t *testing.T) {
	l, err := ParseActions("USERNAME_TOKEN  SIGNATURE ENCRYPT")
	require.NoError(t, err)
	assert.Equal(t, ActionList{ActionUsernameToken, ActionSignature, ActionEncrypt}, l)

	l, err = ParseActions("")
	require.NoError(t, err)
	assert.Empty(t, l)

	_, err = ParseActions("SIGNATURE TIMESTAMP")
	assert.Error(t, err)

	_, err = ParseActions("SIGNATURE SIGNATURE")
	assert.Error(t, err)
}

func TestParseActions_RoundTrip(t *testing.T) {
	in := Sequence(true, true, true)
	out, err := ParseActions(in.String())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
