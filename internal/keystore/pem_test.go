package keystore

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePrivateKey_Encrypted(t *testing.T) {
	key, _ := generateRSACert(t, "alice")

	data, err := EncodePrivateKey(key, "changeit")
	require.NoError(t, err)

	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	assert.Equal(t, "ENCRYPTED PRIVATE KEY", block.Type)

	parsed, err := ParsePrivateKey(data, "changeit")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed.Public()))

	_, err = ParsePrivateKey(data, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestEncodePrivateKey_Plain(t *testing.T) {
	key, _ := generateECCert(t, "bob")

	data, err := EncodePrivateKey(key, "")
	require.NoError(t, err)

	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)

	// Password is ignored for unencrypted keys
	parsed, err := ParsePrivateKey(data, "anything")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed.Public()))
}

func TestParsePrivateKey_PKCS1(t *testing.T) {
	key, _ := generateRSACert(t, "alice")
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	parsed, err := ParsePrivateKey(data, "")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed.Public()))
}

func TestParsePrivateKey_SkipsCertificateBlocks(t *testing.T) {
	key, cert := generateECCert(t, "bob")
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	data := EncodeCertificates([]*x509.Certificate{cert})
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})...)

	parsed, err := ParsePrivateKey(data, "")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed.Public()))
}

func TestParsePrivateKey_NoKey(t *testing.T) {
	_, err := ParsePrivateKey([]byte("not pem"), "")
	assert.Error(t, err)
}

func TestParseCertificates(t *testing.T) {
	_, first := generateRSACert(t, "first")
	_, second := generateECCert(t, "second")

	chain, err := ParseCertificates(EncodeCertificates([]*x509.Certificate{first, second}))
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "first", chain[0].Subject.CommonName)
	assert.Equal(t, "second", chain[1].Subject.CommonName)

	_, err = ParseCertificates(nil)
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestCheckKeyPair(t *testing.T) {
	key, cert := generateRSACert(t, "alice")
	_, other := generateRSACert(t, "mallory")

	assert.NoError(t, checkKeyPair(key, cert))
	assert.Error(t, checkKeyPair(key, other))
}

func TestKeyInfo(t *testing.T) {
	_, rsaCert := generateRSACert(t, "alice")
	info := keyInfo("alice", true, rsaCert)
	assert.Equal(t, "RSA", info.Algorithm)
	assert.Equal(t, 2048, info.KeySize)
	assert.Contains(t, info.CertificateSubject, "CN=alice")

	_, ecCert := generateECCert(t, "bob")
	info = keyInfo("bob", false, ecCert)
	assert.Equal(t, "EC", info.Algorithm)
	assert.Equal(t, 256, info.KeySize)
	assert.False(t, info.HasPrivateKey)
}
