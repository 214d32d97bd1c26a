package security

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
)

// ErrKeyNotFound is returned by a KeyProvider for an unknown alias.
var ErrKeyNotFound = errors.New("key not found")

// KeyProvider resolves keystore aliases to key material. The signing key is
// unlocked with the password registered for the alias in the credential
// store of the current run.
type KeyProvider interface {
	// SigningKey returns the private key for alias and its certificate
	// chain, end entity first.
	SigningKey(ctx context.Context, alias, password string) (crypto.Signer, []*x509.Certificate, error)
	// Certificate returns the certificate published under alias.
	Certificate(ctx context.Context, alias string) (*x509.Certificate, error)
}
