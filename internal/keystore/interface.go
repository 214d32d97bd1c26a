// Package keystore resolves keystore aliases to signing keys and
// certificates for the security engine.
//
// Providers are implemented for different backends:
//
//   - File: PEM and PKCS#8 files or PKCS#12 bundles in a directory
//   - PKCS#11: Keys stored in hardware security modules (HSM) or smart cards
//   - Store: Password protected PKCS#8 entries in a storage.KeyMaterialStore
//     (MongoDB in production)
//
// Every provider implements security.KeyProvider. The password passed to
// SigningKey is the one registered for the alias in the credential store of
// the current header run.
package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"time"

	"github.com/sirosfoundation/go-as4-wssec/pkg/security"
)

// Common errors
var (
	ErrKeyNotFound   = security.ErrKeyNotFound
	ErrWrongPassword = errors.New("private key could not be decrypted with the given password")
	ErrNoCertificate = errors.New("no certificate for alias")
)

// Provider is a security.KeyProvider backed by a keystore.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	security.KeyProvider

	// ListKeys returns the aliases available in the keystore.
	ListKeys(ctx context.Context) ([]KeyInfo, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Importer is implemented by providers whose entries can be written.
type Importer interface {
	// Import stores key and chain under alias, protecting the key with
	// password. A nil key imports a partner certificate.
	Import(ctx context.Context, alias string, key crypto.Signer, chain []*x509.Certificate, password string) error
}

// KeyInfo describes a keystore entry
type KeyInfo struct {
	// Alias is the keystore alias referenced by P-Mode configurations
	Alias string

	// HasPrivateKey is false for entries holding only a partner certificate
	HasPrivateKey bool

	// Algorithm is the key algorithm (e.g., "RSA", "EC", "Ed25519")
	Algorithm string

	// KeySize is the key size in bits (e.g., 2048 for RSA, 256 for P-256)
	KeySize int

	// NotBefore is when the associated certificate becomes valid
	NotBefore time.Time

	// NotAfter is when the associated certificate expires
	NotAfter time.Time

	// CertificateSubject is the subject DN of the certificate
	CertificateSubject string
}
