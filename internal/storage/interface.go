// Package storage provides persistence for keystore material.
//
// # Interface Design
//
// [KeyMaterialStore] holds one entry per keystore alias: the private key
// (PEM, usually password protected PKCS#8) and the certificate chain. The
// keystore package decrypts entries on demand; stores never see the
// alias password.
//
// # Implementations
//
// The memstore sub-package keeps entries in memory for tests and demos.
// The mongodb sub-package is the production backend.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no entry exists for an alias.
var ErrNotFound = errors.New("key material not found")

// KeyMaterialStore manages keystore entries by alias
type KeyMaterialStore interface {
	// GetKeyMaterial retrieves the entry for alias
	GetKeyMaterial(ctx context.Context, alias string) (*KeyMaterial, error)

	// PutKeyMaterial creates or replaces an entry
	PutKeyMaterial(ctx context.Context, km *KeyMaterial) error

	// DeleteKeyMaterial removes an entry
	DeleteKeyMaterial(ctx context.Context, alias string) error

	// ListAliases returns all aliases in lexical order
	ListAliases(ctx context.Context) ([]string, error)

	// Close releases storage resources
	Close(ctx context.Context) error
}

// KeyMaterial is one keystore entry. Entries holding only a certificate
// describe trading partners used as encryption recipients.
type KeyMaterial struct {
	Alias string `bson:"_id" json:"alias"`

	// PrivateKeyPEM is an "ENCRYPTED PRIVATE KEY" block, or an unencrypted
	// PKCS#1, SEC 1 or PKCS#8 block.
	PrivateKeyPEM []byte `bson:"private_key_pem,omitempty" json:"-"`

	// CertificatePEM holds the certificate chain, end entity first
	CertificatePEM []byte `bson:"certificate_pem" json:"certificatePem"`

	Subject   string    `bson:"subject" json:"subject"`
	NotAfter  time.Time `bson:"not_after" json:"notAfter"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy of km.
func (km *KeyMaterial) Clone() *KeyMaterial {
	c := *km
	c.PrivateKeyPEM = append([]byte(nil), km.PrivateKeyPEM...)
	c.CertificatePEM = append([]byte(nil), km.CertificatePEM...)
	return &c
}
