//go:build !pkcs11

package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
)

// PKCS11Provider is a stub that returns an error when PKCS#11 support is not compiled in.
type PKCS11Provider struct{}

var _ Provider = (*PKCS11Provider)(nil)

// PKCS11Config holds configuration for the PKCS#11 provider
type PKCS11Config struct {
	ModulePath      string
	SlotID          *uint
	SlotLabel       string
	PIN             string
	KeyLabelPattern string
}

// ErrPKCS11NotSupported is returned when PKCS#11 operations are attempted
// but the binary was not compiled with PKCS#11 support.
var ErrPKCS11NotSupported = errors.New("PKCS#11 support not compiled in (build with -tags pkcs11)")

// NewPKCS11Provider returns an error because PKCS#11 is not compiled in.
func NewPKCS11Provider(*PKCS11Config) (*PKCS11Provider, error) {
	return nil, ErrPKCS11NotSupported
}

// SigningKey returns an error because PKCS#11 is not compiled in.
func (p *PKCS11Provider) SigningKey(context.Context, string, string) (crypto.Signer, []*x509.Certificate, error) {
	return nil, nil, ErrPKCS11NotSupported
}

// Certificate returns an error because PKCS#11 is not compiled in.
func (p *PKCS11Provider) Certificate(context.Context, string) (*x509.Certificate, error) {
	return nil, ErrPKCS11NotSupported
}

// ListKeys returns an error because PKCS#11 is not compiled in.
func (p *PKCS11Provider) ListKeys(context.Context) ([]KeyInfo, error) {
	return nil, ErrPKCS11NotSupported
}

// Close is a no-op.
func (p *PKCS11Provider) Close() error {
	return nil
}
