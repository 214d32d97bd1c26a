//go:build pkcs11

package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ThalesGroup/crypto11"
)

// PKCS11Provider implements Provider using a PKCS#11 token (HSM/smart card).
// The token PIN comes from configuration, so alias passwords are ignored.
type PKCS11Provider struct {
	ctx             *crypto11.Context
	keyLabelPattern string
	mu              sync.RWMutex
	signers         map[string]*pkcs11Key // Cache of alias -> key pair
}

type pkcs11Key struct {
	key   crypto.Signer
	chain []*x509.Certificate
}

var _ Provider = (*PKCS11Provider)(nil)

// PKCS11Config holds configuration for the PKCS#11 provider
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string

	// KeyLabelPattern maps a keystore alias to a token label.
	// Use {alias} as placeholder, e.g., "as4-{alias}"
	KeyLabelPattern string
}

// NewPKCS11Provider creates a new PKCS#11 key provider
func NewPKCS11Provider(cfg *PKCS11Config) (*PKCS11Provider, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}

	if cfg.SlotID != nil {
		slotID := int(*cfg.SlotID)
		config.SlotNumber = &slotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	pattern := cfg.KeyLabelPattern
	if pattern == "" {
		pattern = "{alias}"
	}

	return &PKCS11Provider{
		ctx:             ctx,
		keyLabelPattern: pattern,
		signers:         make(map[string]*pkcs11Key),
	}, nil
}

// SigningKey returns the token key pair labelled for alias
func (p *PKCS11Provider) SigningKey(_ context.Context, alias, _ string) (crypto.Signer, []*x509.Certificate, error) {
	// Check cache first
	p.mu.RLock()
	if k, ok := p.signers[alias]; ok {
		p.mu.RUnlock()
		return k.key, k.chain, nil
	}
	p.mu.RUnlock()

	k, err := p.loadKey(p.keyLabel(alias))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", alias, err)
	}

	p.mu.Lock()
	p.signers[alias] = k
	p.mu.Unlock()

	return k.key, k.chain, nil
}

// Certificate returns the token certificate labelled for alias
func (p *PKCS11Provider) Certificate(_ context.Context, alias string) (*x509.Certificate, error) {
	cert, err := p.ctx.FindCertificate(nil, []byte(p.keyLabel(alias)), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
	}
	return cert, nil
}

// ListKeys returns the key pairs loaded so far. Tokens cannot be
// enumerated by label pattern in a portable way.
func (p *PKCS11Provider) ListKeys(_ context.Context) ([]KeyInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]KeyInfo, 0, len(p.signers))
	for alias, k := range p.signers {
		keys = append(keys, keyInfo(alias, true, k.chain[0]))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Alias < keys[j].Alias })
	return keys, nil
}

// Close releases PKCS#11 resources
func (p *PKCS11Provider) Close() error {
	return p.ctx.Close()
}

func (p *PKCS11Provider) keyLabel(alias string) string {
	return strings.ReplaceAll(p.keyLabelPattern, "{alias}", alias)
}

func (p *PKCS11Provider) loadKey(label string) (*pkcs11Key, error) {
	// Find the private key by label
	key, err := p.ctx.FindKeyPair(nil, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}

	// Find the associated certificate
	cert, err := p.ctx.FindCertificate(nil, []byte(label), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, ErrNoCertificate
	}
	if err := checkKeyPair(key, cert); err != nil {
		return nil, err
	}

	return &pkcs11Key{key: key, chain: []*x509.Certificate{cert}}, nil
}
