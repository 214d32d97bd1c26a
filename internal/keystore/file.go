package keystore

import (
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/pkcs12"
)

// FileProvider implements Provider using files in a directory.
//
// For an alias the provider looks for:
//
//	{keyDir}/{alias}.p12  PKCS#12 bundle, unlocked with the alias password
//	{keyDir}/{alias}.key  PEM private key (encrypted PKCS#8 or plain)
//	{keyDir}/{alias}.crt  PEM certificate chain, end entity first
//
// Partner certificates used for encryption only need the .crt file.
type FileProvider struct {
	keyDir string

	mu      sync.RWMutex
	signers map[string]*cachedKey
}

type cachedKey struct {
	key      crypto.Signer
	chain    []*x509.Certificate
	password [sha256.Size]byte
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider creates a new file-based provider
func NewFileProvider(keyDir string) (*FileProvider, error) {
	info, err := os.Stat(keyDir)
	if err != nil {
		return nil, fmt.Errorf("checking key directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("key directory is not a directory: %s", keyDir)
	}

	return &FileProvider{
		keyDir:  keyDir,
		signers: make(map[string]*cachedKey),
	}, nil
}

// SigningKey returns the private key and chain for alias. Unlocked keys are
// cached and only returned again for the same password.
func (p *FileProvider) SigningKey(_ context.Context, alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	digest := sha256.Sum256([]byte(password))

	p.mu.RLock()
	cached, ok := p.signers[alias]
	p.mu.RUnlock()
	if ok && subtle.ConstantTimeCompare(cached.password[:], digest[:]) == 1 {
		return cached.key, cached.chain, nil
	}

	key, chain, err := p.loadSigner(alias, password)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	p.signers[alias] = &cachedKey{key: key, chain: chain, password: digest}
	p.mu.Unlock()

	return key, chain, nil
}

// Certificate returns the end entity certificate for alias
func (p *FileProvider) Certificate(_ context.Context, alias string) (*x509.Certificate, error) {
	chain, err := p.loadChain(alias)
	if err == nil {
		return chain[0], nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	// Certificates in PKCS#12 bundles without a password
	_, chain, p12err := p.loadPKCS12(alias, "")
	if p12err != nil {
		return nil, err
	}
	return chain[0], nil
}

// ListKeys returns all aliases with a certificate in the key directory
func (p *FileProvider) ListKeys(_ context.Context) ([]KeyInfo, error) {
	entries, err := os.ReadDir(p.keyDir)
	if err != nil {
		return nil, fmt.Errorf("reading key directory: %w", err)
	}

	present := make(map[string]map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		alias := strings.TrimSuffix(entry.Name(), ext)
		if present[alias] == nil {
			present[alias] = make(map[string]bool)
		}
		present[alias][ext] = true
	}

	var keys []KeyInfo
	for alias, exts := range present {
		if !exts[".crt"] {
			// Bundles are locked; they are listed without metadata.
			if exts[".p12"] {
				keys = append(keys, KeyInfo{Alias: alias, HasPrivateKey: true})
			}
			continue
		}
		chain, err := p.loadChain(alias)
		if err != nil {
			continue // Skip unreadable certificates
		}
		keys = append(keys, keyInfo(alias, exts[".key"] || exts[".p12"], chain[0]))
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Alias < keys[j].Alias })
	return keys, nil
}

// Close drops cached keys
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signers = make(map[string]*cachedKey)
	return nil
}

func (p *FileProvider) path(alias, ext string) (string, error) {
	if alias == "" || alias != filepath.Base(alias) || strings.HasPrefix(alias, ".") {
		return "", fmt.Errorf("invalid keystore alias %q", alias)
	}
	return filepath.Join(p.keyDir, alias+ext), nil
}

func (p *FileProvider) loadSigner(alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	key, chain, err := p.loadPKCS12(alias, password)
	if err == nil || !errors.Is(err, ErrKeyNotFound) {
		return key, chain, err
	}

	keyPath, err := p.path(alias, ".key")
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
		}
		return nil, nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err = ParsePrivateKey(keyPEM, password)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing private key %s: %w", alias, err)
	}

	chain, err = p.loadChain(alias)
	if err != nil {
		return nil, nil, fmt.Errorf("loading certificate: %w", err)
	}
	if err := checkKeyPair(key, chain[0]); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", alias, err)
	}
	return key, chain, nil
}

func (p *FileProvider) loadChain(alias string) ([]*x509.Certificate, error) {
	certPath, err := p.path(alias, ".crt")
	if err != nil {
		return nil, err
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
		}
		return nil, fmt.Errorf("reading certificate file: %w", err)
	}
	return ParseCertificates(certPEM)
}

// loadPKCS12 reads {alias}.p12. When the bundle names its entries, only the
// ones whose friendlyName equals alias are used.
func (p *FileProvider) loadPKCS12(alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	p12Path, err := p.path(alias, ".p12")
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(p12Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
		}
		return nil, nil, fmt.Errorf("reading PKCS#12 file: %w", err)
	}
	return decodePKCS12(data, alias, password)
}

func decodePKCS12(data []byte, alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, nil, fmt.Errorf("%w: %s", ErrWrongPassword, alias)
		}
		return nil, nil, fmt.Errorf("decoding PKCS#12 %s: %w", alias, err)
	}

	named := false
	for _, b := range blocks {
		if b.Headers["friendlyName"] != "" {
			named = true
			break
		}
	}

	var key crypto.Signer
	var chain []*x509.Certificate
	for _, b := range blocks {
		if named && b.Headers["friendlyName"] != alias && b.Type != pemCertificate {
			continue
		}
		switch {
		case b.Type == pemCertificate:
			cert, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing certificate: %w", err)
			}
			if named && b.Headers["friendlyName"] == alias {
				chain = append([]*x509.Certificate{cert}, chain...)
			} else {
				chain = append(chain, cert)
			}
		case strings.HasSuffix(b.Type, "PRIVATE KEY") && key == nil:
			// PKCS#12 key bags decode as PKCS#1 or SEC 1 blocks.
			key, err = parsePrivateKeyBlock(&pem.Block{Type: b.Type, Bytes: b.Bytes}, "")
			if err != nil {
				return nil, nil, fmt.Errorf("parsing private key: %w", err)
			}
		}
	}

	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoCertificate, alias)
	}
	if key == nil {
		return nil, chain, nil
	}
	if err := checkKeyPair(key, chain[0]); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", alias, err)
	}
	return key, chain, nil
}
