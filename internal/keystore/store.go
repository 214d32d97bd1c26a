package keystore

import (
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirosfoundation/go-as4-wssec/internal/storage"
)

// StoreProvider implements Provider over a storage.KeyMaterialStore.
//
// Private keys are stored as password protected PKCS#8 and decrypted on
// demand with the alias password. Decrypted keys are kept in a cache
// bounded by time (KeyTTL) and count (MaxKeys).
type StoreProvider struct {
	store   storage.KeyMaterialStore
	keyTTL  time.Duration
	maxKeys int
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]*cachedSigner
	done  chan struct{}
	once  sync.Once
}

type cachedSigner struct {
	cachedKey
	expiresAt time.Time
}

var (
	_ Provider = (*StoreProvider)(nil)
	_ Importer = (*StoreProvider)(nil)
)

// StoreProviderConfig holds configuration for the store-backed provider
type StoreProviderConfig struct {
	// Store holds the keystore entries
	Store storage.KeyMaterialStore

	// KeyTTL is how long decrypted keys remain in memory
	KeyTTL time.Duration

	// MaxKeys is the maximum number of cached keys
	MaxKeys int
}

// NewStoreProvider creates a provider reading entries from cfg.Store
func NewStoreProvider(cfg *StoreProviderConfig) (*StoreProvider, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = 15 * time.Minute
	}

	maxKeys := cfg.MaxKeys
	if maxKeys == 0 {
		maxKeys = 100
	}

	p := &StoreProvider{
		store:   cfg.Store,
		keyTTL:  keyTTL,
		maxKeys: maxKeys,
		now:     time.Now,
		cache:   make(map[string]*cachedSigner),
		done:    make(chan struct{}),
	}

	// Start cache cleanup goroutine
	go p.cleanupLoop()

	return p, nil
}

// Import stores key and chain under alias. The key is encrypted with
// password before it reaches the store; an empty password stores it in
// the clear. A nil key imports a partner certificate.
func (p *StoreProvider) Import(ctx context.Context, alias string, key crypto.Signer, chain []*x509.Certificate, password string) error {
	if alias == "" {
		return fmt.Errorf("alias is required")
	}
	if len(chain) == 0 {
		return ErrNoCertificate
	}

	km := &storage.KeyMaterial{
		Alias:          alias,
		CertificatePEM: EncodeCertificates(chain),
		Subject:        chain[0].Subject.String(),
		NotAfter:       chain[0].NotAfter,
		UpdatedAt:      p.now().UTC(),
	}
	if key != nil {
		if err := checkKeyPair(key, chain[0]); err != nil {
			return err
		}
		keyPEM, err := EncodePrivateKey(key, password)
		if err != nil {
			return err
		}
		km.PrivateKeyPEM = keyPEM
	}

	if err := p.store.PutKeyMaterial(ctx, km); err != nil {
		return fmt.Errorf("storing key material %s: %w", alias, err)
	}
	p.Forget(alias)
	return nil
}

// SigningKey returns the decrypted key and chain for alias
func (p *StoreProvider) SigningKey(ctx context.Context, alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	digest := sha256.Sum256([]byte(password))

	// Check cache first
	p.mu.Lock()
	if cached, ok := p.cache[alias]; ok && p.now().Before(cached.expiresAt) &&
		subtle.ConstantTimeCompare(cached.password[:], digest[:]) == 1 {
		p.mu.Unlock()
		return cached.key, cached.chain, nil
	}
	p.mu.Unlock()

	km, err := p.get(ctx, alias)
	if err != nil {
		return nil, nil, err
	}
	if len(km.PrivateKeyPEM) == 0 {
		return nil, nil, fmt.Errorf("%w: no private key for %s", ErrKeyNotFound, alias)
	}
	key, err := ParsePrivateKey(km.PrivateKeyPEM, password)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing private key %s: %w", alias, err)
	}
	chain, err := ParseCertificates(km.CertificatePEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing certificate %s: %w", alias, err)
	}
	if err := checkKeyPair(key, chain[0]); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", alias, err)
	}

	p.mu.Lock()
	if len(p.cache) >= p.maxKeys {
		p.evictOldest()
	}
	p.cache[alias] = &cachedSigner{
		cachedKey: cachedKey{key: key, chain: chain, password: digest},
		expiresAt: p.now().Add(p.keyTTL),
	}
	p.mu.Unlock()

	return key, chain, nil
}

// Certificate returns the end entity certificate for alias
func (p *StoreProvider) Certificate(ctx context.Context, alias string) (*x509.Certificate, error) {
	km, err := p.get(ctx, alias)
	if err != nil {
		return nil, err
	}
	chain, err := ParseCertificates(km.CertificatePEM)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate %s: %w", alias, err)
	}
	return chain[0], nil
}

// ListKeys returns every entry of the store
func (p *StoreProvider) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	aliases, err := p.store.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}

	keys := make([]KeyInfo, 0, len(aliases))
	for _, alias := range aliases {
		km, err := p.store.GetKeyMaterial(ctx, alias)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue // Deleted while listing
			}
			return nil, err
		}
		chain, err := ParseCertificates(km.CertificatePEM)
		if err != nil {
			continue // Skip unreadable certificates
		}
		keys = append(keys, keyInfo(alias, len(km.PrivateKeyPEM) > 0, chain[0]))
	}
	return keys, nil
}

// Forget removes the cached key for alias
func (p *StoreProvider) Forget(alias string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, alias)
}

// Close stops the cleanup loop and drops cached keys. The underlying
// store is owned by the caller.
func (p *StoreProvider) Close() error {
	p.once.Do(func() { close(p.done) })
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*cachedSigner)
	return nil
}

func (p *StoreProvider) get(ctx context.Context, alias string) (*storage.KeyMaterial, error) {
	km, err := p.store.GetKeyMaterial(ctx, alias)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
		}
		return nil, fmt.Errorf("loading key material %s: %w", alias, err)
	}
	return km, nil
}

func (p *StoreProvider) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, cached := range p.cache {
		if oldestKey == "" || cached.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.expiresAt
		}
	}

	if oldestKey != "" {
		delete(p.cache, oldestKey)
	}
}

func (p *StoreProvider) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}
		p.mu.Lock()
		now := p.now()
		for key, cached := range p.cache {
			if now.After(cached.expiresAt) {
				delete(p.cache, key)
			}
		}
		p.mu.Unlock()
	}
}
