package keystore

import (
	"context"
	"fmt"

	"github.com/sirosfoundation/go-as4-wssec/internal/config"
	"github.com/sirosfoundation/go-as4-wssec/internal/storage"
	"github.com/sirosfoundation/go-as4-wssec/internal/storage/mongodb"
)

// NewProvider creates a Provider based on the configuration
func NewProvider(ctx context.Context, cfg *config.KeystoreConfig) (Provider, error) {
	switch cfg.Mode {
	case "pkcs11":
		return newPKCS11Provider(cfg)
	case "mongodb":
		return newMongoProvider(ctx, cfg)
	case "file", "":
		return newFileProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown keystore mode: %s", cfg.Mode)
	}
}

func newPKCS11Provider(cfg *config.KeystoreConfig) (Provider, error) {
	p11cfg := &PKCS11Config{
		ModulePath:      cfg.PKCS11.ModulePath,
		SlotLabel:       cfg.PKCS11.SlotLabel,
		PIN:             cfg.PKCS11.PIN,
		KeyLabelPattern: cfg.PKCS11.KeyLabelPattern,
	}
	if cfg.PKCS11.SlotID > 0 {
		slotID := cfg.PKCS11.SlotID
		p11cfg.SlotID = &slotID
	}
	p, err := NewPKCS11Provider(p11cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newMongoProvider(ctx context.Context, cfg *config.KeystoreConfig) (Provider, error) {
	store, err := mongodb.NewStore(ctx, &mongodb.Config{
		URI:            cfg.MongoDB.URI,
		Database:       cfg.MongoDB.Database,
		Collection:     cfg.MongoDB.Collection,
		ConnectRetries: cfg.MongoDB.ConnectRetries,
		Timeout:        cfg.MongoDB.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to key store: %w", err)
	}
	p, err := NewStoreProvider(&StoreProviderConfig{
		Store:   store,
		KeyTTL:  cfg.Cache.KeyTTL,
		MaxKeys: cfg.Cache.MaxKeys,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return &ownedStoreProvider{StoreProvider: p, store: store}, nil
}

func newFileProvider(cfg *config.KeystoreConfig) (Provider, error) {
	keyDir := cfg.File.KeyDir
	if keyDir == "" {
		keyDir = "./keys"
	}
	p, err := NewFileProvider(keyDir)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ownedStoreProvider closes the store it was created with.
type ownedStoreProvider struct {
	*StoreProvider
	store storage.KeyMaterialStore
}

func (p *ownedStoreProvider) Close() error {
	_ = p.StoreProvider.Close()
	return p.store.Close(context.Background())
}
