// Package mongodb implements storage.KeyMaterialStore using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-as4-wssec/internal/storage"
)

const (
	defaultDatabase   = "as4wssec"
	defaultCollection = "key_material"
	defaultRetries    = 5
)

// Store implements storage.KeyMaterialStore using MongoDB
type Store struct {
	client *mongo.Client
	keys   *mongo.Collection
}

var _ storage.KeyMaterialStore = (*Store)(nil)

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string

	// ConnectRetries bounds the ping attempts made while the server is
	// starting up
	ConnectRetries uint64
	Timeout        time.Duration
}

// NewStore connects to MongoDB and waits until the server answers a ping.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		clientOpts.SetConnectTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	retries := cfg.ConnectRetries
	if retries == 0 {
		retries = defaultRetries
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(func() error { return client.Ping(ctx, nil) }, policy); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	return &Store{
		client: client,
		keys:   client.Database(database).Collection(collection),
	}, nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) GetKeyMaterial(ctx context.Context, alias string) (*storage.KeyMaterial, error) {
	var km storage.KeyMaterial
	err := s.keys.FindOne(ctx, bson.M{"_id": alias}).Decode(&km)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding key material %s: %w", alias, err)
	}
	return &km, nil
}

func (s *Store) PutKeyMaterial(ctx context.Context, km *storage.KeyMaterial) error {
	doc := km.Clone()
	doc.UpdatedAt = time.Now()

	opts := options.Replace().SetUpsert(true)
	if _, err := s.keys.ReplaceOne(ctx, bson.M{"_id": km.Alias}, doc, opts); err != nil {
		return fmt.Errorf("storing key material %s: %w", km.Alias, err)
	}
	return nil
}

func (s *Store) DeleteKeyMaterial(ctx context.Context, alias string) error {
	res, err := s.keys.DeleteOne(ctx, bson.M{"_id": alias})
	if err != nil {
		return fmt.Errorf("deleting key material %s: %w", alias, err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListAliases(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.keys.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var aliases []string
	for cursor.Next(ctx) {
		var doc struct {
			Alias string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		aliases = append(aliases, doc.Alias)
	}
	return aliases, cursor.Err()
}
