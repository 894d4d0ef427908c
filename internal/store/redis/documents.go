// Package redis stores confirmation documents as JSON values in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultKeyPrefix namespaces document keys.
const DefaultKeyPrefix = "confirmation:"

const (
	connectionTimeout = 5 * time.Second
	maxUpdateRetries  = 5
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Config holds Redis connection configuration.
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// DocumentStore implements trip.DocumentStore on Redis.
type DocumentStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	clock  trip.Clock
}

// NewDocumentStore wraps an existing client.
func NewDocumentStore(client *redis.Client, cfg Config, clock trip.Clock) (*DocumentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &DocumentStore{client: client, prefix: prefix, ttl: cfg.TTL, clock: clock}, nil
}

func (s *DocumentStore) key(id string) string {
	return s.prefix + id
}

// Get loads the document stored under id.
func (s *DocumentStore) Get(ctx context.Context, id string) (trip.ConfirmationDocument, error) {
	return s.load(ctx, s.client, id)
}

// Set stores doc under id with the configured TTL.
func (s *DocumentStore) Set(ctx context.Context, id string, doc trip.ConfirmationDocument) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", id, err)
	}
	return nil
}

// Update applies patch under WATCH so concurrent writers retry instead of
// overwriting each other. Absent ids return ErrNotFound and nothing is written.
func (s *DocumentStore) Update(ctx context.Context, id string, patch trip.DocumentPatch) (trip.ConfirmationDocument, error) {
	var updated trip.ConfirmationDocument
	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		doc, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = doc.Apply(patch, s.clock.Now())
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return trip.ConfirmationDocument{}, err
		}
		return updated, nil
	}
	return trip.ConfirmationDocument{}, fmt.Errorf("redis update %s: too many concurrent writers", id)
}

func (s *DocumentStore) load(ctx context.Context, c redis.Cmdable, id string) (trip.ConfirmationDocument, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return trip.ConfirmationDocument{}, fmt.Errorf("document %q: %w", id, trip.ErrNotFound)
	}
	if err != nil {
		return trip.ConfirmationDocument{}, fmt.Errorf("redis get %s: %w", id, err)
	}
	var doc trip.ConfirmationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return trip.ConfirmationDocument{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}
