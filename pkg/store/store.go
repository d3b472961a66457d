// Package store is the document-store layer of spec.md §3, backed by
// MongoDB via go.mongodb.org/mongo-driver (grounded on the Caqil-vyrall
// and Caqil-social-media-api repository/service shapes in the example
// pack's other_examples/ — a *mongo.Collection held per entity, with
// primitive.ObjectID identifiers and a context-scoped call on every
// operation). The teacher's own persistence idiom (a struct wrapping a
// driver handle, constructed once, passed down) is kept; only the driver
// changes, since spec.md's data model is explicitly Mongo-style and
// tolerates dangling foreign references a relational schema would
// reject.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store owns the Mongo client and exposes the collections each
// repository-like accessor in this package needs.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials Mongo with a bounded startup timeout. An unreachable
// store is fatal at startup per spec.md §6.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(name string) *mongo.Collection { return s.db.Collection(name) }

// EnsureIndexes creates the indexes the invariants in spec.md §3 depend
// on: uniqueness for Like/Follow, and a TTL purge for soft-deleted
// posts. Safe to call on every startup — index creation is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	likeIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "targetType", Value: 1}, {Key: "targetId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.collection("likes").Indexes().CreateOne(ctx, likeIdx); err != nil {
		return fmt.Errorf("store: ensure like index: %w", err)
	}

	followIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "followerId", Value: 1}, {Key: "followingId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.collection("follows").Indexes().CreateOne(ctx, followIdx); err != nil {
		return fmt.Errorf("store: ensure follow index: %w", err)
	}

	postTTLIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetSparse(true),
	}
	if _, err := s.collection("posts").Indexes().CreateOne(ctx, postTTLIdx); err != nil {
		return fmt.Errorf("store: ensure post ttl index: %w", err)
	}
	return nil
}
