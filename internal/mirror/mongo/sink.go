// Package mongo mirrors committed collections into MongoDB.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"farmScope/internal/cache"
	"farmScope/internal/mirror"
)

const DefaultDatabase = "ref_finance"

// collectionNames maps cache collections to the mirror's collection names.
var collectionNames = map[string]string{
	cache.CollectionTokenMetadata: "ft_metadata",
	cache.CollectionFarms:         "farms",
	cache.CollectionPools:         "pools",
}

// CollectionName returns the Mongo collection a cache collection is mirrored to.
func CollectionName(collection string) string {
	if name, ok := collectionNames[collection]; ok {
		return name
	}
	return collection
}

type Sink struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

func NewSink(ctx context.Context, uri, database string, logger *zap.Logger) (*Sink, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if database == "" {
		database = DefaultDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Sink{client: client, db: client.Database(database), logger: logger}, nil
}

func (s *Sink) InsertMany(ctx context.Context, collection string, records []interface{}) error {
	if len(records) == 0 {
		return nil
	}
	name := CollectionName(collection)
	res, err := s.db.Collection(name).InsertMany(ctx, records, options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("insert into %s: %w", name, err)
	}
	s.logger.Debug("mirrored records", zap.String("collection", name), zap.Int("inserted", len(res.InsertedIDs)))
	return nil
}

func (s *Sink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ mirror.Sink = (*Sink)(nil)
