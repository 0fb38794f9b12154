// internal/output/mongodb.go
package output

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

// MongoDBSaver inserts one document per record, keyed by the record id.
type MongoDBSaver struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     utils.Logger
}

// NewMongoDBSaver connects to uri and ensures the url index exists.
func NewMongoDBSaver(ctx context.Context, uri, database, collection string, logger utils.Logger) (*MongoDBSaver, error) {
	if uri == "" {
		return nil, fmt.Errorf("MongoDB connection string is required")
	}
	if database == "" {
		return nil, fmt.Errorf("MongoDB database name is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("MongoDB collection name is required")
	}
	if logger == nil {
		logger = utils.NewComponentLogger("output")
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}, {Key: "scraped_at", Value: -1}},
		Options: options.Index().SetName("url_scraped_at"),
	})
	if err != nil {
		logger.Warnf("failed to create MongoDB index: %v", err)
	}

	logger.Infof("writing records to MongoDB database %s, collection %s", database, collection)
	return &MongoDBSaver{client: client, collection: coll, logger: logger}, nil
}

// Save inserts the records. Duplicate ids are skipped.
func (s *MongoDBSaver) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert into MongoDB: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoDBSaver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
