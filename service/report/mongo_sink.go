package report

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"pkhunter/database"
	"pkhunter/models"
)

// MongoSink stores each row as a document tagged with the scan id.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	scanID     string
}

// NewMongoSink takes ownership of client; Close disconnects it.
func NewMongoSink(client *mongo.Client, database, collection, scanID string) *MongoSink {
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
		scanID:     scanID,
	}
}

func (s *MongoSink) Write(ctx context.Context, row models.ReportRow) error {
	doc := models.KitDocument{
		ScanID:    s.scanID,
		Row:       row,
		CreatedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, database.DefaultDBTimeout)
	defer cancel()
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert report row: %w", err)
	}
	return nil
}

func (s *MongoSink) Close() error {
	return database.CloseMongoDB(s.client)
}
