package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pkhunter/config"
)

// ConnectMongoDB connects and pings the configured MongoDB server.
func ConnectMongoDB(cfg *config.MongoDBConfig) (*mongo.Client, error) {
	ctx, cancel := NewContextWithTimeout(timeoutOr(cfg.Timeout))
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// CloseMongoDB disconnects the client.
func CloseMongoDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := NewContext()
	defer cancel()
	return client.Disconnect(ctx)
}
