// Package docstore holds the MongoDB repositories for player reports, their
// reference collections and the prices collection.
package docstore

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names.
const (
	CollPrices        = "prices"
	CollPlayerReports = "playerreports"
	CollSeasonIDs     = "seasonids"
	CollSpecificities = "specificities"
)

// Config configures the Mongo client.
type Config struct {
	URL            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// Client is a connected Mongo database handle.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials Mongo and verifies the connection with a ping.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, eris.New("docstore: connection url is empty")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := options.Client().ApplyURI(cfg.URL).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, eris.Wrap(err, "docstore: connect")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "docstore: ping")
	}

	zap.L().Info("connected to mongo", zap.String("database", cfg.Database))
	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return eris.Wrap(err, "docstore: disconnect")
	}
	return nil
}

// Prices returns the prices repository.
func (c *Client) Prices() *PriceRepo {
	return NewPriceRepo(c.db.Collection(CollPrices))
}

// Reports returns the player report repository.
func (c *Client) Reports() *ReportRepo {
	return NewReportRepo(
		c.db.Collection(CollPlayerReports),
		c.db.Collection(CollPrices),
		c.db.Collection(CollSeasonIDs),
		c.db.Collection(CollSpecificities),
	)
}

// EnsureIndexes creates the unique id index on prices. Concurrent upserts of a
// new player id rely on it to fail instead of creating a second document.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	_, err := c.db.Collection(CollPrices).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("prices_id_unique"),
	})
	if err != nil {
		return eris.Wrap(err, "docstore: ensure prices index")
	}
	return nil
}
