package store

import (
	"bytes"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/citygraph/pkg/buildinfo"
	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	graphio "github.com/matzehuels/citygraph/pkg/io"
)

// Mongo defaults.
const (
	DefaultMongoDatabase   = "citygraph"
	DefaultMongoCollection = "graphs"
)

// MongoOptions configures [NewMongoStore].
type MongoOptions struct {
	URI        string
	Database   string // default DefaultMongoDatabase
	Collection string // default DefaultMongoCollection
}

// MongoStore keeps one record per graph name.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// mongoRecord is the stored form of a graph. The document is kept as JSON
// text so that it reads back exactly as written.
type mongoRecord struct {
	Name        string         `bson:"_id"`
	Document    string         `bson:"document"`
	Nodes       int            `bson:"nodes"`
	Edges       int            `bson:"edges"`
	NodeTypes   map[string]int `bson:"node_types"`
	PublishedAt time.Time      `bson:"published_at"`
	Version     string         `bson:"version"`
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mongo uri is required (set %s)", EnvMongoURI)
	}
	if opts.Database == "" {
		opts.Database = DefaultMongoDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultMongoCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailure, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeStoreFailure, err, "ping mongo")
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(opts.Database).Collection(opts.Collection),
	}, nil
}

func (s *MongoStore) Backend() string { return BackendMongo }

func (s *MongoStore) Publish(ctx context.Context, name string, g *graph.Graph) error {
	rec, err := newMongoRecord(name, g, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": name}, rec, options.Replace().SetUpsert(true))
	return err
}

// Fetch reads a published graph back. A missing name is InputNotFound.
func (s *MongoStore) Fetch(ctx context.Context, name string) (*graph.Graph, error) {
	var rec mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeInputNotFound, "no graph named %q in mongo", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailure, err, "fetch %s", name)
	}
	return graphio.ReadJSON(bytes.NewReader([]byte(rec.Document)))
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func newMongoRecord(name string, g *graph.Graph, now time.Time) (mongoRecord, error) {
	doc, err := encode(g)
	if err != nil {
		return mongoRecord{}, err
	}
	types := make(map[string]int)
	for t, n := range g.CountByType() {
		types[string(t)] = n
	}
	return mongoRecord{
		Name:        name,
		Document:    string(doc),
		Nodes:       g.NodeCount(),
		Edges:       g.EdgeCount(),
		NodeTypes:   types,
		PublishedAt: now,
		Version:     buildinfo.Short(),
	}, nil
}
