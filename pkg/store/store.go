// Package store publishes finished graphs to long-lived destinations.
//
// Three backends implement [Publisher]:
//
//   - [FileStore] writes graph documents below a directory
//   - [MongoStore] keeps one document per graph name in a MongoDB collection
//   - [Neo4jPublisher] replaces the nodes and relationships of a graph name
//     in a Neo4j database
//
// Use [Publish] instead of calling a backend directly: it validates the
// name, times the call and reports it to the registered
// [observability.StoreHooks].
package store

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	graphio "github.com/matzehuels/citygraph/pkg/io"
	"github.com/matzehuels/citygraph/pkg/observability"
)

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendMongo = "mongo"
	BackendNeo4j = "neo4j"
)

// Environment variables read by [ConfigFromEnv].
const (
	EnvMongoURI      = "CITYGRAPH_MONGO_URI"
	EnvNeo4jURI      = "CITYGRAPH_NEO4J_URI"
	EnvNeo4jUser     = "CITYGRAPH_NEO4J_USER"
	EnvNeo4jPassword = "CITYGRAPH_NEO4J_PASSWORD"
)

// Publisher stores a graph under a name, replacing whatever was stored
// under that name before.
type Publisher interface {
	Backend() string
	Publish(ctx context.Context, name string, g *graph.Graph) error
	Close(ctx context.Context) error
}

// Config selects and configures a backend for [Open].
type Config struct {
	Dir   string // FileStore root
	Mongo MongoOptions
	Neo4j Neo4jOptions
}

// ConfigFromEnv fills the connection settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		Mongo: MongoOptions{URI: os.Getenv(EnvMongoURI)},
		Neo4j: Neo4jOptions{
			URI:      os.Getenv(EnvNeo4jURI),
			User:     os.Getenv(EnvNeo4jUser),
			Password: os.Getenv(EnvNeo4jPassword),
		},
	}
}

// Open connects to the named backend.
func Open(ctx context.Context, backend string, cfg Config) (Publisher, error) {
	var (
		p   Publisher
		err error
	)
	switch backend {
	case BackendFile:
		p, err = NewFileStore(cfg.Dir)
	case BackendMongo:
		p, err = NewMongoStore(ctx, cfg.Mongo)
	case BackendNeo4j:
		p, err = NewNeo4jPublisher(ctx, cfg.Neo4j)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown store backend %q (must be one of: file, mongo, neo4j)", backend)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Publish validates name and stores g with p.
func Publish(ctx context.Context, p Publisher, name string, g *graph.Graph) error {
	if err := errors.ValidatePath(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := p.Publish(ctx, name, g)
	observability.Store().OnPublish(ctx, p.Backend(), g.NodeCount(), g.EdgeCount(), time.Since(start), err)
	if err != nil && errors.GetCode(err) == "" {
		err = errors.Wrap(errors.ErrCodeStoreFailure, err, "publish %s to %s", name, p.Backend())
	}
	return err
}

// encode renders g as a graph document.
func encode(g *graph.Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := graphio.WriteJSON(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
