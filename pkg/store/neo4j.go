package store

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
)

// DefaultNeo4jBatchSize is how many rows one UNWIND statement sends.
const DefaultNeo4jBatchSize = 1000

// Neo4jOptions configures [NewNeo4jPublisher].
type Neo4jOptions struct {
	URI       string
	User      string
	Password  string
	Database  string // server default when empty
	BatchSize int    // default DefaultNeo4jBatchSize
}

// Neo4jPublisher writes graphs as (:CityNode)-[:CONNECTS]->(:CityNode).
// Every node carries a graph property holding the published name, and a
// publish first deletes all nodes of that name.
type Neo4jPublisher struct {
	driver neo4j.DriverWithContext
	opts   Neo4jOptions
}

const (
	cypherClear = `MATCH (n:CityNode {graph: $graph}) DETACH DELETE n`

	cypherNodes = `
		UNWIND $rows AS row
		CREATE (n:CityNode {graph: $graph, id: row.id, type: row.type})
		SET n.x = row.x, n.y = row.y`

	cypherEdges = `
		UNWIND $rows AS row
		MATCH (a:CityNode {graph: $graph, id: row.u})
		MATCH (b:CityNode {graph: $graph, id: row.v})
		CREATE (a)-[:CONNECTS {type: row.type, distance: row.distance, line: row.line}]->(b)`
)

// NewNeo4jPublisher creates a driver and verifies connectivity.
func NewNeo4jPublisher(ctx context.Context, opts Neo4jOptions) (*Neo4jPublisher, error) {
	if opts.URI == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "neo4j uri is required (set %s)", EnvNeo4jURI)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultNeo4jBatchSize
	}

	auth := neo4j.NoAuth()
	if opts.User != "" {
		auth = neo4j.BasicAuth(opts.User, opts.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, auth)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "neo4j driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.Wrap(errors.ErrCodeStoreFailure, err, "connect to neo4j")
	}
	return &Neo4jPublisher{driver: driver, opts: opts}, nil
}

func (p *Neo4jPublisher) Backend() string { return BackendNeo4j }

// Publish replaces the graph stored under name in one write transaction.
func (p *Neo4jPublisher) Publish(ctx context.Context, name string, g *graph.Graph) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: p.opts.Database,
	})
	defer session.Close(ctx)

	nodes, edges := nodeRows(g), edgeRows(g)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, cypherClear, map[string]any{"graph": name}); err != nil {
			return nil, err
		}
		for _, batch := range batches(nodes, p.opts.BatchSize) {
			if _, err := tx.Run(ctx, cypherNodes, map[string]any{"graph": name, "rows": batch}); err != nil {
				return nil, err
			}
		}
		for _, batch := range batches(edges, p.opts.BatchSize) {
			if _, err := tx.Run(ctx, cypherEdges, map[string]any{"graph": name, "rows": batch}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (p *Neo4jPublisher) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

// nodeRows flattens nodes into driver parameters. Nodes without
// coordinates get null x and y.
func nodeRows(g *graph.Graph) []any {
	rows := make([]any, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		row := map[string]any{"id": n.ID, "type": string(n.Type), "x": nil, "y": nil}
		if n.HasPos {
			row["x"], row["y"] = n.Pos[0], n.Pos[1]
		}
		rows = append(rows, row)
	}
	return rows
}

// edgeRows flattens edges. Lines become flat [x0, y0, x1, y1, ...] lists
// since Neo4j properties cannot hold nested lists.
func edgeRows(g *graph.Graph) []any {
	rows := make([]any, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		line := make([]any, 0, 2*len(e.Line))
		for _, p := range e.Line {
			line = append(line, p[0], p[1])
		}
		rows = append(rows, map[string]any{
			"u":        e.U,
			"v":        e.V,
			"type":     string(e.Type),
			"distance": e.Distance,
			"line":     line,
		})
	}
	return rows
}

func batches(rows []any, size int) [][]any {
	var out [][]any
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
