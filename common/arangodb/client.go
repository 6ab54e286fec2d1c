package arangodb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

var ErrNotFound = errors.New("document not found")

const graphName = "grounded_theory"

var nodeCollections = []NodeKind{NodeProject, NodeInterview, NodeFragment, NodeCode, NodeCategory, NodeClaim}

var edgeDefinitions = []arangodb.EdgeDefinition{
	{Collection: string(EdgeHasInterview), From: []string{string(NodeProject)}, To: []string{string(NodeInterview)}},
	{Collection: string(EdgeHasFragment), From: []string{string(NodeInterview)}, To: []string{string(NodeFragment)}},
	{Collection: string(EdgeHasCode), From: []string{string(NodeProject)}, To: []string{string(NodeCode)}},
	{Collection: string(EdgeHasCategory), From: []string{string(NodeProject)}, To: []string{string(NodeCategory)}},
	{Collection: string(EdgeHasClaim), From: []string{string(NodeProject)}, To: []string{string(NodeClaim)}},
	{Collection: string(EdgeContains), From: []string{string(NodeCategory)}, To: []string{string(NodeCode)}},
	{Collection: string(EdgeAppliesTo), From: []string{string(NodeCode)}, To: []string{string(NodeFragment)}},
	{Collection: string(EdgeCodedAs), From: []string{string(NodeCode)}, To: []string{string(NodeFragment)}},
	{Collection: string(EdgeCoOccursWith), From: []string{string(NodeCategory)}, To: []string{string(NodeCategory)}},
	{Collection: string(EdgeAbout), From: []string{string(NodeClaim)}, To: []string{string(NodeCategory)}},
	{Collection: string(EdgeSupportedBy), From: []string{string(NodeClaim)}, To: []string{string(NodeFragment)}},
	{Collection: string(EdgeContradictedBy), From: []string{string(NodeClaim)}, To: []string{string(NodeFragment)}},
}

// Client is the graph store adapter. Every write is expressed as an
// UNWIND over a row set so a single round-trip updates N nodes/edges, and
// every write uses MERGE/upsert semantics so repeated syncs are idempotent.
type Client interface {
	EnsureDatabase(ctx context.Context) error
	EnsureCollections(ctx context.Context) error
	EnsureGraph(ctx context.Context) error

	UpsertNodes(ctx context.Context, kind NodeKind, nodes []Node) error
	UpsertEdges(ctx context.Context, kind EdgeKind, edges []Edge) error

	// CategoryMetrics computes per-category code and fragment degree for a
	// project. It does not compute PageRank or weighted degree: PageRank and
	// GDSDegree are always left zero and HasAlgoMetrics false, whether or not
	// an algorithmic graph extension is installed.
	CategoryMetrics(ctx context.Context, projectID string) ([]CategoryDegree, error)

	// SyncCoOccurrence materialises CO_OCCURS_WITH edges from fragment overlap
	// between categories (via their coded fragments) for a project.
	SyncCoOccurrence(ctx context.Context, projectID string) ([]CoOccurrence, error)

	// DeleteProject cascades a delete across every node/edge collection that
	// references projectID. There is no foreign-key engine in ArangoDB, so
	// each collection is iterated explicitly under the project id.
	DeleteProject(ctx context.Context, projectID string) error

	Close() error
}

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

type client struct {
	conn         connection.Connection
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          Config
}

func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	arangoClient := arangodb.NewClient(conn)

	return &client{
		conn:         conn,
		arangoClient: arangoClient,
		cfg:          cfg,
	}, nil
}

func (c *client) Close() error {
	return nil
}

func (c *client) EnsureDatabase(ctx context.Context) error {
	start := time.Now()

	exists, err := c.arangoClient.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		if _, err := c.arangoClient.CreateDatabase(ctx, c.cfg.Database, nil); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created",
			"database", c.cfg.Database,
			"duration_ms", time.Since(start).Milliseconds())
	}

	db, err := c.arangoClient.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	c.db = db

	return nil
}

func (c *client) EnsureCollections(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	for _, kind := range nodeCollections {
		if err := c.ensureCollection(ctx, string(kind), false); err != nil {
			return err
		}
	}

	for _, def := range edgeDefinitions {
		if err := c.ensureCollection(ctx, def.Collection, true); err != nil {
			return err
		}
	}

	if err := c.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	return nil
}

// ensureIndexes creates a project_id index on every node collection, since
// almost every query is scoped by project.
func (c *client) ensureIndexes(ctx context.Context) error {
	for _, kind := range nodeCollections {
		col, err := c.db.GetCollection(ctx, string(kind), nil)
		if err != nil {
			return fmt.Errorf("get collection %s: %w", kind, err)
		}

		_, isNew, err := col.EnsurePersistentIndex(ctx, []string{"project_id"}, &arangodb.CreatePersistentIndexOptions{
			Name: "idx_project_id",
		})
		if err != nil {
			return fmt.Errorf("ensure project_id index on %s: %w", kind, err)
		}
		if isNew {
			slog.InfoContext(ctx, "arangodb index created", "collection", kind, "index", "idx_project_id")
		}
	}

	return nil
}

func (c *client) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}

	if !exists {
		props := &arangodb.CreateCollectionPropertiesV2{}
		colType := arangodb.CollectionTypeDocument
		if isEdge {
			colType = arangodb.CollectionTypeEdge
		}
		props.Type = &colType

		if _, err := c.db.CreateCollectionV2(ctx, name, props); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		slog.InfoContext(ctx, "arangodb collection created", "collection", name, "is_edge", isEdge)
	}

	return nil
}

func (c *client) EnsureGraph(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	exists, err := c.db.GraphExists(ctx, graphName)
	if err != nil {
		return fmt.Errorf("check graph exists: %w", err)
	}
	if exists {
		return nil
	}

	graphDef := &arangodb.GraphDefinition{
		Name:            graphName,
		EdgeDefinitions: edgeDefinitions,
	}

	if _, err := c.db.CreateGraph(ctx, graphName, graphDef, nil); err != nil {
		return fmt.Errorf("create graph: %w", err)
	}

	slog.InfoContext(ctx, "arangodb graph created", "graph", graphName)
	return nil
}

// UpsertNodes writes node documents with MERGE (upsert-on-key) semantics so
// repeated syncs of the same entity converge rather than duplicate.
func (c *client) UpsertNodes(ctx context.Context, kind NodeKind, nodes []Node) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if len(nodes) == 0 {
		return nil
	}

	start := time.Now()

	rows := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		doc := map[string]any{"_key": makeKey(n.ID), "id": n.ID}
		for k, v := range n.Properties {
			doc[k] = v
		}
		rows[i] = doc
	}

	query := fmt.Sprintf(`
		FOR row IN @rows
			UPSERT { _key: row._key }
			INSERT row
			UPDATE row
			IN %s
	`, kind)

	if _, err := c.runQuery(ctx, query, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert nodes into %s: %w", kind, err)
	}

	slog.DebugContext(ctx, "arangodb nodes upserted",
		"collection", kind, "count", len(nodes), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// UpsertEdges writes edge documents with MERGE semantics keyed on
// (from, to, kind) so the same logical edge is never duplicated.
func (c *client) UpsertEdges(ctx context.Context, kind EdgeKind, edges []Edge) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if len(edges) == 0 {
		return nil
	}

	start := time.Now()

	rows := make([]map[string]any, len(edges))
	for i, e := range edges {
		row := map[string]any{
			"_key":  makeEdgeKey(e.From, e.To, string(kind)),
			"_from": fmt.Sprintf("%s/%s", e.FromKind, makeKey(e.From)),
			"_to":   fmt.Sprintf("%s/%s", e.ToKind, makeKey(e.To)),
		}
		for k, v := range e.Properties {
			row[k] = v
		}
		rows[i] = row
	}

	query := fmt.Sprintf(`
		FOR row IN @rows
			UPSERT { _key: row._key }
			INSERT row
			UPDATE row
			IN %s
	`, kind)

	if _, err := c.runQuery(ctx, query, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert edges into %s: %w", kind, err)
	}

	slog.DebugContext(ctx, "arangodb edges upserted",
		"collection", kind, "count", len(edges), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// CategoryMetrics computes code_degree/fragment_degree per category from
// CONTAINS and CODED_AS edges. PageRank and weighted degree are not
// computed on any deployment; the returned rows leave PageRank/GDSDegree
// zero and HasAlgoMetrics false.
func (c *client) CategoryMetrics(ctx context.Context, projectID string) ([]CategoryDegree, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := fmt.Sprintf(`
		FOR cat IN %s
			FILTER cat.project_id == @project_id
			LET codes = (FOR e IN %s FILTER e._from == CONCAT("%s/", cat._key) RETURN e._to)
			LET frags = (
				FOR codeId IN codes
					FOR e IN %s FILTER e._from == codeId RETURN DISTINCT e._to
			)
			RETURN { category_id: cat.id, code_degree: LENGTH(codes), fragment_degree: LENGTH(frags) }
	`, NodeCategory, EdgeContains, NodeCategory, EdgeCodedAs)

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{"project_id": projectID}})
	if err != nil {
		return nil, fmt.Errorf("query category metrics: %w", err)
	}
	defer cursor.Close()

	var results []CategoryDegree
	for cursor.HasMore() {
		var row struct {
			CategoryID     string `json:"category_id"`
			CodeDegree     int    `json:"code_degree"`
			FragmentDegree int    `json:"fragment_degree"`
		}
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, fmt.Errorf("read category metrics row: %w", err)
		}
		results = append(results, CategoryDegree{
			CategoryID:     row.CategoryID,
			CodeDegree:     row.CodeDegree,
			FragmentDegree: row.FragmentDegree,
		})
	}

	return results, nil
}

// SyncCoOccurrence materialises CO_OCCURS_WITH edges between categories that
// share at least one coded fragment, weighted by the number of shared
// fragments, and returns the computed list.
func (c *client) SyncCoOccurrence(ctx context.Context, projectID string) ([]CoOccurrence, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := fmt.Sprintf(`
		FOR catA IN %s
			FILTER catA.project_id == @project_id
			FOR catB IN %s
				FILTER catB.project_id == @project_id AND catA._key < catB._key
				LET fragsA = (
					FOR e1 IN %s FILTER e1._from == CONCAT("%s/", catA._key)
						FOR e2 IN %s FILTER e2._from == e1._to RETURN e2._to
				)
				LET fragsB = (
					FOR e1 IN %s FILTER e1._from == CONCAT("%s/", catB._key)
						FOR e2 IN %s FILTER e2._from == e1._to RETURN e2._to
				)
				LET shared = LENGTH(INTERSECTION(fragsA, fragsB))
				FILTER shared > 0
				RETURN { category_a: catA.id, category_b: catB.id, count: shared }
	`, NodeCategory, NodeCategory, EdgeContains, NodeCategory, EdgeCodedAs, EdgeContains, NodeCategory, EdgeCodedAs)

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: map[string]any{"project_id": projectID}})
	if err != nil {
		return nil, fmt.Errorf("query co-occurrence: %w", err)
	}
	defer cursor.Close()

	var pairs []CoOccurrence
	var edges []Edge
	for cursor.HasMore() {
		var row struct {
			CategoryA string `json:"category_a"`
			CategoryB string `json:"category_b"`
			Count     int    `json:"count"`
		}
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, fmt.Errorf("read co-occurrence row: %w", err)
		}
		weight := float64(row.Count)
		pairs = append(pairs, CoOccurrence{CategoryA: row.CategoryA, CategoryB: row.CategoryB, Count: row.Count, Weight: weight})
		edges = append(edges, Edge{
			From: row.CategoryA, To: row.CategoryB,
			FromKind: NodeCategory, ToKind: NodeCategory,
			Properties: map[string]any{"count": row.Count, "weight": weight},
		})
	}

	if err := c.UpsertEdges(ctx, EdgeCoOccursWith, edges); err != nil {
		return nil, fmt.Errorf("sync co-occurrence edges: %w", err)
	}

	return pairs, nil
}

// DeleteProject cascades a delete across every collection, since ArangoDB
// has no foreign-key engine: each node/edge collection is iterated under the
// project id the way a relational cascade would walk child tables.
func (c *client) DeleteProject(ctx context.Context, projectID string) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	for _, kind := range nodeCollections {
		query := fmt.Sprintf(`FOR d IN %s FILTER d.project_id == @project_id REMOVE d IN %s`, kind, kind)
		if _, err := c.runQuery(ctx, query, map[string]any{"project_id": projectID}); err != nil {
			return fmt.Errorf("delete nodes from %s: %w", kind, err)
		}
	}

	// Edges have no project_id of their own; once their endpoint nodes are
	// gone, sweep the now-dangling edges out of every edge collection.
	for _, def := range edgeDefinitions {
		query := fmt.Sprintf(`
			FOR d IN %s
				FILTER DOCUMENT(d._from) == null OR DOCUMENT(d._to) == null
				REMOVE d IN %s
		`, def.Collection, def.Collection)
		if _, err := c.runQuery(ctx, query, nil); err != nil {
			return fmt.Errorf("sweep dangling edges in %s: %w", def.Collection, err)
		}
	}

	return nil
}

func (c *client) runQuery(ctx context.Context, query string, bindVars map[string]any) (arangodb.Cursor, error) {
	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	return cursor, nil
}

func makeKey(id string) string {
	hash := md5.Sum([]byte(id))
	return hex.EncodeToString(hash[:])[:24]
}

func makeEdgeKey(from, to, kind string) string {
	combined := kind + "->" + from + "->" + to
	hash := md5.Sum([]byte(combined))
	return hex.EncodeToString(hash[:])[:24]
}
