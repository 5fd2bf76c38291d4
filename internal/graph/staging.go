package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const tracerName = "github.com/factgraph/factgraph/internal/graph"

// StagingConfig holds staging store tuning knobs. The zero value is usable;
// unset fields fall back to defaults.
type StagingConfig struct {
	// Path is the SQLite database file, or ":memory:" for testing.
	Path string

	// MaxRetries bounds the lock-contention retry schedule.
	MaxRetries int

	// BackoffBase is the initial retry delay; doubles per attempt.
	BackoffBase time.Duration

	Logger *slog.Logger
}

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// StagingStore durably accumulates a property graph from repeatedly-submitted,
// possibly overlapping payload batches. It is the single source of truth for
// the local graph; the remote store is a derived projection written only by
// the Syncer.
type StagingStore struct {
	db          *sql.DB
	maxRetries  int
	backoffBase time.Duration
	log         *slog.Logger
}

// OpenStaging opens or creates the staging database and applies the schema.
func OpenStaging(ctx context.Context, cfg StagingConfig) (*StagingStore, error) {
	db, err := sql.Open("sqlite", stagingDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if cfg.Path == ":memory:" {
		// The pool would otherwise hand each connection its own
		// private in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	s := &StagingStore{
		db:          db,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		log:         cfg.Logger,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.backoffBase <= 0 {
		s.backoffBase = defaultBackoffBase
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// stagingDSN builds a file URI carrying the per-connection pragmas.
func stagingDSN(path string) string {
	params := make([]string, 0, len(connectionPragmas()))
	for _, p := range connectionPragmas() {
		params = append(params, "_pragma="+p)
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Close closes the underlying database.
func (s *StagingStore) Close() error {
	return s.db.Close()
}

// UpsertPayloads merges a payload batch into the store as one transaction
// using the two-pass protocol: all nodes are written before any edge is
// resolved, so edges may reference nodes introduced earlier in the same
// batch. Node data merges shallowly with incoming values winning; edges
// insert-if-absent; edges whose target never resolves are dropped silently.
//
// The whole batch rolls back on any error. Write-lock contention is retried
// with exponential backoff up to the configured bound, then surfaced as a
// *TransientError; the caller may re-submit the batch verbatim.
func (s *StagingStore) UpsertPayloads(ctx context.Context, payloads []NodePayload) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "StagingStore.UpsertPayloads")
	defer span.End()
	span.SetAttributes(attribute.Int("payload.count", len(payloads)))

	for i := range payloads {
		if err := payloads[i].Validate(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	op := func() error {
		err := s.upsertTx(ctx, payloads)
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.backoffBase
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxRetries)), ctx))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if isBusy(err) {
			s.log.Warn("staging upsert exhausted retries", "payloads", len(payloads), "error", err)
			return &TransientError{Err: err}
		}
		return err
	}

	s.log.Debug("staged payload batch", "payloads", len(payloads))
	return nil
}

// upsertTx performs both passes inside a single transaction.
func (s *StagingStore) upsertTx(ctx context.Context, payloads []NodePayload) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Pass 1: upsert all nodes.
	for i := range payloads {
		if err := s.upsertNode(ctx, tx, &payloads[i]); err != nil {
			return err
		}
	}

	// Pass 2: insert all resolvable edges.
	for i := range payloads {
		p := &payloads[i]
		if len(p.Edges) == 0 {
			continue
		}

		fromID, err := nodeID(ctx, tx, p.NodeType, p.LookupKey)
		if err != nil {
			return err
		}

		for _, e := range p.Edges {
			toID, err := nodeID(ctx, tx, e.ToNodeType, e.ToLookupKey)
			if err == ErrNodeNotFound {
				// Target was never staged; drop the edge rather
				// than store it dangling.
				s.log.Debug("dropping unresolvable edge",
					"from", p.LookupKey, "to", e.ToLookupKey, "edge_type", e.EdgeType)
				continue
			}
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO edges (from_id, to_id, edge_type) VALUES (?, ?, ?)`,
				fromID, toID, e.EdgeType)
			if err != nil {
				return fmt.Errorf("inserting edge: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// upsertNode writes one node, merging stored data with the incoming map.
// Incoming values win on key collision; keys absent from the incoming map
// are preserved. The merged map is marshaled with sorted keys, so writing
// the same facts twice leaves the row bytes (and updated_at) unchanged.
func (s *StagingStore) upsertNode(ctx context.Context, tx *sql.Tx, p *NodePayload) error {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM nodes WHERE node_type = ? AND lookup_key = ?`,
		p.NodeType, p.LookupKey).Scan(&existing)

	merged := p.Data
	switch {
	case err == sql.ErrNoRows:
		// First sighting; store incoming data as-is.
	case err != nil:
		return fmt.Errorf("looking up node %s: %w", p.LookupKey, err)
	default:
		prior := make(map[string]string)
		if err := json.Unmarshal([]byte(existing), &prior); err != nil {
			return fmt.Errorf("decoding stored data for %s: %w", p.LookupKey, err)
		}
		for k, v := range p.Data {
			prior[k] = v
		}
		merged = prior
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding data for %s: %w", p.LookupKey, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (node_type, sub_type, lookup_key, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_type, lookup_key) DO UPDATE SET data = excluded.data
	`, p.NodeType, p.SubType, p.LookupKey, string(data))
	if err != nil {
		return fmt.Errorf("upserting node %s: %w", p.LookupKey, err)
	}
	return nil
}

// GetNode returns the node with the given natural key, or ErrNodeNotFound.
func (s *StagingStore) GetNode(ctx context.Context, nodeType, lookupKey string) (*Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_type, sub_type, lookup_key, data, created_at, updated_at
		FROM nodes WHERE node_type = ? AND lookup_key = ?
	`, nodeType, lookupKey)
	return scanNode(row)
}

// ExportAll returns every staged node and edge.
func (s *StagingStore) ExportAll(ctx context.Context) (*Export, error) {
	export := &Export{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_type, sub_type, lookup_key, data, created_at, updated_at
		FROM nodes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		export.Nodes = append(export.Nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, edge_type, created_at
		FROM edges ORDER BY from_id, to_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		edge, err := scanEdge(edgeRows)
		if err != nil {
			return nil, err
		}
		export.Edges = append(export.Edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}

	return export, nil
}

// ExportSubgraph returns the connected component reachable from the root via
// undirected breadth-first traversal: every visited node's full record plus
// every edge whose both endpoints were visited. The root's absence is
// ErrNodeNotFound.
func (s *StagingStore) ExportSubgraph(ctx context.Context, rootType, rootKey string) (*Export, error) {
	root, err := s.GetNode(ctx, rootType, rootKey)
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]*Node)
	seenEdges := make(map[edgeKey]*Edge)
	queue := []int64{root.ID}
	visited[root.ID] = root

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		// Drain the cursor before any follow-up query; a nested
		// lookup while it is open would starve a single-connection
		// pool.
		incident, err := s.incidentEdges(ctx, id)
		if err != nil {
			return nil, err
		}

		for _, edge := range incident {
			seenEdges[edgeKey{edge.FromID, edge.ToID, edge.EdgeType}] = edge

			other := edge.ToID
			if other == id {
				other = edge.FromID
			}
			if _, ok := visited[other]; ok {
				continue
			}
			node, err := s.getNodeByID(ctx, other)
			if err != nil {
				return nil, err
			}
			visited[other] = node
			queue = append(queue, other)
		}
	}

	export := &Export{}
	for _, node := range visited {
		export.Nodes = append(export.Nodes, node)
	}
	for _, edge := range seenEdges {
		// Both endpoints are always visited here: BFS enqueues the far
		// endpoint of every incident edge it sees.
		export.Edges = append(export.Edges, edge)
	}
	return export, nil
}

// Stats returns node and edge counts grouped by type.
func (s *StagingStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		NodeTypes: make(map[string]int),
		EdgeTypes: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_type, COUNT(*) FROM nodes GROUP BY node_type`)
	if err != nil {
		return nil, fmt.Errorf("counting nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nodeType string
		var count int
		if err := rows.Scan(&nodeType, &count); err != nil {
			return nil, fmt.Errorf("scanning node count: %w", err)
		}
		stats.NodeTypes[nodeType] = count
		stats.NodeCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT edge_type, COUNT(*) FROM edges GROUP BY edge_type`)
	if err != nil {
		return nil, fmt.Errorf("counting edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var edgeType string
		var count int
		if err := edgeRows.Scan(&edgeType, &count); err != nil {
			return nil, fmt.Errorf("scanning edge count: %w", err)
		}
		stats.EdgeTypes[edgeType] = count
		stats.EdgeCount += count
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

type edgeKey struct {
	fromID   int64
	toID     int64
	edgeType string
}

// incidentEdges returns every edge touching the node, fully materialized.
func (s *StagingStore) incidentEdges(ctx context.Context, id int64) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, edge_type, created_at
		FROM edges WHERE from_id = ? OR to_id = ?
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying edges for node %d: %w", id, err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return edges, nil
}

func (s *StagingStore) getNodeByID(ctx context.Context, id int64) (*Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_type, sub_type, lookup_key, data, created_at, updated_at
		FROM nodes WHERE id = ?
	`, id)
	return scanNode(row)
}

// nodeID resolves a natural key to its surrogate id inside a transaction.
func nodeID(ctx context.Context, tx *sql.Tx, nodeType, lookupKey string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE node_type = ? AND lookup_key = ?`,
		nodeType, lookupKey).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNodeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolving node %s/%s: %w", nodeType, lookupKey, err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var data, createdAt, updatedAt string

	err := row.Scan(&node.ID, &node.NodeType, &node.SubType, &node.LookupKey,
		&data, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning node: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &node.Data); err != nil {
		return nil, fmt.Errorf("decoding node data: %w", err)
	}
	node.CreatedAt = parseTimestamp(createdAt)
	node.UpdatedAt = parseTimestamp(updatedAt)
	return &node, nil
}

func scanEdge(row rowScanner) (*Edge, error) {
	var edge Edge
	var createdAt string

	if err := row.Scan(&edge.FromID, &edge.ToID, &edge.EdgeType, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning edge: %w", err)
	}
	edge.CreatedAt = parseTimestamp(createdAt)
	return &edge, nil
}

// parseTimestamp accepts SQLite's CURRENT_TIMESTAMP format and RFC3339.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// isBusy reports whether the error is recoverable SQLite write contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
