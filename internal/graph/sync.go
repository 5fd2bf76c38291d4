package graph

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Syncer pushes connected subgraphs from the staging store into a remote
// graph store, translating local surrogate ids into remote identities and
// de-duplicating relationships. It never mutates local state.
//
// Synchronization is not wrapped in a cross-system transaction; idempotence
// is the correctness mechanism. A run that failed partway (nodes written,
// edges not yet linked) converges when re-invoked: creates become updates and
// edge links are merge no-ops.
type Syncer struct {
	staging *StagingStore
	remote  RemoteStore
	log     *slog.Logger
}

// NewSyncer builds a Syncer over an open staging store and remote store.
// The Syncer takes ownership of the remote connection: Close releases it
// unconditionally, including after a failed run.
func NewSyncer(staging *StagingStore, remote RemoteStore, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{staging: staging, remote: remote, log: logger}
}

// Close releases the remote connection.
func (s *Syncer) Close(ctx context.Context) error {
	return s.remote.Close(ctx)
}

// StoreSubgraph exports the connected subgraph rooted at the given natural
// key and upserts it remotely, returning the root's remote handle. A missing
// root is ErrNodeNotFound; any remote failure aborts the run as a
// *RemoteError and is safe to retry.
func (s *Syncer) StoreSubgraph(ctx context.Context, rootType, rootKey string) (RemoteHandle, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Syncer.StoreSubgraph")
	defer span.End()
	span.SetAttributes(
		attribute.String("root.node_type", rootType),
		attribute.String("root.lookup_key", rootKey),
	)

	runID := uuid.New().String()
	log := s.log.With("run_id", runID, "root", rootType+"/"+rootKey)

	export, err := s.staging.ExportSubgraph(ctx, rootType, rootKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return RemoteHandle{}, err
	}
	log.Info("collected subgraph",
		"nodes", len(export.Nodes), "edges", len(export.Edges))

	// Upsert nodes; the id mapping lives only for this run.
	handles := make(map[int64]RemoteHandle, len(export.Nodes))
	var rootHandle RemoteHandle
	created, updated := 0, 0

	for _, node := range export.Nodes {
		handle, fresh, err := s.upsertRemote(ctx, node)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return RemoteHandle{}, err
		}
		handles[node.ID] = handle
		if fresh {
			created++
		} else {
			updated++
		}
		if node.NodeType == rootType && node.LookupKey == rootKey {
			rootHandle = handle
		}
	}

	linked, err := s.linkRemote(ctx, export.Edges, handles)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return RemoteHandle{}, err
	}

	log.Info("subgraph synchronized",
		"created", created, "updated", updated, "edges_linked", linked)
	span.SetAttributes(
		attribute.Int("nodes.created", created),
		attribute.Int("nodes.updated", updated),
		attribute.Int("edges.linked", linked),
	)
	return rootHandle, nil
}

// upsertRemote fetches the entity by identity and updates it, or creates it
// when absent. Reports whether a create happened.
func (s *Syncer) upsertRemote(ctx context.Context, node *Node) (RemoteHandle, bool, error) {
	identity := node.Identity()

	existing, err := s.remote.FetchNode(ctx, identity)
	if err != nil {
		return RemoteHandle{}, false, &RemoteError{Op: "fetch", Identity: identity, Err: err}
	}

	if existing != nil {
		if err := s.remote.UpdateNode(ctx, identity, node.Data); err != nil {
			return RemoteHandle{}, false, &RemoteError{Op: "update", Identity: identity, Err: err}
		}
		return existing.Handle, false, nil
	}

	handle, err := s.remote.CreateNode(ctx, identity, node)
	if err != nil {
		return RemoteHandle{}, false, &RemoteError{Op: "create", Identity: identity, Err: err}
	}
	return handle, true, nil
}

// linkRemote groups edges by type, maps endpoints through the run's id
// mapping, drops any edge with an unmapped endpoint, de-duplicates
// (from, to) pairs within each group, and writes each group as one batched
// link call. Returns the number of edges written.
func (s *Syncer) linkRemote(ctx context.Context, edges []*Edge, handles map[int64]RemoteHandle) (int, error) {
	groups := make(map[string][]RemoteEdge)
	seen := make(map[string]map[[2]RemoteHandle]bool)

	for _, edge := range edges {
		from, okFrom := handles[edge.FromID]
		to, okTo := handles[edge.ToID]
		if !okFrom || !okTo {
			s.log.Warn("dropping edge with unmapped endpoint",
				"from_id", edge.FromID, "to_id", edge.ToID, "edge_type", edge.EdgeType)
			continue
		}

		pairs := seen[edge.EdgeType]
		if pairs == nil {
			pairs = make(map[[2]RemoteHandle]bool)
			seen[edge.EdgeType] = pairs
		}
		pair := [2]RemoteHandle{from, to}
		if pairs[pair] {
			continue
		}
		pairs[pair] = true
		groups[edge.EdgeType] = append(groups[edge.EdgeType], RemoteEdge{From: from, To: to})
	}

	// Deterministic write order keeps logs and retries comparable.
	edgeTypes := make([]string, 0, len(groups))
	for edgeType := range groups {
		edgeTypes = append(edgeTypes, edgeType)
	}
	sort.Strings(edgeTypes)

	linked := 0
	for _, edgeType := range edgeTypes {
		batch := groups[edgeType]
		if err := s.remote.LinkEdges(ctx, edgeType, batch); err != nil {
			return linked, &RemoteError{Op: "link " + edgeType, Err: err}
		}
		linked += len(batch)
	}
	return linked, nil
}
