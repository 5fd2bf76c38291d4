package graph

import (
	"context"
	"time"
)

// Node is a locally staged entity. ID is the store-assigned surrogate key
// used only to join edges; callers address nodes by (NodeType, LookupKey).
type Node struct {
	ID        int64             `json:"-"`
	NodeType  string            `json:"node_type"`
	SubType   string            `json:"sub_type"`
	LookupKey string            `json:"lookup_key"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Identity returns the node's remote identity string, e.g. "OrganizationUnit/0000320193".
func (n *Node) Identity() string {
	return n.NodeType + "/" + n.LookupKey
}

// Edge is a typed relationship between two staged nodes. Only one edge of a
// given type may exist per ordered node pair.
type Edge struct {
	FromID    int64     `json:"from_id"`
	ToID      int64     `json:"to_id"`
	EdgeType  string    `json:"edge_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Export is a snapshot of nodes and edges read from the staging store.
type Export struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Stats summarizes the staged graph by type.
type Stats struct {
	NodeCount int            `json:"node_count"`
	EdgeCount int            `json:"edge_count"`
	NodeTypes map[string]int `json:"node_types"`
	EdgeTypes map[string]int `json:"edge_types"`
}

// RemoteHandle is an opaque reference to an entity in the remote graph store.
// It is valid for the duration of one synchronization run.
type RemoteHandle struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

// RemoteEdge is one endpoint pair in a batched link operation.
type RemoteEdge struct {
	From RemoteHandle
	To   RemoteHandle
}

// RemoteNode is the remote store's view of an entity.
type RemoteNode struct {
	Handle  RemoteHandle
	SubType string
	Data    map[string]string
}

// RemoteStore is the capability set required of the remote graph database:
// fetch/create/update keyed by an identity string derived from
// node_type/lookup_key, plus a batched edge-link operation per relation type.
// Any backend satisfying it is a valid synchronization target.
type RemoteStore interface {
	// FetchNode returns the entity with the given identity, or
	// (nil, nil) when no such entity exists.
	FetchNode(ctx context.Context, identity string) (*RemoteNode, error)

	// CreateNode creates a new entity under the given identity.
	CreateNode(ctx context.Context, identity string, node *Node) (RemoteHandle, error)

	// UpdateNode overwrites the entity's attributes, preserving
	// remote-only bookkeeping fields such as creation timestamps.
	UpdateNode(ctx context.Context, identity string, data map[string]string) error

	// LinkEdges writes one batch of typed edges between previously
	// upserted entities. Implementations must be idempotent per pair.
	LinkEdges(ctx context.Context, edgeType string, edges []RemoteEdge) error

	Close(ctx context.Context) error
}
