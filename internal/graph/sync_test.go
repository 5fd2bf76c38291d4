package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRemote records every call so tests can assert idempotence properties.
type mockRemote struct {
	nodes map[string]*RemoteNode

	creates int
	updates int
	fetches int
	links   map[string][]RemoteEdge

	failLink   error
	failCreate error
	closed     bool
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		nodes: make(map[string]*RemoteNode),
		links: make(map[string][]RemoteEdge),
	}
}

func (m *mockRemote) FetchNode(_ context.Context, identity string) (*RemoteNode, error) {
	m.fetches++
	return m.nodes[identity], nil
}

func (m *mockRemote) CreateNode(_ context.Context, identity string, node *Node) (RemoteHandle, error) {
	if m.failCreate != nil {
		return RemoteHandle{}, m.failCreate
	}
	m.creates++
	handle := RemoteHandle{Collection: node.NodeType, Key: node.LookupKey}
	m.nodes[identity] = &RemoteNode{Handle: handle, SubType: node.SubType, Data: node.Data}
	return handle, nil
}

func (m *mockRemote) UpdateNode(_ context.Context, identity string, data map[string]string) error {
	existing, ok := m.nodes[identity]
	if !ok {
		return fmt.Errorf("update of unknown identity %s", identity)
	}
	m.updates++
	existing.Data = data
	return nil
}

func (m *mockRemote) LinkEdges(_ context.Context, edgeType string, edges []RemoteEdge) error {
	if m.failLink != nil {
		return m.failLink
	}
	m.links[edgeType] = append(m.links[edgeType], edges...)
	return nil
}

func (m *mockRemote) Close(context.Context) error {
	m.closed = true
	return nil
}

func stageTestGraph(t *testing.T, store *StagingStore) {
	t.Helper()
	batch := []NodePayload{
		companyPayload("acme", map[string]string{"name": "Acme"},
			EdgePayload{ToNodeType: "DomainEntity", ToLookupKey: "widgets", EdgeType: "PartOfProduct"},
			EdgePayload{ToNodeType: "OrganizationUnit", ToLookupKey: "globex", EdgeType: "CompetitorOf"}),
		companyPayload("globex", map[string]string{"name": "Globex"}),
		{NodeType: "DomainEntity", SubType: "ProductLine", LookupKey: "widgets",
			Data: map[string]string{"category": "hardware"}},
		// Unreachable from acme; must never sync.
		companyPayload("isolated", map[string]string{"name": "Isolated"}),
	}
	require.NoError(t, store.UpsertPayloads(context.Background(), batch))
}

func TestStoreSubgraph_SyncsConnectedComponent(t *testing.T) {
	store := newTestStore(t)
	stageTestGraph(t, store)

	remote := newMockRemote()
	syncer := NewSyncer(store, remote, nil)
	defer syncer.Close(context.Background())

	handle, err := syncer.StoreSubgraph(context.Background(), "OrganizationUnit", "acme")
	require.NoError(t, err)
	assert.Equal(t, RemoteHandle{Collection: "OrganizationUnit", Key: "acme"}, handle)

	assert.Equal(t, 3, remote.creates, "root, competitor and product line")
	assert.Zero(t, remote.updates)
	assert.NotContains(t, remote.nodes, "OrganizationUnit/isolated")

	assert.Len(t, remote.links["PartOfProduct"], 1)
	assert.Len(t, remote.links["CompetitorOf"], 1)
}

func TestStoreSubgraph_SecondRunOnlyUpdates(t *testing.T) {
	store := newTestStore(t)
	stageTestGraph(t, store)

	remote := newMockRemote()
	syncer := NewSyncer(store, remote, nil)
	defer syncer.Close(context.Background())

	ctx := context.Background()
	_, err := syncer.StoreSubgraph(ctx, "OrganizationUnit", "acme")
	require.NoError(t, err)
	firstCreates := remote.creates

	_, err = syncer.StoreSubgraph(ctx, "OrganizationUnit", "acme")
	require.NoError(t, err)

	assert.Equal(t, firstCreates, remote.creates, "second run must not create")
	assert.Equal(t, 3, remote.updates, "second run updates every visited node")

	for edgeType, edges := range remote.links {
		seen := make(map[[2]RemoteHandle]int)
		for _, e := range edges {
			seen[[2]RemoteHandle{e.From, e.To}]++
		}
		for pair, count := range seen {
			// Each run re-links the same pair once; within a run
			// there are never duplicates.
			assert.LessOrEqual(t, count, 2, "%s pair %v", edgeType, pair)
		}
	}
}

func TestStoreSubgraph_DeduplicatesEdgePairs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Both directions plus a second edge type between the same pair.
	batch := []NodePayload{
		companyPayload("acme", map[string]string{},
			EdgePayload{ToNodeType: "OrganizationUnit", ToLookupKey: "globex", EdgeType: "CompetitorOf"},
			EdgePayload{ToNodeType: "OrganizationUnit", ToLookupKey: "globex", EdgeType: "SupplierOf"}),
		companyPayload("globex", map[string]string{},
			EdgePayload{ToNodeType: "OrganizationUnit", ToLookupKey: "acme", EdgeType: "CompetitorOf"}),
	}
	require.NoError(t, store.UpsertPayloads(ctx, batch))

	remote := newMockRemote()
	syncer := NewSyncer(store, remote, nil)
	defer syncer.Close(ctx)

	_, err := syncer.StoreSubgraph(ctx, "OrganizationUnit", "acme")
	require.NoError(t, err)

	// acme->globex and globex->acme are distinct ordered pairs.
	assert.Len(t, remote.links["CompetitorOf"], 2)
	assert.Len(t, remote.links["SupplierOf"], 1)

	seen := make(map[[2]RemoteHandle]bool)
	for _, e := range remote.links["CompetitorOf"] {
		pair := [2]RemoteHandle{e.From, e.To}
		assert.False(t, seen[pair], "duplicate pair in one link batch")
		seen[pair] = true
	}
}

func TestStoreSubgraph_RootNotFound(t *testing.T) {
	store := newTestStore(t)
	remote := newMockRemote()
	syncer := NewSyncer(store, remote, nil)
	defer syncer.Close(context.Background())

	_, err := syncer.StoreSubgraph(context.Background(), "OrganizationUnit", "missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Zero(t, remote.creates)
}

func TestStoreSubgraph_RerunAfterPartialFailureConverges(t *testing.T) {
	store := newTestStore(t)
	stageTestGraph(t, store)

	remote := newMockRemote()
	remote.failLink = errors.New("bolt connection reset")
	syncer := NewSyncer(store, remote, nil)
	defer syncer.Close(context.Background())

	ctx := context.Background()
	_, err := syncer.StoreSubgraph(ctx, "OrganizationUnit", "acme")

	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, remote.creates, "nodes were written before the link failure")
	assert.Empty(t, remote.links)

	// Local state is untouched; the re-run finishes edge linking without
	// re-creating nodes.
	remote.failLink = nil
	handle, err := syncer.StoreSubgraph(ctx, "OrganizationUnit", "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", handle.Key)
	assert.Equal(t, 3, remote.creates, "no re-creates on convergence run")
	assert.Equal(t, 3, remote.updates)
	assert.Len(t, remote.links["PartOfProduct"], 1)
	assert.Len(t, remote.links["CompetitorOf"], 1)
}

func TestStoreSubgraph_CreateFailureAborts(t *testing.T) {
	store := newTestStore(t)
	stageTestGraph(t, store)

	remote := newMockRemote()
	remote.failCreate = errors.New("neo.ClientError.Security.Unauthorized")
	syncer := NewSyncer(store, remote, nil)
	defer syncer.Close(context.Background())

	_, err := syncer.StoreSubgraph(context.Background(), "OrganizationUnit", "acme")
	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "create", rerr.Op)
	assert.Empty(t, remote.links, "no edge writes after an aborted node pass")
}

func TestSyncerClose_ReleasesRemote(t *testing.T) {
	store := newTestStore(t)
	remote := newMockRemote()
	syncer := NewSyncer(store, remote, nil)

	require.NoError(t, syncer.Close(context.Background()))
	assert.True(t, remote.closed)
}
