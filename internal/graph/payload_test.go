package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodePayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload NodePayload
		field   string
	}{
		{
			name: "valid",
			payload: NodePayload{
				NodeType: "OrganizationUnit", SubType: "Company",
				LookupKey: "acme", Data: map[string]string{},
			},
		},
		{
			name: "missing node_type",
			payload: NodePayload{
				SubType: "Company", LookupKey: "acme", Data: map[string]string{},
			},
			field: "node_type",
		},
		{
			name: "missing lookup_key",
			payload: NodePayload{
				NodeType: "OrganizationUnit", SubType: "Company", Data: map[string]string{},
			},
			field: "lookup_key",
		},
		{
			name: "nil data",
			payload: NodePayload{
				NodeType: "OrganizationUnit", SubType: "Company", LookupKey: "acme",
			},
			field: "data",
		},
		{
			name: "edge missing target key",
			payload: NodePayload{
				NodeType: "OrganizationUnit", SubType: "Company",
				LookupKey: "acme", Data: map[string]string{},
				Edges: []EdgePayload{{ToNodeType: "DomainEntity", EdgeType: "PartOfProduct"}},
			},
			field: "edges.to_lookup_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNodePayloadList_JSONRoundTrip(t *testing.T) {
	raw := `{
		"payloads": [{
			"node_type": "OrganizationUnit",
			"sub_type": "Company",
			"lookup_key": "0000320193",
			"data": {"name": "Apple Inc.", "ticker": "AAPL"},
			"edges": [{
				"to_node_type": "DomainEntity",
				"to_lookup_key": "iphone",
				"edge_type": "PartOfProduct"
			}]
		}]
	}`

	var list NodePayloadList
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	require.NoError(t, list.Validate())

	require.Len(t, list.Payloads, 1)
	p := list.Payloads[0]
	assert.Equal(t, "0000320193", p.LookupKey)
	assert.Equal(t, "Apple Inc.", p.Data["name"])
	require.Len(t, p.Edges, 1)
	assert.Equal(t, "PartOfProduct", p.Edges[0].EdgeType)
}

func TestNodeIdentity(t *testing.T) {
	n := Node{NodeType: "OrganizationUnit", LookupKey: "0000320193"}
	assert.Equal(t, "OrganizationUnit/0000320193", n.Identity())
}
