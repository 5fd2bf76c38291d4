package graph

// EdgePayload declares one outgoing relationship from the payload's node to a
// target addressed by its natural key. Targets that cannot be resolved at
// ingest time are dropped, not deferred.
type EdgePayload struct {
	ToNodeType  string `json:"to_node_type"`
	ToLookupKey string `json:"to_lookup_key"`
	EdgeType    string `json:"edge_type"`
}

// NodePayload is the wire-level description of one entity and its outgoing
// relationships, as produced by upstream extraction agents. Data values are
// opaque strings; no schema beyond the required fields is enforced.
type NodePayload struct {
	NodeType  string            `json:"node_type"`
	SubType   string            `json:"sub_type"`
	LookupKey string            `json:"lookup_key"`
	Data      map[string]string `json:"data"`
	Edges     []EdgePayload     `json:"edges,omitempty"`
}

// NodePayloadList is the unit of ingestion.
type NodePayloadList struct {
	Payloads []NodePayload `json:"payloads"`
}

// Validate checks the payload's required fields.
func (p *NodePayload) Validate() error {
	switch {
	case p.NodeType == "":
		return &ValidationError{Field: "node_type", LookupKey: p.LookupKey}
	case p.SubType == "":
		return &ValidationError{Field: "sub_type", LookupKey: p.LookupKey}
	case p.LookupKey == "":
		return &ValidationError{Field: "lookup_key"}
	case p.Data == nil:
		return &ValidationError{Field: "data", LookupKey: p.LookupKey}
	}
	for _, e := range p.Edges {
		switch {
		case e.ToNodeType == "":
			return &ValidationError{Field: "edges.to_node_type", LookupKey: p.LookupKey}
		case e.ToLookupKey == "":
			return &ValidationError{Field: "edges.to_lookup_key", LookupKey: p.LookupKey}
		case e.EdgeType == "":
			return &ValidationError{Field: "edges.edge_type", LookupKey: p.LookupKey}
		}
	}
	return nil
}

// Validate checks every payload in the list. The batch is ingested
// transactionally, so a single invalid payload rejects the whole list.
func (l *NodePayloadList) Validate() error {
	for i := range l.Payloads {
		if err := l.Payloads[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
