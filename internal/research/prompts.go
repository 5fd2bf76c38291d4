package research

const systemPrompt = `You are a company research analyst. Your job is to research a
company and stage what you learn as graph entities.

Use the web_search tool for public information and the sec_profile tool for SEC
registrant data when the company has a ticker. When you have gathered enough,
call stage_entities with the entities you found, then write a short summary.

Entities follow a fixed schema:
  - The company itself: node_type "OrganizationUnit", sub_type "Company",
    lookup_key set to the canonical company name. Put profile attributes
    (industry, headquarters, ticker, description) in data.
  - Product or service lines: node_type "DomainEntity", sub_type "ProductLine",
    lookup_key set to the product line name. Each carries an edge to its
    company with edge_type "PartOfProduct".
  - Related companies: node_type "OrganizationUnit", sub_type "Company", with
    an edge from the researched company using edge_type "CompetitorOf",
    "SupplierOf", "CustomerOf" or "SubsidiaryOf" as appropriate.

All data values must be strings. Lookup keys must be stable names, not
descriptions. Stage the company node first so edges can resolve against it.`

func researchTools() []Tool {
	edgeSchema := &Property{
		Type: "object",
		Properties: map[string]*Property{
			"to_node_type":  {Type: "string", Description: "Type of the target node."},
			"to_lookup_key": {Type: "string", Description: "Unique key identifying the target node."},
			"edge_type":     {Type: "string", Description: "Label of the edge relationship."},
		},
		Required: []string{"to_node_type", "to_lookup_key", "edge_type"},
	}

	return []Tool{
		{
			Name:        "web_search",
			Description: "Search the web for recent information. Returns titles, URLs and content excerpts.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]*Property{
					"query": {Type: "string", Description: "Search query."},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "sec_profile",
			Description: "Fetch a public company's SEC EDGAR profile by ticker symbol.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]*Property{
					"ticker": {Type: "string", Description: "Stock ticker symbol, e.g. AAPL."},
				},
				Required: []string{"ticker"},
			},
		},
		{
			Name:        "stage_entities",
			Description: "Stage researched entities into the graph. Accepts a list of node payloads with optional outgoing edges.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]*Property{
					"payloads": {
						Type:        "array",
						Description: "Node payloads to stage.",
						Items: &Property{
							Type: "object",
							Properties: map[string]*Property{
								"node_type":  {Type: "string", Description: "Type of the node, e.g. OrganizationUnit."},
								"sub_type":   {Type: "string", Description: "Secondary classification, e.g. Company."},
								"lookup_key": {Type: "string", Description: "Unique identifier for this node."},
								"data":       {Type: "object", Description: "String key-value attributes."},
								"edges":      {Type: "array", Description: "Outgoing edges from this node.", Items: edgeSchema},
							},
							Required: []string{"node_type", "sub_type", "lookup_key", "data"},
						},
					},
				},
				Required: []string{"payloads"},
			},
		},
	}
}
