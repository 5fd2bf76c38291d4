package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds remote graph connection configuration.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements RemoteStore against a Neo4j database. Entities carry
// an Entity label and are keyed by the identity property; relationship writes
// use MERGE, so every operation is idempotent across synchronization runs.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

// Close closes the Neo4j connection.
func (r *Neo4jStore) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// FetchNode returns the entity with the given identity, or (nil, nil) when
// absent.
func (r *Neo4jStore) FetchNode(ctx context.Context, identity string) (*RemoteNode, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (n:Entity {identity: $identity}) RETURN n`,
			map[string]any{"identity": identity})
		if err != nil {
			return nil, err
		}

		if !res.Next(ctx) {
			return nil, nil
		}

		record := res.Record()
		nodeValue, _ := record.Get("n")
		nodeData, ok := nodeValue.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected result type for %s", identity)
		}

		remote := &RemoteNode{
			Handle: RemoteHandle{
				Collection: stringProp(nodeData.Props, "collection"),
				Key:        stringProp(nodeData.Props, "key"),
			},
			SubType: stringProp(nodeData.Props, "sub_type"),
		}
		if propsStr := stringProp(nodeData.Props, "properties"); propsStr != "" {
			if err := json.Unmarshal([]byte(propsStr), &remote.Data); err != nil {
				return nil, fmt.Errorf("unmarshaling properties: %w", err)
			}
		}
		return remote, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*RemoteNode), nil
}

// CreateNode creates a new entity under the given identity.
func (r *Neo4jStore) CreateNode(ctx context.Context, identity string, node *Node) (RemoteHandle, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
	defer session.Close(ctx)

	handle := RemoteHandle{Collection: node.NodeType, Key: node.LookupKey}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Neo4j doesn't support nested maps as property values; the
		// attribute map travels as a JSON string.
		propsJSON, err := json.Marshal(node.Data)
		if err != nil {
			return nil, fmt.Errorf("marshaling properties: %w", err)
		}

		query := `
			MERGE (n:Entity {identity: $identity})
			ON CREATE SET
				n.collection = $collection,
				n.key = $key,
				n.sub_type = $sub_type,
				n.properties = $properties,
				n.created = datetime(),
				n.modified = datetime()
			RETURN n
		`

		params := map[string]any{
			"identity":   identity,
			"collection": handle.Collection,
			"key":        handle.Key,
			"sub_type":   node.SubType,
			"properties": string(propsJSON),
		}

		_, err = tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return RemoteHandle{}, err
	}
	return handle, nil
}

// UpdateNode overwrites the entity's attributes. The remote created timestamp
// is left untouched.
func (r *Neo4jStore) UpdateNode(ctx context.Context, identity string, data map[string]string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		propsJSON, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshaling properties: %w", err)
		}

		query := `
			MATCH (n:Entity {identity: $identity})
			SET n.properties = $properties, n.modified = datetime()
			RETURN n
		`

		_, err = tx.Run(ctx, query, map[string]any{
			"identity":   identity,
			"properties": string(propsJSON),
		})
		return nil, err
	})
	return err
}

// LinkEdges writes one batch of typed edges. The relationship type cannot be
// a Cypher parameter, so it is validated and interpolated into the query.
func (r *Neo4jStore) LinkEdges(ctx context.Context, edgeType string, edges []RemoteEdge) error {
	if len(edges) == 0 {
		return nil
	}
	relType, err := relationshipType(edgeType)
	if err != nil {
		return err
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
	defer session.Close(ctx)

	pairs := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		pairs = append(pairs, map[string]any{
			"from": e.From.Collection + "/" + e.From.Key,
			"to":   e.To.Collection + "/" + e.To.Key,
		})
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			UNWIND $pairs AS pair
			MATCH (a:Entity {identity: pair.from})
			MATCH (b:Entity {identity: pair.to})
			MERGE (a)-[r:%s]->(b)
			ON CREATE SET r.created = datetime()
		`, relType)

		_, err := tx.Run(ctx, query, map[string]any{"pairs": pairs})
		return nil, err
	})
	return err
}

var relTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// relationshipType validates an edge type for safe query interpolation.
func relationshipType(edgeType string) (string, error) {
	t := strings.TrimSpace(edgeType)
	if !relTypePattern.MatchString(t) {
		return "", fmt.Errorf("invalid relationship type %q", edgeType)
	}
	return t, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
