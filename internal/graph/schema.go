package graph

// SQLite schema DDL constants for the staging store.

const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_type TEXT NOT NULL,
    sub_type TEXT NOT NULL,
    lookup_key TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(node_type, lookup_key)
)`

const schemaEdges = `
CREATE TABLE IF NOT EXISTS edges (
    from_id INTEGER NOT NULL,
    to_id INTEGER NOT NULL,
    edge_type TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(from_id, to_id, edge_type),
    FOREIGN KEY(from_id) REFERENCES nodes(id) ON DELETE CASCADE,
    FOREIGN KEY(to_id) REFERENCES nodes(id) ON DELETE CASCADE
)`

// updated_at advances only when data actually changes. The trigger fires
// after the upsert rewrite, so a byte-identical data write is a no-op.
const triggerNodesUpdatedAt = `
CREATE TRIGGER IF NOT EXISTS trg_nodes_updated_at
AFTER UPDATE ON nodes
FOR EACH ROW
WHEN OLD.data <> NEW.data
BEGIN
    UPDATE nodes SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END`

const indexNodesTypeKey = `CREATE INDEX IF NOT EXISTS idx_nodes_type_key ON nodes(node_type, lookup_key)`
const indexNodesUpdatedAt = `CREATE INDEX IF NOT EXISTS idx_nodes_updated_at ON nodes(updated_at)`
const indexEdgesFrom = `CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id)`
const indexEdgesTo = `CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id)`
const indexEdgesType = `CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type)`

// allSchemaStatements returns all schema DDL in order.
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaEdges,
		triggerNodesUpdatedAt,
		indexNodesTypeKey,
		indexNodesUpdatedAt,
		indexEdgesFrom,
		indexEdgesTo,
		indexEdgesType,
	}
}

// connectionPragmas are carried in the DSN so the driver applies them to
// every pooled connection, not just the one that ran an exec. foreign_keys
// and busy_timeout are per-connection settings.
func connectionPragmas() []string {
	return []string{
		"busy_timeout(5000)",
		"foreign_keys(1)",
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
	}
}
