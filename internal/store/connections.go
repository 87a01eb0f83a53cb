package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/engramdev/engram/internal/models"
)

// ConnectionStore handles memory_connections CRUD on SQLite. Foreign keys to
// memories cascade, so deleting a memory removes its connections.
type ConnectionStore struct {
	db *DB
}

func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

// Insert creates a connection between two existing memories. The foreign key
// constraints reject dangling endpoints.
func (s *ConnectionStore) Insert(c *models.MemoryConnection) error {
	if c.SourceID == "" || c.TargetID == "" {
		return fmt.Errorf("connection endpoints must not be empty")
	}
	if c.Strength < 0 || c.Strength > 1 {
		return fmt.Errorf("connection strength out of range: %f", c.Strength)
	}
	_, err := s.db.Exec(`
		INSERT INTO memory_connections (id, source_id, target_id, relationship, strength, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.SourceID, c.TargetID, c.Relationship, c.Strength, c.CreatedAt, marshalMetadata(c.Metadata))
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// GetForMemory returns all connections touching a memory, strongest first.
func (s *ConnectionStore) GetForMemory(memoryID string, limit int) ([]*models.MemoryConnection, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, source_id, target_id, relationship, strength, created_at, metadata
		FROM memory_connections
		WHERE source_id = ? OR target_id = ?
		ORDER BY strength DESC
		LIMIT ?
	`, memoryID, memoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("get connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.MemoryConnection
	for rows.Next() {
		var c models.MemoryConnection
		var metadataJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.SourceID, &c.TargetID, &c.Relationship, &c.Strength, &c.CreatedAt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		if metadataJSON.Valid {
			json.Unmarshal([]byte(metadataJSON.String), &c.Metadata)
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

// Delete removes a connection by ID.
func (s *ConnectionStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM memory_connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection not found: %s", id)
	}
	return nil
}
