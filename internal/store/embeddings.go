package store

import (
	"database/sql"
	"fmt"
)

// EmbeddingRow is the raw persisted form of an embedding. The vector codec
// lives in the embedding package; the store only sees bytes.
type EmbeddingRow struct {
	ID        string
	Vector    []byte
	Dimension int
	Text      string
	Kind      string
	Metadata  *string
	CreatedAt int64
}

// EmbeddingStore handles embedding persistence on SQLite.
type EmbeddingStore struct {
	db *DB
}

func NewEmbeddingStore(db *DB) *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// Put upserts an embedding row. Re-embedding the same id replaces the vector.
func (s *EmbeddingStore) Put(row *EmbeddingRow) error {
	if row.ID == "" {
		return fmt.Errorf("embedding id must not be empty")
	}
	_, err := s.db.Exec(`
		INSERT INTO embeddings (id, vector, dimension, text, kind, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			text = excluded.text,
			kind = excluded.kind,
			metadata = excluded.metadata
	`, row.ID, row.Vector, row.Dimension, row.Text, row.Kind, row.Metadata, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}

// Get returns an embedding row by id, or nil when absent.
func (s *EmbeddingStore) Get(id string) (*EmbeddingRow, error) {
	var row EmbeddingRow
	var metadata sql.NullString
	err := s.db.QueryRow(`
		SELECT id, vector, dimension, text, kind, metadata, created_at
		FROM embeddings WHERE id = ?
	`, id).Scan(&row.ID, &row.Vector, &row.Dimension, &row.Text, &row.Kind, &metadata, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	if metadata.Valid {
		row.Metadata = &metadata.String
	}
	return &row, nil
}

// All returns every stored embedding, optionally filtered by kind. Used for
// brute-force similarity scans, mirroring the short-term vector path.
func (s *EmbeddingStore) All(kind string) ([]*EmbeddingRow, error) {
	query := `SELECT id, vector, dimension, text, kind, metadata, created_at FROM embeddings`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("all embeddings: %w", err)
	}
	defer rows.Close()

	var out []*EmbeddingRow
	for rows.Next() {
		var row EmbeddingRow
		var metadata sql.NullString
		if err := rows.Scan(&row.ID, &row.Vector, &row.Dimension, &row.Text, &row.Kind, &metadata, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if metadata.Valid {
			row.Metadata = &metadata.String
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}

// UpdateMetadata replaces the metadata column for an embedding.
func (s *EmbeddingStore) UpdateMetadata(id string, metadata *string) error {
	res, err := s.db.Exec(`UPDATE embeddings SET metadata = ? WHERE id = ?`, metadata, id)
	if err != nil {
		return fmt.Errorf("update embedding metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("embedding not found: %s", id)
	}
	return nil
}

// Delete removes an embedding by id. Deleting an absent id is a no-op.
func (s *EmbeddingStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM embeddings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}
