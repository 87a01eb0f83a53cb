package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/models"
)

// memoryColumns is the canonical column list for all SELECT queries.
// Order must match scanOne/scanMany.
const memoryColumns = `id, content, importance, context, source, metadata,
	embedding_id, created_at, updated_at`

// MemoryStore handles episodic memory CRUD operations on SQLite.
type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// Insert stores a new memory. The caller must set ID and CreatedAt.
func (s *MemoryStore) Insert(m *models.Memory) error {
	if err := validateMemory(m); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO memories (
			id, content, importance, context, source, metadata,
			embedding_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Content, m.Importance, m.Context, m.Source,
		marshalMetadata(m.Metadata), m.EmbeddingID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// InsertMany stores a batch of memories in a single transaction. Either every
// row commits or none do; callers degrade to item-by-item Insert on failure.
func (s *MemoryStore) InsertMany(mems []*models.Memory) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	for _, m := range mems {
		if err := validateMemory(m); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO memories (
				id, content, importance, context, source, metadata,
				embedding_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			m.ID, m.Content, m.Importance, m.Context, m.Source,
			marshalMetadata(m.Metadata), m.EmbeddingID, m.CreatedAt, m.UpdatedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert memory %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

// GetByID fetches a single memory by ID. Returns nil when not found.
func (s *MemoryStore) GetByID(id string) (*models.Memory, error) {
	m, err := s.scanOne(s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM memories WHERE id = ?`, memoryColumns), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetByIDs fetches multiple memories by their IDs in a single query.
func (s *MemoryStore) GetByIDs(ids []string) ([]*models.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE id IN (%s)`,
		memoryColumns, strings.Join(placeholders, ","))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get by ids: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// Update applies partial updates to a memory. The creation timestamp is
// immutable; only updated_at moves. Returns the updated row and whether the
// content changed, so the caller can decide to regenerate the embedding.
func (s *MemoryStore) Update(id string, req *models.UpdateRequest) (*models.Memory, bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().Unix()}
	contentChanged := false

	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return nil, false, fmt.Errorf("update memory %s: content must not be empty", id)
		}
		sets = append(sets, "content = ?")
		args = append(args, *req.Content)
		contentChanged = true
	}
	if req.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, models.ClampImportance(*req.Importance))
	}
	if req.Context != nil {
		sets = append(sets, "context = ?")
		args = append(args, *req.Context)
	}
	if req.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, *req.Source)
	}
	if req.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, marshalMetadata(*req.Metadata))
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("update memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, false, fmt.Errorf("memory not found: %s", id)
	}

	m, err := s.GetByID(id)
	return m, contentChanged, err
}

// SetEmbeddingID attaches (or clears) the embedding reference on a memory
// without touching updated_at.
func (s *MemoryStore) SetEmbeddingID(id string, embeddingID *string) error {
	_, err := s.db.Exec(`UPDATE memories SET embedding_id = ? WHERE id = ?`, embeddingID, id)
	if err != nil {
		return fmt.Errorf("set embedding id: %w", err)
	}
	return nil
}

// Delete removes a memory, its embedding row, and (via foreign keys) its
// connections.
func (s *MemoryStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	// The embeddings table has no FK to memories (it also holds query and
	// entity vectors), so the cascade is done by hand.
	if _, err := s.db.Exec("DELETE FROM embeddings WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete embedding for %s: %w", id, err)
	}
	return nil
}

// DeleteMany removes a batch of memories in one transaction. A missing id
// fails the whole batch so the caller can fall back to per-item deletes.
func (s *MemoryStore) DeleteMany(ids []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete batch: %w", err)
	}
	for _, id := range ids {
		res, err := tx.Exec("DELETE FROM memories WHERE id = ?", id)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("delete memory %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tx.Rollback()
			return fmt.Errorf("memory not found: %s", id)
		}
		if _, err := tx.Exec("DELETE FROM embeddings WHERE id = ?", id); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete embedding for %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

// Query returns memories matching the filter set, newest first unless
// importance-first ordering is requested.
func (s *MemoryStore) Query(filters models.QueryFilters, limit int, orderByImportance bool) ([]*models.Memory, error) {
	where, args := buildFilterClause(filters)

	order := "created_at DESC"
	if orderByImportance {
		order = "importance DESC, created_at DESC"
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM memories %s ORDER BY %s LIMIT ?`,
		memoryColumns, where, order)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// Recent returns the n most recently created memories. This is the terminal
// retrieval fallback, so it deliberately has no filters to fail on.
func (s *MemoryStore) Recent(n int) ([]*models.Memory, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM memories ORDER BY created_at DESC LIMIT ?`, memoryColumns), n)
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// buildFilterClause translates QueryFilters into a WHERE clause. Timestamp
// bounds are half-open: since <= created_at < until.
func buildFilterClause(f models.QueryFilters) (string, []any) {
	var conditions []string
	var args []any

	if f.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, f.Source)
	}
	if f.Context != "" {
		conditions = append(conditions, "context = ?")
		args = append(args, f.Context)
	}
	if f.ContentSubstring != "" {
		conditions = append(conditions, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.ContentSubstring)+"%")
	}
	if f.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, *f.Until)
	}
	if f.MinImportance != nil {
		conditions = append(conditions, "importance >= ?")
		args = append(args, *f.MinImportance)
	}
	if f.MaxImportance != nil {
		conditions = append(conditions, "importance <= ?")
		args = append(args, *f.MaxImportance)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike escapes LIKE wildcards so substring filters match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func validateMemory(m *models.Memory) error {
	if m.ID == "" {
		return fmt.Errorf("memory id must not be empty")
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("memory %s: content must not be empty", m.ID)
	}
	return nil
}

func (s *MemoryStore) scanOne(row *sql.Row) (*models.Memory, error) {
	var m models.Memory
	var context, source, metadataJSON, embeddingID sql.NullString

	err := row.Scan(
		&m.ID, &m.Content, &m.Importance, &context, &source, &metadataJSON,
		&embeddingID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	populateMemoryNullables(&m, context, source, metadataJSON, embeddingID)
	return &m, nil
}

func (s *MemoryStore) scanMany(rows *sql.Rows) ([]*models.Memory, error) {
	var result []*models.Memory
	for rows.Next() {
		var m models.Memory
		var context, source, metadataJSON, embeddingID sql.NullString

		if err := rows.Scan(
			&m.ID, &m.Content, &m.Importance, &context, &source, &metadataJSON,
			&embeddingID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}

		populateMemoryNullables(&m, context, source, metadataJSON, embeddingID)
		result = append(result, &m)
	}
	return result, rows.Err()
}

func populateMemoryNullables(m *models.Memory, context, source, metadataJSON, embeddingID sql.NullString) {
	if context.Valid {
		m.Context = context.String
	}
	if source.Valid {
		m.Source = source.String
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &m.Metadata)
	}
	if embeddingID.Valid {
		m.EmbeddingID = &embeddingID.String
	}
}

// marshalMetadata serializes a metadata map for a nullable TEXT column.
func marshalMetadata(md map[string]any) *string {
	if len(md) == 0 {
		return nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
