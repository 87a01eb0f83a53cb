package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/engramdev/engram/internal/models"
)

// PatternStore persists learned patterns on SQLite.
type PatternStore struct {
	db *DB
}

func NewPatternStore(db *DB) *PatternStore {
	return &PatternStore{db: db}
}

// Upsert stores a pattern, replacing any previous row with the same id.
func (s *PatternStore) Upsert(p *models.LearnedPattern) error {
	examplesJSON, _ := json.Marshal(p.Examples)
	_, err := s.db.Exec(`
		INSERT INTO learned_patterns (id, pattern, confidence, source, examples, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pattern = excluded.pattern,
			confidence = excluded.confidence,
			source = excluded.source,
			examples = excluded.examples
	`, p.ID, p.Pattern, p.Confidence, p.Source, string(examplesJSON), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// List returns all learned patterns, highest confidence first.
func (s *PatternStore) List() ([]*models.LearnedPattern, error) {
	rows, err := s.db.Query(`
		SELECT id, pattern, confidence, source, examples, created_at
		FROM learned_patterns
		ORDER BY confidence DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*models.LearnedPattern
	for rows.Next() {
		var p models.LearnedPattern
		var source, examplesJSON sql.NullString
		if err := rows.Scan(&p.ID, &p.Pattern, &p.Confidence, &source, &examplesJSON, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if source.Valid {
			p.Source = source.String
		}
		if examplesJSON.Valid {
			json.Unmarshal([]byte(examplesJSON.String), &p.Examples)
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}
