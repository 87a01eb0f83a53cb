package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/models"
)

// FactStore handles semantic fact CRUD on SQLite.
type FactStore struct {
	db *DB
}

func NewFactStore(db *DB) *FactStore {
	return &FactStore{db: db}
}

// Insert stores a new semantic fact.
func (s *FactStore) Insert(f *models.SemanticFact) error {
	if strings.TrimSpace(f.Fact) == "" {
		return fmt.Errorf("fact must not be empty")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence out of range: %f", f.Confidence)
	}
	_, err := s.db.Exec(`
		INSERT INTO semantic_facts (id, fact, confidence, first_observed, last_confirmed, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.ID, f.Fact, f.Confidence, f.FirstObserved, f.LastConfirmed, marshalMetadata(f.Metadata))
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// GetByID fetches a fact by ID. Returns nil when not found.
func (s *FactStore) GetByID(id string) (*models.SemanticFact, error) {
	var f models.SemanticFact
	var lastConfirmed sql.NullInt64
	var metadataJSON sql.NullString

	err := s.db.QueryRow(`
		SELECT id, fact, confidence, first_observed, last_confirmed, metadata
		FROM semantic_facts WHERE id = ?
	`, id).Scan(&f.ID, &f.Fact, &f.Confidence, &f.FirstObserved, &lastConfirmed, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}

	if lastConfirmed.Valid {
		f.LastConfirmed = &lastConfirmed.Int64
	}
	if metadataJSON.Valid {
		json.Unmarshal([]byte(metadataJSON.String), &f.Metadata)
	}
	return &f, nil
}

// Confirm bumps a fact's last_confirmed timestamp and raises its confidence.
func (s *FactStore) Confirm(id string, confidence float64) error {
	res, err := s.db.Exec(`
		UPDATE semantic_facts SET last_confirmed = ?, confidence = MAX(confidence, ?)
		WHERE id = ?
	`, time.Now().Unix(), confidence, id)
	if err != nil {
		return fmt.Errorf("confirm fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fact not found: %s", id)
	}
	return nil
}

// List returns facts above a confidence floor, most recently observed first.
func (s *FactStore) List(minConfidence float64, limit int) ([]*models.SemanticFact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, fact, confidence, first_observed, last_confirmed, metadata
		FROM semantic_facts
		WHERE confidence >= ?
		ORDER BY first_observed DESC
		LIMIT ?
	`, minConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var facts []*models.SemanticFact
	for rows.Next() {
		var f models.SemanticFact
		var lastConfirmed sql.NullInt64
		var metadataJSON sql.NullString
		if err := rows.Scan(&f.ID, &f.Fact, &f.Confidence, &f.FirstObserved, &lastConfirmed, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if lastConfirmed.Valid {
			f.LastConfirmed = &lastConfirmed.Int64
		}
		if metadataJSON.Valid {
			json.Unmarshal([]byte(metadataJSON.String), &f.Metadata)
		}
		facts = append(facts, &f)
	}
	return facts, rows.Err()
}

// Delete removes a fact by ID.
func (s *FactStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM semantic_facts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fact not found: %s", id)
	}
	return nil
}
