package store

import (
	"fmt"
	"strings"
)

// KeywordResult holds an FTS5 match result.
type KeywordResult struct {
	RowID int64
	ID    string
	Rank  float64
}

// KeywordStore handles full-text search via SQLite FTS5.
type KeywordStore struct {
	db *DB
}

func NewKeywordStore(db *DB) *KeywordStore {
	return &KeywordStore{db: db}
}

// Search performs BM25 full-text search over memory content. Returns memory
// IDs ranked by match quality; bm25() returns negative values where more
// negative = better, so the rank is negated into a positive score.
func (s *KeywordStore) Search(query string, limit int) ([]KeywordResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT m.rowid, m.id, -rank AS score
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.RowID, &r.ID, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan keyword result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery turns free text into an OR-of-terms FTS5 match expression. Terms
// are quoted so punctuation in user queries cannot break the match syntax.
// Returns "" when no terms survive; an empty MATCH expression is an FTS5
// syntax error, so Search treats that as no results.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
