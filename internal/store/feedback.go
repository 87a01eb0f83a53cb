package store

import (
	"fmt"
	"time"

	"github.com/engramdev/engram/internal/models"
)

// maxFeedbackPerMemory caps retained feedback rows per memory id. The oldest
// rows beyond the cap are pruned on insert, so averages are computed over a
// bounded recent window instead of growing without limit.
const maxFeedbackPerMemory = 50

// FeedbackStore handles retrieval feedback persistence on SQLite.
type FeedbackStore struct {
	db *DB
}

func NewFeedbackStore(db *DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

// Record stores a feedback rating and prunes history past the per-memory cap.
func (s *FeedbackStore) Record(f *models.Feedback) error {
	if f.QueryID == "" || f.MemoryID == "" {
		return fmt.Errorf("feedback requires queryId and memoryId")
	}
	if f.Relevance < 1 || f.Relevance > 5 {
		return fmt.Errorf("relevance rating out of range: %d", f.Relevance)
	}
	if f.Accuracy < 1 || f.Accuracy > 5 {
		return fmt.Errorf("accuracy rating out of range: %d", f.Accuracy)
	}

	f.CreatedAt = time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO memory_feedback (query_id, memory_id, relevance, accuracy, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.QueryID, f.MemoryID, f.Relevance, f.Accuracy, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	f.ID, _ = res.LastInsertId()

	_, err = s.db.Exec(`
		DELETE FROM memory_feedback
		WHERE memory_id = ? AND id NOT IN (
			SELECT id FROM memory_feedback
			WHERE memory_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, f.MemoryID, f.MemoryID, maxFeedbackPerMemory)
	if err != nil {
		return fmt.Errorf("prune feedback: %w", err)
	}
	return nil
}

// AverageRelevance returns the mean relevance rating for a memory and the
// number of ratings it was computed from. Zero count means no feedback.
func (s *FeedbackStore) AverageRelevance(memoryID string) (avg float64, count int, err error) {
	err = s.db.QueryRow(`
		SELECT COALESCE(AVG(relevance), 0), COUNT(*)
		FROM memory_feedback WHERE memory_id = ?
	`, memoryID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("average relevance: %w", err)
	}
	return avg, count, nil
}

// ForMemory returns the retained feedback rows for a memory, newest first.
func (s *FeedbackStore) ForMemory(memoryID string) ([]models.Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, query_id, memory_id, relevance, accuracy, COALESCE(comment, ''), created_at
		FROM memory_feedback
		WHERE memory_id = ?
		ORDER BY created_at DESC, id DESC
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("feedback for memory: %w", err)
	}
	defer rows.Close()

	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.QueryID, &f.MemoryID, &f.Relevance, &f.Accuracy, &f.Comment, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
