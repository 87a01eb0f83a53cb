package embedding

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/store"
)

// Index persists vectors keyed by content id and answers nearest-neighbor
// queries with a brute-force cosine scan over the embeddings table.
type Index struct {
	embeddings *store.EmbeddingStore
	embedder   Embedder
	logger     *slog.Logger
}

func NewIndex(embeddings *store.EmbeddingStore, embedder Embedder, logger *slog.Logger) *Index {
	return &Index{
		embeddings: embeddings,
		embedder:   embedder,
		logger:     logger,
	}
}

// EmbedOptions controls how a vector is stored.
type EmbedOptions struct {
	Kind     string
	Metadata map[string]any
}

// SimilarityResult pairs a stored embedding with its score against a query.
type SimilarityResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
	Kind  string  `json:"kind"`
}

// SearchOptions filters and bounds a similarity query.
type SearchOptions struct {
	MinScore       float64
	Limit          int
	Kind           string
	MetadataFilter map[string]any
}

// Embed generates a vector for text, L2-normalizes it, and persists it under
// the given id. Re-embedding an id replaces its vector.
func (ix *Index) Embed(text, id string, opts EmbedOptions) (*models.Embedding, error) {
	if id == "" {
		return nil, fmt.Errorf("embedding id must not be empty")
	}
	vec, err := ix.embedder.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", id, err)
	}
	vec = Normalize(vec)

	kind := opts.Kind
	if kind == "" {
		kind = models.EmbeddingKindMemory
	}

	emb := &models.Embedding{
		ID:        id,
		Vector:    vec,
		Text:      text,
		Kind:      kind,
		Metadata:  opts.Metadata,
		CreatedAt: time.Now().Unix(),
	}

	row := &store.EmbeddingRow{
		ID:        id,
		Vector:    Float32ToBytes(vec),
		Dimension: len(vec),
		Text:      text,
		Kind:      kind,
		Metadata:  marshalMeta(opts.Metadata),
		CreatedAt: emb.CreatedAt,
	}
	if err := ix.embeddings.Put(row); err != nil {
		return nil, err
	}
	return emb, nil
}

// FindSimilarText embeds the query text and delegates to FindSimilar. The
// query vector is transient and never persisted.
func (ix *Index) FindSimilarText(text string, opts SearchOptions) ([]SimilarityResult, error) {
	vec, err := ix.embedder.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.FindSimilar(vec, opts)
}

// FindSimilar scans all stored vectors and returns matches ordered by cosine
// similarity descending. A zero-norm vector scores 0 against everything.
func (ix *Index) FindSimilar(query []float32, opts SearchOptions) ([]SimilarityResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := ix.embeddings.All(opts.Kind)
	if err != nil {
		return nil, err
	}

	var results []SimilarityResult
	for _, row := range rows {
		if !matchesMetadata(row.Metadata, opts.MetadataFilter) {
			continue
		}
		vec := BytesToFloat32(row.Vector)
		score := CosineSimilarity(query, vec)
		if score < opts.MinScore {
			continue
		}
		results = append(results, SimilarityResult{
			ID:    row.ID,
			Score: score,
			Text:  row.Text,
			Kind:  row.Kind,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes the vector stored under id, if any.
func (ix *Index) Delete(id string) error {
	return ix.embeddings.Delete(id)
}

// UpdateMetadata merges the patch into the embedding's metadata map.
func (ix *Index) UpdateMetadata(id string, patch map[string]any) error {
	row, err := ix.embeddings.Get(id)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("embedding not found: %s", id)
	}

	merged := map[string]any{}
	if row.Metadata != nil {
		json.Unmarshal([]byte(*row.Metadata), &merged)
	}
	for k, v := range patch {
		merged[k] = v
	}
	return ix.embeddings.UpdateMetadata(id, marshalMeta(merged))
}

// matchesMetadata returns true when every filter key is present with an equal
// value in the stored metadata. JSON round-tripping makes numbers float64 on
// both sides.
func matchesMetadata(stored *string, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if stored == nil {
		return false
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(*stored), &md); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := md[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func marshalMeta(md map[string]any) *string {
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
