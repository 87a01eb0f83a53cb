package models

// Memory is the core episodic record stored in SQLite.
type Memory struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Importance  int            `json:"importance"`
	Context     string         `json:"context,omitempty"`
	Source      string         `json:"source,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	EmbeddingID *string        `json:"embeddingId,omitempty"`
	CreatedAt   int64          `json:"createdAt"`
	UpdatedAt   int64          `json:"updatedAt"`
}

// SemanticFact is a distilled, de-episodicized claim. Provenance back to the
// memories it was extracted from lives in Metadata, not a foreign key.
type SemanticFact struct {
	ID            string         `json:"id"`
	Fact          string         `json:"fact"`
	Confidence    float64        `json:"confidence"`
	FirstObserved int64          `json:"firstObserved"`
	LastConfirmed *int64         `json:"lastConfirmed,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// MemoryConnection is a typed edge between two memories. Both endpoints must
// exist; deleting either memory cascades to the connection.
type MemoryConnection struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"sourceId"`
	TargetID     string         `json:"targetId"`
	Relationship string         `json:"relationship"`
	Strength     float64        `json:"strength"`
	CreatedAt    int64          `json:"createdAt"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Embedding is a stored vector keyed by the id of the content it represents.
// All vectors in one index share the same dimension.
type Embedding struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"-"`
	Text      string         `json:"text"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"createdAt"`
}

// Embedding kinds.
const (
	EmbeddingKindMemory = "memory"
	EmbeddingKindQuery  = "query"
	EmbeddingKindEntity = "entity"
)

// Feedback records a user rating of how relevant and accurate a retrieved
// memory was for a given query. Ratings are on a 1-5 scale.
type Feedback struct {
	ID        int64  `json:"id"`
	QueryID   string `json:"queryId"`
	MemoryID  string `json:"memoryId"`
	Relevance int    `json:"relevance"`
	Accuracy  int    `json:"accuracy"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// LearnedPattern is a regularity inferred from interaction history.
type LearnedPattern struct {
	ID         string   `json:"id"`
	Pattern    string   `json:"pattern"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
	Examples   []string `json:"examples,omitempty"`
	CreatedAt  int64    `json:"createdAt"`
}

// RankedMemory is a Memory plus its per-query score. Never persisted.
type RankedMemory struct {
	Memory  *Memory            `json:"memory"`
	Score   float64            `json:"score"`
	Reasons []string           `json:"reasons,omitempty"`
	Factors map[string]float64 `json:"factors,omitempty"`
}

// Importance bounds and default for episodic memories.
const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// ClampImportance maps zero to the default and clamps everything else
// into [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	if v == 0 {
		return DefaultImportance
	}
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}
