// Package memory is the facade the API layer talks to. It composes the
// store, cache, embedding index, ranking, learning, and batch subsystems
// behind one set of operations.
package memory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/batch"
	"github.com/engramdev/engram/internal/cache"
	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/learning"
	"github.com/engramdev/engram/internal/metrics"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/privacy"
	"github.com/engramdev/engram/internal/ranking"
	"github.com/engramdev/engram/internal/retrieval"
	"github.com/engramdev/engram/internal/store"
)

// Service is the main facade for all memory operations.
type Service struct {
	memories     *store.MemoryStore
	facts        *store.FactStore
	connections  *store.ConnectionStore
	feedback     *store.FeedbackStore
	index        *embedding.Index
	cache        *cache.Cache
	ranker       *ranking.Ranker
	learner      *learning.Learner
	batcher      *batch.Manager
	orchestrator *retrieval.Orchestrator
	metrics      *metrics.Metrics
	batchOpts    batch.Options
	cacheTTL     time.Duration
	logger       *slog.Logger
}

type Deps struct {
	Memories     *store.MemoryStore
	Facts        *store.FactStore
	Connections  *store.ConnectionStore
	Feedback     *store.FeedbackStore
	Index        *embedding.Index
	Cache        *cache.Cache
	Ranker       *ranking.Ranker
	Learner      *learning.Learner
	Batcher      *batch.Manager
	Orchestrator *retrieval.Orchestrator
	Metrics      *metrics.Metrics
	BatchOpts    batch.Options
	CacheTTL     time.Duration
	Logger       *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		memories:     d.Memories,
		facts:        d.Facts,
		connections:  d.Connections,
		feedback:     d.Feedback,
		index:        d.Index,
		cache:        d.Cache,
		ranker:       d.Ranker,
		learner:      d.Learner,
		batcher:      d.Batcher,
		orchestrator: d.Orchestrator,
		metrics:      d.Metrics,
		batchOpts:    d.BatchOpts,
		cacheTTL:     d.CacheTTL,
		logger:       d.Logger,
	}
}

// Store persists a single memory. Embedding generation is attempted but
// never fails the write; a memory without a vector is still retrievable by
// keyword.
func (s *Service) Store(req *models.StoreRequest) (*models.Memory, error) {
	content := privacy.Sanitize(req.Content)
	if content == "" {
		return nil, fmt.Errorf("content is empty after privacy filtering")
	}

	now := time.Now().Unix()
	m := &models.Memory{
		ID:         uuid.New().String(),
		Content:    content,
		Importance: models.ClampImportance(req.Importance),
		Context:    req.Context,
		Source:     req.Source,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.index.Embed(m.Content, m.ID, embedding.EmbedOptions{Kind: models.EmbeddingKindMemory}); err != nil {
		s.logger.Warn("embedding failed, storing memory without vector", "memory_id", m.ID, "error", err)
	} else {
		id := m.ID
		m.EmbeddingID = &id
	}

	if err := s.memories.Insert(m); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}
	s.cache.Set(m, s.cacheTTL)
	if s.metrics != nil {
		s.metrics.MemoriesStored.Inc()
	}

	s.learner.Learn(learning.Interaction{
		Type:      learning.InteractionConversation,
		Data:      map[string]any{"content": m.Content, "context": m.Context},
		Timestamp: time.Now(),
	})

	return m, nil
}

// Get returns a memory by id, consulting the cache first. Nil without error
// means not found.
func (s *Service) Get(id string) (*models.Memory, error) {
	if m, ok := s.cache.Get(id); ok {
		s.countCache(true)
		return m, nil
	}
	s.countCache(false)

	m, err := s.memories.GetByID(id)
	if err != nil {
		return nil, err
	}
	if m != nil {
		s.cache.Set(m, s.cacheTTL)
	}
	return m, nil
}

// Update applies a partial update. A content change re-embeds; if that
// fails the stale vector stays and the update still succeeds.
func (s *Service) Update(id string, req *models.UpdateRequest) (*models.Memory, error) {
	if req.Content != nil {
		clean := privacy.Sanitize(*req.Content)
		req.Content = &clean
	}
	m, contentChanged, err := s.memories.Update(id, req)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	if contentChanged {
		if _, err := s.index.Embed(m.Content, m.ID, embedding.EmbedOptions{Kind: models.EmbeddingKindMemory}); err != nil {
			s.logger.Warn("re-embedding failed, keeping stale vector", "memory_id", m.ID, "error", err)
		} else if m.EmbeddingID == nil {
			eid := m.ID
			if setErr := s.memories.SetEmbeddingID(m.ID, &eid); setErr == nil {
				m.EmbeddingID = &eid
			}
		}
	}

	s.cache.Invalidate(id)
	return m, nil
}

// Delete removes a memory, its embedding, and its connections.
func (s *Service) Delete(id string) error {
	if err := s.memories.Delete(id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	s.ranker.InvalidateFeedback(id)
	return nil
}

// Retrieve runs the retrieval cascade.
func (s *Service) Retrieve(req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	resp, err := s.orchestrator.Retrieve(req)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RetrievalStages.WithLabelValues(resp.Stage).Inc()
	}
	s.learner.Learn(learning.Interaction{
		Type:      learning.InteractionMemoryRetrieval,
		Data:      map[string]any{"query": req.Query, "results": len(resp.Memories)},
		Timestamp: time.Now(),
	})
	return resp, nil
}

// List returns a filtered, paginated page of memories straight from the
// store. Listing bypasses the cache.
func (s *Service) List(req *models.ListRequest) (*models.ListResponse, error) {
	return s.memories.List(req)
}

// RecordFeedback stores a rating, drops the ranker's cached aggregate for
// the memory, and feeds the interaction to the learning system.
func (s *Service) RecordFeedback(req *models.FeedbackRequest) error {
	err := s.feedback.Record(&models.Feedback{
		QueryID:   req.QueryID,
		MemoryID:  req.MemoryID,
		Relevance: req.Relevance,
		Accuracy:  req.Accuracy,
		Comment:   req.Comment,
	})
	if err != nil {
		return err
	}
	s.ranker.InvalidateFeedback(req.MemoryID)
	s.learner.Learn(learning.Interaction{
		Type:      learning.InteractionMemoryFeedback,
		Data:      map[string]any{"memoryId": req.MemoryID, "relevance": req.Relevance},
		Timestamp: time.Now(),
	})
	return nil
}

// StoreBatch bulk-stores memories using the configured defaults.
func (s *Service) StoreBatch(items []models.BatchItem, opts *batch.Options) *models.BatchResult {
	effective := s.batchOpts
	if opts != nil {
		effective = mergeBatchOpts(s.batchOpts, *opts)
	}
	result := s.batcher.StoreMany(items, effective)
	s.countBatch("store", result)
	if s.metrics != nil {
		s.metrics.MemoriesStored.Add(float64(result.Successful))
	}
	return result
}

func (s *Service) UpdateBatch(items []models.BatchUpdateItem) *models.BatchResult {
	result := s.batcher.UpdateMany(items, s.batchOpts)
	s.countBatch("update", result)
	return result
}

func (s *Service) DeleteBatch(ids []string) *models.BatchResult {
	result := s.batcher.DeleteMany(ids)
	for _, id := range ids {
		s.ranker.InvalidateFeedback(id)
	}
	s.countBatch("delete", result)
	return result
}

func (s *Service) GetBatch(ids []string) ([]*models.Memory, []string, error) {
	return s.batcher.GetMany(ids)
}

// StoreFact persists a semantic fact.
func (s *Service) StoreFact(req *models.FactRequest) (*models.SemanticFact, error) {
	f := &models.SemanticFact{
		ID:            uuid.New().String(),
		Fact:          req.Fact,
		Confidence:    req.Confidence,
		FirstObserved: time.Now().Unix(),
		Metadata:      req.Metadata,
	}
	if err := s.facts.Insert(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) GetFact(id string) (*models.SemanticFact, error) {
	return s.facts.GetByID(id)
}

func (s *Service) ConfirmFact(id string, confidence float64) error {
	return s.facts.Confirm(id, confidence)
}

func (s *Service) ListFacts(minConfidence float64, limit int) ([]*models.SemanticFact, error) {
	return s.facts.List(minConfidence, limit)
}

func (s *Service) DeleteFact(id string) error {
	return s.facts.Delete(id)
}

// Connect links two memories. The store enforces that both endpoints exist.
// An omitted strength defaults to 0.5; an explicit 0 is kept.
func (s *Service) Connect(req *models.ConnectionRequest) (*models.MemoryConnection, error) {
	strength := 0.5
	if req.Strength != nil {
		strength = *req.Strength
	}
	c := &models.MemoryConnection{
		ID:           uuid.New().String(),
		SourceID:     req.SourceID,
		TargetID:     req.TargetID,
		Relationship: req.Relationship,
		Strength:     strength,
		CreatedAt:    time.Now().Unix(),
		Metadata:     req.Metadata,
	}
	if err := s.connections.Insert(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ConnectionsFor(memoryID string, limit int) ([]*models.MemoryConnection, error) {
	return s.connections.GetForMemory(memoryID, limit)
}

func (s *Service) DeleteConnection(id string) error {
	return s.connections.Delete(id)
}

// Patterns returns what the learning system has accumulated so far.
func (s *Service) Patterns() ([]*models.LearnedPattern, error) {
	return s.learner.Patterns()
}

// CacheStats exposes hit/miss/eviction counters for the stats endpoint.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Service) countCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}
}

func (s *Service) countBatch(operation string, result *models.BatchResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.BatchItems.WithLabelValues(operation, "ok").Add(float64(result.Successful))
	s.metrics.BatchItems.WithLabelValues(operation, "failed").Add(float64(result.Failed))
}

// mergeBatchOpts overlays per-request options onto the configured defaults.
func mergeBatchOpts(base, override batch.Options) batch.Options {
	out := base
	if override.DefaultSource != "" {
		out.DefaultSource = override.DefaultSource
	}
	if override.DefaultContext != "" {
		out.DefaultContext = override.DefaultContext
	}
	if override.DefaultImportance != 0 {
		out.DefaultImportance = override.DefaultImportance
	}
	if override.DefaultMetadata != nil {
		out.DefaultMetadata = override.DefaultMetadata
	}
	if override.GenerateEmbeddings != nil {
		out.GenerateEmbeddings = override.GenerateEmbeddings
	}
	return out
}
