// Package batch implements bulk memory operations with transactional
// sub-batches and per-item fallback, so one bad item degrades a bulk call to
// partial success instead of total failure.
package batch

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/cache"
	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/privacy"
	"github.com/engramdev/engram/internal/store"
)

const (
	// embedSubBatchSize bounds embedding concurrency: one sub-batch of
	// goroutines is joined before the next starts.
	embedSubBatchSize = 10
	// storeSubBatchSize is the size of each all-or-nothing insert/delete
	// transaction.
	storeSubBatchSize = 50
)

// Options supplies per-call defaults for items that omit a field.
type Options struct {
	DefaultSource      string         `json:"defaultSource,omitempty"`
	DefaultContext     string         `json:"defaultContext,omitempty"`
	DefaultImportance  int            `json:"defaultImportance,omitempty"`
	DefaultMetadata    map[string]any `json:"defaultMetadata,omitempty"`
	GenerateEmbeddings *bool          `json:"generateEmbeddings,omitempty"`
}

func (o Options) generateEmbeddings() bool {
	return o.GenerateEmbeddings == nil || *o.GenerateEmbeddings
}

// Manager runs bulk store/update/delete/get operations.
type Manager struct {
	memories *store.MemoryStore
	index    *embedding.Index
	cache    *cache.Cache
	logger   *slog.Logger
}

func NewManager(memories *store.MemoryStore, index *embedding.Index, memCache *cache.Cache, logger *slog.Logger) *Manager {
	return &Manager{
		memories: memories,
		index:    index,
		cache:    memCache,
		logger:   logger,
	}
}

// workItem tracks one input item through the pipeline by its original index.
type workItem struct {
	index  int
	memory *models.Memory
	err    error
}

// StoreMany stores a batch of memories. Ids and timestamps are assigned up
// front; embeddings are generated concurrently in fixed-size sub-batches; the
// store mutation runs as all-or-nothing transactions that fall back to
// item-by-item inserts on failure. The result reports exactly which input
// indices failed and why.
func (m *Manager) StoreMany(items []models.BatchItem, opts Options) *models.BatchResult {
	start := time.Now()
	result := &models.BatchResult{}

	now := time.Now().Unix()
	work := make([]*workItem, len(items))
	for i, item := range items {
		work[i] = &workItem{index: i}
		item.Content = privacy.Sanitize(item.Content)
		if strings.TrimSpace(item.Content) == "" {
			work[i].err = fmt.Errorf("content must not be empty")
			continue
		}
		work[i].memory = buildMemory(item, opts, now)
	}

	if opts.generateEmbeddings() {
		m.embedAll(work)
	}

	var pending []*workItem
	for _, w := range work {
		if w.err == nil {
			pending = append(pending, w)
		}
	}

	for _, sub := range subBatches(pending, storeSubBatchSize) {
		mems := make([]*models.Memory, len(sub))
		for i, w := range sub {
			mems[i] = w.memory
		}
		if err := m.memories.InsertMany(mems); err == nil {
			continue
		} else {
			m.logger.Warn("batch insert failed, retrying item-by-item", "size", len(sub), "error", err)
		}
		// Transaction rolled back: retry every item individually so one bad
		// row only fails itself.
		for _, w := range sub {
			if err := m.memories.Insert(w.memory); err != nil {
				w.err = err
			}
		}
	}

	for _, w := range work {
		if w.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{Index: w.index, Error: w.err.Error()})
			continue
		}
		result.Successful++
		result.SuccessfulIDs = append(result.SuccessfulIDs, w.memory.ID)
		if m.cache != nil {
			m.cache.Set(w.memory, 0)
		}
	}

	result.TimeTakenMs = time.Since(start).Milliseconds()
	return result
}

// UpdateMany applies partial updates item by item, regenerating embeddings
// for content changes. A failed regeneration keeps the stale vector and does
// not fail the update.
func (m *Manager) UpdateMany(items []models.BatchUpdateItem, opts Options) *models.BatchResult {
	start := time.Now()
	result := &models.BatchResult{}

	for i, item := range items {
		if item.ID == "" {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{Index: i, Error: "id must not be empty"})
			continue
		}
		mem, contentChanged, err := m.memories.Update(item.ID, &item.Update)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{Index: i, Error: err.Error()})
			continue
		}

		if contentChanged && mem.EmbeddingID != nil && opts.generateEmbeddings() {
			if _, err := m.index.Embed(mem.Content, *mem.EmbeddingID, embedding.EmbedOptions{Kind: models.EmbeddingKindMemory}); err != nil {
				m.logger.Warn("embedding regeneration failed, keeping stale vector",
					"memory_id", mem.ID, "error", err)
			}
		}

		result.Successful++
		result.SuccessfulIDs = append(result.SuccessfulIDs, mem.ID)
		if m.cache != nil {
			m.cache.Invalidate(mem.ID)
		}
	}

	result.TimeTakenMs = time.Since(start).Milliseconds()
	return result
}

// DeleteMany removes memories in transactional sub-batches with item-by-item
// fallback, mirroring StoreMany.
func (m *Manager) DeleteMany(ids []string) *models.BatchResult {
	start := time.Now()
	result := &models.BatchResult{}

	work := make([]*workItem, len(ids))
	for i := range ids {
		work[i] = &workItem{index: i}
		if ids[i] == "" {
			work[i].err = fmt.Errorf("id must not be empty")
		}
	}

	var pending []*workItem
	for _, w := range work {
		if w.err == nil {
			pending = append(pending, w)
		}
	}

	for _, sub := range subBatches(pending, storeSubBatchSize) {
		batchIDs := make([]string, len(sub))
		for i, w := range sub {
			batchIDs[i] = ids[w.index]
		}
		if err := m.memories.DeleteMany(batchIDs); err == nil {
			continue
		} else {
			m.logger.Warn("batch delete failed, retrying item-by-item", "size", len(sub), "error", err)
		}
		for _, w := range sub {
			if err := m.memories.Delete(ids[w.index]); err != nil {
				w.err = err
			}
		}
	}

	for _, w := range work {
		if w.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{Index: w.index, Error: w.err.Error()})
			continue
		}
		result.Successful++
		result.SuccessfulIDs = append(result.SuccessfulIDs, ids[w.index])
		if m.cache != nil {
			m.cache.Invalidate(ids[w.index])
		}
	}

	result.TimeTakenMs = time.Since(start).Milliseconds()
	return result
}

// GetMany fetches memories by id in a single query and reports the ids that
// were not found.
func (m *Manager) GetMany(ids []string) ([]*models.Memory, []string, error) {
	memories, err := m.memories.GetByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	found := make(map[string]bool, len(memories))
	for _, mem := range memories {
		found[mem.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return memories, missing, nil
}

// embedAll generates embeddings in sub-batches of bounded concurrency. Every
// sub-batch is joined before the next starts, and all embedding work finishes
// before the dependent insert transaction begins. A failed embedding leaves
// that item without a vector but does not fail it.
func (m *Manager) embedAll(work []*workItem) {
	var valid []*workItem
	for _, w := range work {
		if w.err == nil {
			valid = append(valid, w)
		}
	}

	for _, sub := range subBatches(valid, embedSubBatchSize) {
		var wg sync.WaitGroup
		for _, w := range sub {
			wg.Add(1)
			go func(w *workItem) {
				defer wg.Done()
				if _, err := m.index.Embed(w.memory.Content, w.memory.ID, embedding.EmbedOptions{
					Kind: models.EmbeddingKindMemory,
				}); err != nil {
					m.logger.Warn("batch embedding failed, storing without vector",
						"memory_id", w.memory.ID, "error", err)
					return
				}
				id := w.memory.ID
				w.memory.EmbeddingID = &id
			}(w)
		}
		wg.Wait()
	}
}

func buildMemory(item models.BatchItem, opts Options, now int64) *models.Memory {
	importance := item.Importance
	if importance == 0 {
		importance = opts.DefaultImportance
	}
	context := item.Context
	if context == "" {
		context = opts.DefaultContext
	}
	source := item.Source
	if source == "" {
		source = opts.DefaultSource
	}
	metadata := item.Metadata
	if metadata == nil && opts.DefaultMetadata != nil {
		metadata = opts.DefaultMetadata
	}

	return &models.Memory{
		ID:         uuid.New().String(),
		Content:    item.Content,
		Importance: models.ClampImportance(importance),
		Context:    context,
		Source:     source,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func subBatches(items []*workItem, size int) [][]*workItem {
	var out [][]*workItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
