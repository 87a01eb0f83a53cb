// Package retrieval composes the full retrieval cascade: learning-enhanced
// ranking first, degrading through plainer strategies down to a recency
// fallback, so the conversation loop always gets something usable back.
package retrieval

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/learning"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/ranking"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/temporal"
)

// ErrMemoryUnavailable is returned only when every stage of the cascade,
// including the terminal recency fallback, has failed.
var ErrMemoryUnavailable = errors.New("memory retrieval unavailable")

const defaultLimit = 5

// Stage names, in cascade order.
const (
	StageLearningEnhanced = "learning_enhanced"
	StageRelevance        = "relevance"
	StageBasic            = "basic"
	StageRecentFallback   = "recent_fallback"
)

// Options carries the ranking knobs the orchestrator applies on its scored
// stages.
type Options struct {
	MinScore       float64
	IncludeReasons bool
	RecencyBoost   bool
	FeedbackBoost  bool
}

// strategy is one stage of the cascade. Returning (nil, nil) means "no
// results, try the next stage"; an error is logged and treated the same way.
type strategy struct {
	name string
	run  func(req *models.RetrieveRequest, limit int) ([]models.RankedMemory, error)
}

type Orchestrator struct {
	memories *store.MemoryStore
	keyword  *store.KeywordStore
	index    *embedding.Index
	ranker   *ranking.Ranker
	learner  *learning.Learner
	temporal *temporal.Manager
	logger   *slog.Logger
	opts     Options

	stages []strategy

	mu         sync.Mutex
	stageCalls map[string]int
}

func NewOrchestrator(
	memories *store.MemoryStore,
	keyword *store.KeywordStore,
	index *embedding.Index,
	ranker *ranking.Ranker,
	learner *learning.Learner,
	tm *temporal.Manager,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	o := &Orchestrator{
		memories:   memories,
		keyword:    keyword,
		index:      index,
		ranker:     ranker,
		learner:    learner,
		temporal:   tm,
		logger:     logger,
		opts:       opts,
		stageCalls: make(map[string]int),
	}
	o.stages = []strategy{
		{name: StageLearningEnhanced, run: o.learningEnhanced},
		{name: StageRelevance, run: o.relevanceOnly},
		{name: StageBasic, run: o.basic},
		{name: StageRecentFallback, run: o.recentFallback},
	}
	return o
}

// Retrieve walks the cascade in order, stopping at the first stage that
// produces results. Stage failures are swallowed and advance the cascade;
// only the terminal fallback's own failure reaches the caller.
func (o *Orchestrator) Retrieve(req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	o.temporal.RecordInteraction("memory_retrieval")

	resp := &models.RetrieveResponse{
		QueryID: uuid.New().String(),
		Query:   req.Query,
	}

	var lastErr error
	for _, stage := range o.stages {
		o.countStage(stage.name)
		results, err := stage.run(req, limit)
		if err != nil {
			lastErr = err
			o.logger.Warn("retrieval stage failed, falling through",
				"stage", stage.name, "query_id", resp.QueryID, "error", err)
			continue
		}
		// A clean run clears earlier stage errors: they were absorbed by
		// falling through, and must not surface past a working fallback.
		lastErr = nil
		if len(results) == 0 {
			continue
		}
		resp.Stage = stage.name
		resp.Memories = results
		return resp, nil
	}

	// lastErr survives the loop only when the terminal fallback itself failed.
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMemoryUnavailable, lastErr)
	}
	// The cascade ran to the end without results.
	resp.Stage = StageRecentFallback
	resp.Memories = []models.RankedMemory{}
	return resp, nil
}

// StageCalls reports how many times each stage has run. Used to verify that
// an early hit stops the cascade.
func (o *Orchestrator) StageCalls() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(o.stageCalls))
	for k, v := range o.stageCalls {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) countStage(name string) {
	o.mu.Lock()
	o.stageCalls[name]++
	o.mu.Unlock()
}

// learningEnhanced rewrites the query via the learning system, gathers both
// keyword and similarity candidates, and ranks them with every boost on.
func (o *Orchestrator) learningEnhanced(req *models.RetrieveRequest, limit int) ([]models.RankedMemory, error) {
	query := req.Query
	if req.EnhanceQuery == nil || *req.EnhanceQuery {
		query = o.learner.EnhanceQuery(req.Query)
		if query != req.Query {
			o.logger.Debug("query enhanced", "original", req.Query, "enhanced", query)
		}
	}

	tctx := o.temporal.Current()
	o.logger.Debug("retrieval temporal context",
		"time_of_day", tctx.TimeOfDay, "is_work_hours", tctx.IsWorkHours)

	candidates, err := o.gatherCandidates(query, req.Query, limit)
	if err != nil {
		return nil, err
	}
	candidates = o.applyTimeframe(candidates, req.ContextTimeframe)

	ranked := o.ranker.Rank(candidates, req.Query, ranking.Options{
		MinScore:       o.opts.MinScore,
		MaxResults:     limit,
		IncludeReasons: o.opts.IncludeReasons,
		RecencyBoost:   o.opts.RecencyBoost,
		FeedbackBoost:  o.opts.FeedbackBoost,
	})
	return ranked, nil
}

// relevanceOnly skips query enhancement and pulls a keyword pool twice the
// requested size before ranking.
func (o *Orchestrator) relevanceOnly(req *models.RetrieveRequest, limit int) ([]models.RankedMemory, error) {
	hits, err := o.keyword.Search(req.Query, limit*2)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	candidates, err := o.resolveHits(hits)
	if err != nil {
		return nil, err
	}
	candidates = o.applyTimeframe(candidates, req.ContextTimeframe)

	ranked := o.ranker.Rank(candidates, req.Query, ranking.Options{
		MinScore:       o.opts.MinScore,
		MaxResults:     limit,
		IncludeReasons: o.opts.IncludeReasons,
		RecencyBoost:   o.opts.RecencyBoost,
		FeedbackBoost:  o.opts.FeedbackBoost,
	})
	return ranked, nil
}

// basic returns raw store matches without any scoring.
func (o *Orchestrator) basic(req *models.RetrieveRequest, limit int) ([]models.RankedMemory, error) {
	filters := models.QueryFilters{ContentSubstring: firstTerm(req.Query)}
	if since := timeframeSince(req.ContextTimeframe); since != nil {
		filters.Since = since
	}
	mems, err := o.memories.Query(filters, limit, false)
	if err != nil {
		return nil, fmt.Errorf("basic query: %w", err)
	}
	return unranked(mems), nil
}

// recentFallback is the terminal stage: newest N memories, no scoring. Its
// failure is the only one the caller ever sees.
func (o *Orchestrator) recentFallback(req *models.RetrieveRequest, limit int) ([]models.RankedMemory, error) {
	mems, err := o.memories.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("recent fallback: %w", err)
	}
	return unranked(mems), nil
}

// gatherCandidates merges keyword and similarity hits. One source failing is
// tolerated as long as the other answers; both failing fails the stage.
func (o *Orchestrator) gatherCandidates(enhancedQuery, rawQuery string, limit int) ([]*models.Memory, error) {
	var ids []string
	seen := make(map[string]bool)

	hits, kwErr := o.keyword.Search(enhancedQuery, limit*2)
	if kwErr != nil {
		o.logger.Warn("keyword candidates unavailable", "error", kwErr)
	}
	for _, h := range hits {
		if !seen[h.ID] {
			seen[h.ID] = true
			ids = append(ids, h.ID)
		}
	}

	sims, simErr := o.index.FindSimilarText(rawQuery, embedding.SearchOptions{
		Limit: limit * 2,
		Kind:  models.EmbeddingKindMemory,
	})
	if simErr != nil {
		o.logger.Warn("similarity candidates unavailable", "error", simErr)
	}
	for _, s := range sims {
		if !seen[s.ID] {
			seen[s.ID] = true
			ids = append(ids, s.ID)
		}
	}

	if kwErr != nil && simErr != nil {
		return nil, fmt.Errorf("no candidate source available: keyword: %v; similarity: %v", kwErr, simErr)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return o.memories.GetByIDs(ids)
}

func (o *Orchestrator) resolveHits(hits []store.KeywordResult) ([]*models.Memory, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return o.memories.GetByIDs(ids)
}

func (o *Orchestrator) applyTimeframe(mems []*models.Memory, timeframe string) []*models.Memory {
	since := timeframeSince(timeframe)
	if since == nil {
		return mems
	}
	var out []*models.Memory
	for _, m := range mems {
		if m.CreatedAt >= *since {
			out = append(out, m)
		}
	}
	return out
}

// timeframeSince maps a named timeframe to an inclusive unix lower bound.
// Unknown values mean no bound.
func timeframeSince(timeframe string) *int64 {
	var d time.Duration
	switch strings.ToLower(strings.TrimSpace(timeframe)) {
	case "hour", "last_hour":
		d = time.Hour
	case "day", "today", "last_day":
		d = 24 * time.Hour
	case "week", "last_week":
		d = 7 * 24 * time.Hour
	case "month", "last_month":
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	since := time.Now().Add(-d).Unix()
	return &since
}

// firstTerm extracts the longest query term so the basic stage can run a
// plain substring match.
func firstTerm(query string) string {
	best := ""
	for _, f := range strings.Fields(query) {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) > len(best) {
			best = f
		}
	}
	return best
}

func unranked(mems []*models.Memory) []models.RankedMemory {
	out := make([]models.RankedMemory, 0, len(mems))
	for _, m := range mems {
		out = append(out, models.RankedMemory{Memory: m})
	}
	return out
}
