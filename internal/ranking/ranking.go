// Package ranking scores candidate memories against a query using content
// overlap, recency, and accumulated feedback.
package ranking

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/engramdev/engram/internal/models"
)

const (
	termWeight      = 0.7
	substringWeight = 0.3

	// maxRecencyFactor decays linearly to 0 at recencyWindow.
	maxRecencyFactor = 0.3
	recencyWindow    = 30 * 24 * time.Hour

	// feedbackScale converts the average normalized rating into a boost.
	feedbackScale = 0.5

	minTermLength = 3
)

// FeedbackSource reports aggregated relevance ratings per memory id. The
// count distinguishes "no feedback" from a true zero.
type FeedbackSource interface {
	AverageRelevance(memoryID string) (avg float64, count int, err error)
}

// Options controls one ranking pass.
type Options struct {
	MinScore       float64
	MaxResults     int
	IncludeReasons bool
	RecencyBoost   bool
	FeedbackBoost  bool
}

// Ranker scores and orders candidates. Per-memory feedback aggregates are
// cached until invalidated by new feedback.
type Ranker struct {
	feedback FeedbackSource
	logger   *slog.Logger

	mu            sync.RWMutex
	feedbackCache map[string]float64
}

func NewRanker(feedback FeedbackSource, logger *slog.Logger) *Ranker {
	return &Ranker{
		feedback:      feedback,
		logger:        logger,
		feedbackCache: make(map[string]float64),
	}
}

// Rank scores candidates against the query and returns them sorted by score
// descending, filtered to MinScore and truncated to MaxResults.
func (r *Ranker) Rank(candidates []*models.Memory, query string, opts Options) []models.RankedMemory {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	terms := queryTerms(query)
	queryLower := strings.ToLower(strings.TrimSpace(query))
	now := time.Now()

	ranked := make([]models.RankedMemory, 0, len(candidates))
	for _, m := range candidates {
		if m == nil {
			continue
		}
		rm := r.scoreOne(m, terms, queryLower, now, opts)
		// A zero score means no content match at all; returning it would let
		// the retrieval cascade stop on useless results.
		if rm.Score > 0 && rm.Score >= opts.MinScore {
			ranked = append(ranked, rm)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked
}

func (r *Ranker) scoreOne(m *models.Memory, terms []string, queryLower string, now time.Time, opts Options) models.RankedMemory {
	contentLower := strings.ToLower(m.Content)

	overlap := termOverlap(terms, contentLower)
	substring := 0.0
	if queryLower != "" && strings.Contains(contentLower, queryLower) {
		substring = 1.0
	}
	score := termWeight*overlap + substringWeight*substring

	factors := map[string]float64{
		"termOverlap": overlap,
		"substring":   substring,
	}

	if opts.RecencyBoost {
		rf := recencyFactor(m.CreatedAt, now)
		score *= 1 + rf
		factors["recency"] = rf
	}
	if opts.FeedbackBoost {
		ff := r.feedbackFactor(m.ID)
		score *= 1 + ff
		factors["feedback"] = ff
	}

	// Multiplicative boosts never push the score past 1.
	if score > 1 {
		score = 1
	}

	rm := models.RankedMemory{Memory: m, Score: score}
	if opts.IncludeReasons {
		rm.Factors = factors
		rm.Reasons = reasons(len(terms), factors)
	}
	return rm
}

// feedbackFactor returns 0.5 × the average relevance rating normalized from
// the 1-5 scale to 0-1, or 0 when the memory has no feedback. Aggregates are
// cached per memory id.
func (r *Ranker) feedbackFactor(memoryID string) float64 {
	r.mu.RLock()
	if f, ok := r.feedbackCache[memoryID]; ok {
		r.mu.RUnlock()
		return f
	}
	r.mu.RUnlock()

	factor := 0.0
	if r.feedback != nil {
		avg, count, err := r.feedback.AverageRelevance(memoryID)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("feedback lookup failed", "memory_id", memoryID, "error", err)
			}
			return 0
		}
		if count > 0 {
			normalized := (avg - 1) / 4
			if normalized < 0 {
				normalized = 0
			}
			factor = feedbackScale * normalized
		}
	}

	r.mu.Lock()
	r.feedbackCache[memoryID] = factor
	r.mu.Unlock()
	return factor
}

// InvalidateFeedback drops the cached aggregate for a memory. Called whenever
// new feedback for that id is recorded.
func (r *Ranker) InvalidateFeedback(memoryID string) {
	r.mu.Lock()
	delete(r.feedbackCache, memoryID)
	r.mu.Unlock()
}

// queryTerms returns the lowercase query terms longer than two characters.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,!?;:'\"()")
		if len(f) >= minTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}

// termOverlap is the fraction of query terms found in the content.
func termOverlap(terms []string, contentLower string) float64 {
	if len(terms) == 0 {
		return 0
	}
	found := 0
	for _, t := range terms {
		if strings.Contains(contentLower, t) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

// recencyFactor decays linearly from 0.3 at age zero to 0 at 30 days.
func recencyFactor(createdAt int64, now time.Time) float64 {
	age := now.Sub(time.Unix(createdAt, 0))
	if age < 0 {
		age = 0
	}
	if age >= recencyWindow {
		return 0
	}
	return maxRecencyFactor * (1 - float64(age)/float64(recencyWindow))
}

func reasons(termCount int, factors map[string]float64) []string {
	var out []string
	if f := factors["termOverlap"]; f > 0 {
		out = append(out, fmt.Sprintf("matched %.0f%% of %d query terms", f*100, termCount))
	}
	if factors["substring"] > 0 {
		out = append(out, "contains the exact query phrase")
	}
	if f, ok := factors["recency"]; ok && f > 0 {
		out = append(out, fmt.Sprintf("recency boost %.2f", f))
	}
	if f, ok := factors["feedback"]; ok && f > 0 {
		out = append(out, fmt.Sprintf("feedback boost %.2f", f))
	}
	return out
}
