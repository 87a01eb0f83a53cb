// Package learning accumulates interaction feedback and rewrites queries to
// improve future recall.
package learning

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/engramdev/engram/internal/models"
)

// Interaction is one observed event fed into the learner.
type Interaction struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recognized interaction types. Anything else is rejected without error.
const (
	InteractionConversation    = "conversation"
	InteractionMemoryRetrieval = "memory_retrieval"
	InteractionMemoryFeedback  = "memory_feedback"
	InteractionToolUsage       = "tool_usage"
)

var recognizedTypes = map[string]bool{
	InteractionConversation:    true,
	InteractionMemoryRetrieval: true,
	InteractionMemoryFeedback:  true,
	InteractionToolUsage:       true,
}

// contextKeywords maps a context tag to the keywords that indicate it.
var contextKeywords = map[string][]string{
	"preferences": {"favorite", "prefer", "like", "love", "hate", "dislike"},
	"schedule":    {"meeting", "appointment", "schedule", "calendar", "tomorrow", "tonight"},
	"personal":    {"family", "friend", "birthday", "anniversary"},
	"work":        {"project", "deadline", "task", "colleague"},
}

// patternThreshold is how many sightings of a context category it takes
// before a learned pattern is persisted.
const patternThreshold = 5

// PatternSink persists learned patterns.
type PatternSink interface {
	Upsert(p *models.LearnedPattern) error
	List() ([]*models.LearnedPattern, error)
}

// Learner watches interactions, persists inferred patterns, and enhances
// queries with context tags.
type Learner struct {
	patterns PatternSink
	logger   *slog.Logger

	mu       sync.Mutex
	counts   map[string]int
	examples map[string][]string
}

func NewLearner(patterns PatternSink, logger *slog.Logger) *Learner {
	return &Learner{
		patterns: patterns,
		logger:   logger,
		counts:   make(map[string]int),
		examples: make(map[string][]string),
	}
}

// Learn ingests one interaction. Unrecognized types return false without
// raising; recognized ones update category counts and may persist a pattern.
func (l *Learner) Learn(in Interaction) bool {
	if !recognizedTypes[in.Type] {
		if l.logger != nil {
			l.logger.Debug("ignoring unrecognized interaction type", "type", in.Type)
		}
		return false
	}

	text := interactionText(in)
	if text == "" {
		return true
	}

	for category := range categoriesIn(text) {
		l.observe(category, text)
	}
	return true
}

// EnhanceQuery appends inferred context tags to a query, e.g. a
// preference-flavored question gains "context:preferences". Tags already
// present are not duplicated.
func (l *Learner) EnhanceQuery(query string) string {
	enhanced := query
	for category := range categoriesIn(strings.ToLower(query)) {
		tag := "context:" + category
		if !strings.Contains(enhanced, tag) {
			enhanced += " " + tag
		}
	}
	return enhanced
}

// Patterns returns the persisted learned patterns.
func (l *Learner) Patterns() ([]*models.LearnedPattern, error) {
	return l.patterns.List()
}

func (l *Learner) observe(category, example string) {
	l.mu.Lock()
	l.counts[category]++
	count := l.counts[category]
	if len(l.examples[category]) < 3 {
		l.examples[category] = append(l.examples[category], truncate(example, 120))
	}
	examples := append([]string(nil), l.examples[category]...)
	l.mu.Unlock()

	if count < patternThreshold {
		return
	}

	confidence := float64(count) / 20
	if confidence > 1 {
		confidence = 1
	}
	p := &models.LearnedPattern{
		ID:         "category-" + category,
		Pattern:    fmt.Sprintf("interactions frequently concern %s", category),
		Confidence: confidence,
		Source:     "interaction-counts",
		Examples:   examples,
		CreatedAt:  time.Now().Unix(),
	}
	if err := l.patterns.Upsert(p); err != nil && l.logger != nil {
		l.logger.Warn("persist learned pattern failed", "category", category, "error", err)
	}
}

// categoriesIn returns the context categories whose keywords appear in text.
func categoriesIn(text string) map[string]bool {
	lower := strings.ToLower(text)
	hits := make(map[string]bool)
	for category, keywords := range contextKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits[category] = true
				break
			}
		}
	}
	return hits
}

// interactionText pulls the free-text payload out of an interaction.
func interactionText(in Interaction) string {
	for _, key := range []string{"query", "content", "message", "text"} {
		if v, ok := in.Data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// truncate cuts s to at most maxLen bytes, backing up to a rune boundary so
// a multi-byte character is never split.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
