package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/models"
)

// fakeFeedback answers AverageRelevance from an in-memory map and counts
// lookups so caching behavior is observable.
type fakeFeedback struct {
	ratings map[string]float64
	counts  map[string]int
	lookups int
}

func (f *fakeFeedback) AverageRelevance(memoryID string) (float64, int, error) {
	f.lookups++
	return f.ratings[memoryID], f.counts[memoryID], nil
}

func memAt(id, content string, age time.Duration) *models.Memory {
	ts := time.Now().Add(-age).Unix()
	return &models.Memory{ID: id, Content: content, Importance: 5, CreatedAt: ts, UpdatedAt: ts}
}

func TestRankOrdersByScore(t *testing.T) {
	r := NewRanker(nil, nil)

	candidates := []*models.Memory{
		memAt("none", "completely unrelated text", 0),
		memAt("partial", "the color of the sky", 0),
		memAt("exact", "my favorite color is blue", 0),
	}

	ranked := r.Rank(candidates, "favorite color", Options{MaxResults: 10})
	require.Len(t, ranked, 2, "zero-score candidate must be dropped")
	assert.Equal(t, "exact", ranked[0].Memory.ID)
	assert.Equal(t, "partial", ranked[1].Memory.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankExactSubstringBonus(t *testing.T) {
	r := NewRanker(nil, nil)

	// Both contain every term; only one contains the query as a phrase.
	candidates := []*models.Memory{
		memAt("scattered", "color is my favorite thing", 0),
		memAt("phrase", "we discussed my favorite color today", 0),
	}

	ranked := r.Rank(candidates, "favorite color", Options{MaxResults: 10, IncludeReasons: true})
	require.Len(t, ranked, 2)
	assert.Equal(t, "phrase", ranked[0].Memory.ID)
	assert.InDelta(t, 1.0, ranked[0].Factors["substring"], 1e-9)
	assert.InDelta(t, 0.0, ranked[1].Factors["substring"], 1e-9)
	assert.InDelta(t, 0.3, ranked[0].Score-ranked[1].Score, 1e-9)
}

func TestRecencyDecay(t *testing.T) {
	r := NewRanker(nil, nil)

	fresh := memAt("fresh", "remember the meeting notes", 0)
	old := memAt("old", "remember the meeting notes", 30*24*time.Hour)

	t.Run("boost on favors the fresh memory", func(t *testing.T) {
		ranked := r.Rank([]*models.Memory{old, fresh}, "meeting notes agenda", Options{
			MaxResults:   10,
			RecencyBoost: true,
		})
		require.Len(t, ranked, 2)
		assert.Equal(t, "fresh", ranked[0].Memory.ID)
		assert.Greater(t, ranked[0].Score, ranked[1].Score)
	})

	t.Run("boost off scores them equal", func(t *testing.T) {
		ranked := r.Rank([]*models.Memory{old, fresh}, "meeting notes agenda", Options{
			MaxResults: 10,
		})
		require.Len(t, ranked, 2)
		assert.InDelta(t, ranked[0].Score, ranked[1].Score, 1e-9)
	})
}

func TestFeedbackMonotonicity(t *testing.T) {
	fb := &fakeFeedback{
		ratings: map[string]float64{"praised": 5},
		counts:  map[string]int{"praised": 1},
	}
	r := NewRanker(fb, nil)

	praised := memAt("praised", "deploy checklist for fridays", 0)
	plain := memAt("plain", "deploy checklist for fridays", 0)

	ranked := r.Rank([]*models.Memory{plain, praised}, "deploy checklist steps", Options{
		MaxResults:    10,
		FeedbackBoost: true,
	})
	require.Len(t, ranked, 2)
	assert.Equal(t, "praised", ranked[0].Memory.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestFeedbackFactorCachedUntilInvalidated(t *testing.T) {
	fb := &fakeFeedback{
		ratings: map[string]float64{"m": 3},
		counts:  map[string]int{"m": 2},
	}
	r := NewRanker(fb, nil)

	m := memAt("m", "cached feedback target", 0)
	opts := Options{MaxResults: 10, FeedbackBoost: true}

	r.Rank([]*models.Memory{m}, "cached feedback", opts)
	r.Rank([]*models.Memory{m}, "cached feedback", opts)
	assert.Equal(t, 1, fb.lookups, "second rank must hit the cache")

	r.InvalidateFeedback("m")
	r.Rank([]*models.Memory{m}, "cached feedback", opts)
	assert.Equal(t, 2, fb.lookups, "invalidation must force a re-read")
}

func TestScoreClamp(t *testing.T) {
	fb := &fakeFeedback{
		ratings: map[string]float64{"maxed": 5},
		counts:  map[string]int{"maxed": 10},
	}
	r := NewRanker(fb, nil)

	m := memAt("maxed", "everything matches here exactly", 0)
	ranked := r.Rank([]*models.Memory{m}, "everything matches here exactly", Options{
		MaxResults:    10,
		RecencyBoost:  true,
		FeedbackBoost: true,
	})
	require.Len(t, ranked, 1)
	assert.LessOrEqual(t, ranked[0].Score, 1.0)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
}

func TestMinScoreAndMaxResults(t *testing.T) {
	r := NewRanker(nil, nil)

	var candidates []*models.Memory
	for i := 0; i < 20; i++ {
		candidates = append(candidates, memAt(fmt.Sprintf("m%d", i), "shared topic keyword", 0))
	}
	candidates = append(candidates, memAt("weak", "topic", 0))

	ranked := r.Rank(candidates, "shared topic keyword", Options{
		MinScore:   0.5,
		MaxResults: 5,
	})
	assert.Len(t, ranked, 5)
	for _, rm := range ranked {
		assert.GreaterOrEqual(t, rm.Score, 0.5)
	}
}

func TestShortTermsIgnored(t *testing.T) {
	r := NewRanker(nil, nil)

	m := memAt("m", "an ox is a big animal", 0)
	// "an" and "ox" are below the minimum term length; only "big" counts.
	ranked := r.Rank([]*models.Memory{m}, "an ox big", Options{MaxResults: 10, IncludeReasons: true})
	require.Len(t, ranked, 1)
	assert.InDelta(t, 1.0, ranked[0].Factors["termOverlap"], 1e-9)
}
