package learning

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/models"
)

// memorySink keeps upserted patterns in a map, mirroring the store's
// id-keyed upsert semantics.
type memorySink struct {
	patterns map[string]*models.LearnedPattern
}

func newMemorySink() *memorySink {
	return &memorySink{patterns: make(map[string]*models.LearnedPattern)}
}

func (s *memorySink) Upsert(p *models.LearnedPattern) error {
	s.patterns[p.ID] = p
	return nil
}

func (s *memorySink) List() ([]*models.LearnedPattern, error) {
	var out []*models.LearnedPattern
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out, nil
}

func conversation(text string) Interaction {
	return Interaction{
		Type:      InteractionConversation,
		Data:      map[string]any{"content": text},
		Timestamp: time.Now(),
	}
}

func TestLearnRejectsUnrecognizedTypes(t *testing.T) {
	l := NewLearner(newMemorySink(), nil)

	assert.False(t, l.Learn(Interaction{Type: "telemetry"}))
	assert.True(t, l.Learn(conversation("hello there")))
	assert.True(t, l.Learn(Interaction{Type: InteractionToolUsage}))
}

func TestEnhanceQueryAppendsContextTags(t *testing.T) {
	l := NewLearner(newMemorySink(), nil)

	enhanced := l.EnhanceQuery("what is my favorite color")
	assert.Equal(t, "what is my favorite color context:preferences", enhanced)

	// Already-tagged queries are not double-tagged.
	assert.Equal(t, enhanced, l.EnhanceQuery(enhanced))

	// Queries without context keywords pass through unchanged.
	assert.Equal(t, "random question", l.EnhanceQuery("random question"))
}

func TestEnhanceQueryMultipleCategories(t *testing.T) {
	l := NewLearner(newMemorySink(), nil)

	enhanced := l.EnhanceQuery("schedule a meeting about my favorite project")
	assert.Contains(t, enhanced, "context:schedule")
	assert.Contains(t, enhanced, "context:preferences")
	assert.Contains(t, enhanced, "context:work")
}

func TestPatternPersistedAtThreshold(t *testing.T) {
	sink := newMemorySink()
	l := NewLearner(sink, nil)

	for i := 0; i < patternThreshold-1; i++ {
		require.True(t, l.Learn(conversation("i prefer tea over coffee")))
	}
	patterns, err := l.Patterns()
	require.NoError(t, err)
	assert.Empty(t, patterns, "below the threshold nothing is persisted")

	require.True(t, l.Learn(conversation("i prefer tea over coffee")))
	patterns, err = l.Patterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "category-preferences", patterns[0].ID)
	assert.InDelta(t, float64(patternThreshold)/20, patterns[0].Confidence, 1e-9)
	assert.NotEmpty(t, patterns[0].Examples)
}

func TestPatternConfidenceGrowsWithSightings(t *testing.T) {
	sink := newMemorySink()
	l := NewLearner(sink, nil)

	for i := 0; i < 30; i++ {
		l.Learn(conversation("deadline for the project task"))
	}
	patterns, err := l.Patterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 1.0, patterns[0].Confidence, "confidence caps at 1")
}

func TestTruncateCutsAtRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 120))

	// 200 bytes of 2-byte runes; a 121-byte cut lands mid-rune and must back
	// up to the previous boundary.
	long := strings.Repeat("é", 100)
	cut := truncate(long, 121)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, strings.Repeat("é", 60)+"...", cut)
}

func TestPatternExamplesStayValidUTF8(t *testing.T) {
	sink := newMemorySink()
	l := NewLearner(sink, nil)

	text := "prefer " + strings.Repeat("日", 50)
	for i := 0; i < patternThreshold; i++ {
		require.True(t, l.Learn(conversation(text)))
	}

	patterns, err := l.Patterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.NotEmpty(t, patterns[0].Examples)
	for _, ex := range patterns[0].Examples {
		assert.True(t, utf8.ValidString(ex), "example %q holds a split rune", ex)
	}
}

func TestLearnWithoutTextIsAccepted(t *testing.T) {
	sink := newMemorySink()
	l := NewLearner(sink, nil)

	assert.True(t, l.Learn(Interaction{
		Type: InteractionMemoryFeedback,
		Data: map[string]any{"memoryId": "m1", "relevance": 5},
	}))
	patterns, err := l.Patterns()
	require.NoError(t, err)
	assert.Empty(t, patterns)
}
