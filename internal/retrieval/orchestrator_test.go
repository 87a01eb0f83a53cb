package retrieval_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/embedding/mock"
	"github.com/engramdev/engram/internal/learning"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/ranking"
	"github.com/engramdev/engram/internal/retrieval"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/temporal"
)

type retrievalFixture struct {
	orch     *retrieval.Orchestrator
	db       *store.DB
	memories *store.MemoryStore
	index    *embedding.Index
	embedder *mock.Embedder
	learner  *learning.Learner
}

func newRetrievalFixture(t *testing.T) *retrievalFixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	embedder := mock.New(32)
	memories := store.NewMemoryStore(db)
	index := embedding.NewIndex(store.NewEmbeddingStore(db), embedder, logger)
	ranker := ranking.NewRanker(store.NewFeedbackStore(db), logger)
	learner := learning.NewLearner(store.NewPatternStore(db), logger)

	orch := retrieval.NewOrchestrator(
		memories,
		store.NewKeywordStore(db),
		index,
		ranker,
		learner,
		temporal.NewManager(0),
		retrieval.Options{RecencyBoost: true, FeedbackBoost: true},
		logger,
	)
	return &retrievalFixture{
		orch:     orch,
		db:       db,
		memories: memories,
		index:    index,
		embedder: embedder,
		learner:  learner,
	}
}

// storeMemory inserts a memory with an embedding, the way the write path does.
func (fx *retrievalFixture) storeMemory(t *testing.T, content string, createdAt int64) string {
	t.Helper()
	id := uuid.New().String()
	mem := &models.Memory{
		ID:         id,
		Content:    content,
		Importance: 5,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		EmbeddingID: func() *string {
			s := id
			return &s
		}(),
	}
	require.NoError(t, fx.memories.Insert(mem))
	_, err := fx.index.Embed(content, id, embedding.EmbedOptions{})
	require.NoError(t, err)
	return id
}

func TestRetrieveStopsAtFirstProductiveStage(t *testing.T) {
	fx := newRetrievalFixture(t)

	now := time.Now().Unix()
	id := fx.storeMemory(t, "the standup meeting moved to thursday", now)
	fx.storeMemory(t, "grocery list for the weekend", now)

	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: "when is the standup meeting"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageLearningEnhanced, resp.Stage)
	assert.NotEmpty(t, resp.QueryID)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, id, resp.Memories[0].Memory.ID)

	// An early hit must not touch the later stages.
	calls := fx.orch.StageCalls()
	assert.Equal(t, 1, calls[retrieval.StageLearningEnhanced])
	assert.Equal(t, 0, calls[retrieval.StageRelevance])
	assert.Equal(t, 0, calls[retrieval.StageBasic])
	assert.Equal(t, 0, calls[retrieval.StageRecentFallback])
}

func TestRetrieveSurvivesEmbedderOutage(t *testing.T) {
	fx := newRetrievalFixture(t)

	now := time.Now().Unix()
	id := fx.storeMemory(t, "database migration postponed until friday", now)

	fx.embedder.SetFail(true)

	// Keyword candidates alone carry the first stage.
	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: "database migration"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageLearningEnhanced, resp.Stage)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, id, resp.Memories[0].Memory.ID)
}

func TestRetrieveFallsBackToRecent(t *testing.T) {
	fx := newRetrievalFixture(t)

	now := time.Now().Unix()
	fx.storeMemory(t, "completely unrelated note one", now-20)
	fx.storeMemory(t, "completely unrelated note two", now-10)
	newest := fx.storeMemory(t, "completely unrelated note three", now)

	fx.embedder.SetFail(true)

	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: "xylophone quarterly forecast"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageRecentFallback, resp.Stage)
	require.Len(t, resp.Memories, 3)
	assert.Equal(t, newest, resp.Memories[0].Memory.ID)

	calls := fx.orch.StageCalls()
	assert.Equal(t, 1, calls[retrieval.StageLearningEnhanced])
	assert.Equal(t, 1, calls[retrieval.StageRelevance])
	assert.Equal(t, 1, calls[retrieval.StageBasic])
	assert.Equal(t, 1, calls[retrieval.StageRecentFallback])
}

func TestRetrieveSwallowsEarlierStageErrorWhenFallbackIsClean(t *testing.T) {
	fx := newRetrievalFixture(t)

	// Break the scored stages: the FTS index is gone and the embedder is
	// down, so both candidate sources of the first two stages error out.
	_, err := fx.db.Exec("DROP TABLE memories_fts")
	require.NoError(t, err)
	fx.embedder.SetFail(true)

	// The basic and recent-fallback stages still run clean against the empty
	// store, so the caller gets an empty success, not the stage errors.
	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageRecentFallback, resp.Stage)
	assert.Empty(t, resp.Memories)

	calls := fx.orch.StageCalls()
	assert.Equal(t, 1, calls[retrieval.StageLearningEnhanced])
	assert.Equal(t, 1, calls[retrieval.StageRelevance])
	assert.Equal(t, 1, calls[retrieval.StageBasic])
	assert.Equal(t, 1, calls[retrieval.StageRecentFallback])
}

func TestRetrieveQuoteOnlyQueryIsClean(t *testing.T) {
	fx := newRetrievalFixture(t)

	now := time.Now().Unix()
	newest := fx.storeMemory(t, "a perfectly ordinary note", now)

	// Quote-stripping leaves no search terms; the keyword stages come up
	// empty instead of tripping over match syntax, and the basic stage's
	// unfiltered query serves the newest rows.
	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: `"`})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageBasic, resp.Stage)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, newest, resp.Memories[0].Memory.ID)
}

func TestRetrieveEmptyStoreIsClean(t *testing.T) {
	fx := newRetrievalFixture(t)

	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: "anything at all"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageRecentFallback, resp.Stage)
	assert.Empty(t, resp.Memories)
	assert.NotEmpty(t, resp.QueryID)
}

func TestRetrieveEnhancementCanBeDisabled(t *testing.T) {
	fx := newRetrievalFixture(t)

	// A preference-flavored query would normally be rewritten before search.
	assert.NotEqual(t, "my favorite editor", fx.learner.EnhanceQuery("my favorite editor"))

	now := time.Now().Unix()
	id := fx.storeMemory(t, "my favorite editor is configured for dark mode", now)

	off := false
	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{
		Query:        "my favorite editor",
		EnhanceQuery: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageLearningEnhanced, resp.Stage)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, id, resp.Memories[0].Memory.ID)
}

func TestRetrieveTimeframeFiltersScoredStages(t *testing.T) {
	fx := newRetrievalFixture(t)

	old := time.Now().Add(-72 * time.Hour).Unix()
	oldID := fx.storeMemory(t, "quarterly planning session recap", old)

	// The only keyword match is outside the timeframe, so the scored stages
	// come up empty and recency serves it anyway.
	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{
		Query:            "quarterly planning session",
		ContextTimeframe: "day",
	})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageRecentFallback, resp.Stage)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, oldID, resp.Memories[0].Memory.ID)
}

func TestRetrieveLimitDefaultsAndBounds(t *testing.T) {
	fx := newRetrievalFixture(t)

	now := time.Now().Unix()
	for i := 0; i < 8; i++ {
		fx.storeMemory(t, fmt.Sprintf("shared project roadmap item %d", i), now-int64(i))
	}

	resp, err := fx.orch.Retrieve(&models.RetrieveRequest{Query: "shared project roadmap"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Memories), 5)

	resp, err = fx.orch.Retrieve(&models.RetrieveRequest{Query: "shared project roadmap", Limit: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Memories), 2)
	assert.NotEmpty(t, resp.Memories)
}

func TestErrMemoryUnavailableIdentity(t *testing.T) {
	wrapped := fmt.Errorf("%w: %v", retrieval.ErrMemoryUnavailable, errors.New("disk gone"))
	assert.True(t, errors.Is(wrapped, retrieval.ErrMemoryUnavailable))
}
