package memory_test

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/batch"
	"github.com/engramdev/engram/internal/cache"
	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/embedding/mock"
	"github.com/engramdev/engram/internal/learning"
	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/ranking"
	"github.com/engramdev/engram/internal/retrieval"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/temporal"
)

type serviceFixture struct {
	svc      *memory.Service
	memories *store.MemoryStore
	cache    *cache.Cache
	embedder *mock.Embedder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	embedder := mock.New(32)
	memories := store.NewMemoryStore(db)
	keyword := store.NewKeywordStore(db)
	feedback := store.NewFeedbackStore(db)
	index := embedding.NewIndex(store.NewEmbeddingStore(db), embedder, logger)
	memCache, err := cache.New(cache.DefaultConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(memCache.Close)
	ranker := ranking.NewRanker(feedback, logger)
	learner := learning.NewLearner(store.NewPatternStore(db), logger)
	tm := temporal.NewManager(0)
	orch := retrieval.NewOrchestrator(memories, keyword, index, ranker, learner, tm,
		retrieval.Options{RecencyBoost: true, FeedbackBoost: true}, logger)
	batcher := batch.NewManager(memories, index, memCache, logger)

	svc := memory.NewService(memory.Deps{
		Memories:     memories,
		Facts:        store.NewFactStore(db),
		Connections:  store.NewConnectionStore(db),
		Feedback:     feedback,
		Index:        index,
		Cache:        memCache,
		Ranker:       ranker,
		Learner:      learner,
		Batcher:      batcher,
		Orchestrator: orch,
		BatchOpts:    batch.Options{DefaultSource: "conversation", DefaultImportance: 5},
		Logger:       logger,
	})
	return &serviceFixture{svc: svc, memories: memories, cache: memCache, embedder: embedder}
}

func TestServiceStoreAndGetHitsCache(t *testing.T) {
	fx := newServiceFixture(t)

	m, err := fx.svc.Store(&models.StoreRequest{Content: "the user works from home on fridays", Importance: 6})
	require.NoError(t, err)
	require.NotNil(t, m.EmbeddingID)

	before := fx.cache.Stats()
	got, err := fx.svc.Get(m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, before.Hits+1, fx.cache.Stats().Hits)
}

func TestServiceStoreSanitizesContent(t *testing.T) {
	fx := newServiceFixture(t)

	m, err := fx.svc.Store(&models.StoreRequest{
		Content: "api key is sk-abcdefghijklmnopqrstuvwxyz123456 <private>and my address</private> for the deploy job",
	})
	require.NoError(t, err)
	assert.NotContains(t, m.Content, "sk-abcdef")
	assert.Contains(t, m.Content, "[redacted]")
	assert.NotContains(t, m.Content, "my address")

	_, err = fx.svc.Store(&models.StoreRequest{Content: "<private>everything secret</private>"})
	assert.Error(t, err)
}

func TestServiceStoreWithoutVectorOnEmbedderFailure(t *testing.T) {
	fx := newServiceFixture(t)
	fx.embedder.SetFail(true)

	m, err := fx.svc.Store(&models.StoreRequest{Content: "still worth remembering"})
	require.NoError(t, err)
	assert.Nil(t, m.EmbeddingID)

	got, err := fx.svc.Get(m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestServiceUpdateInvalidatesCache(t *testing.T) {
	fx := newServiceFixture(t)

	m, err := fx.svc.Store(&models.StoreRequest{Content: "original wording"})
	require.NoError(t, err)

	// Prime the cache, then update and make sure a fresh read follows.
	_, err = fx.svc.Get(m.ID)
	require.NoError(t, err)

	newContent := "revised wording"
	updated, err := fx.svc.Update(m.ID, &models.UpdateRequest{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.Content)

	got, err := fx.svc.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, newContent, got.Content)
}

func TestServiceDeleteRemovesEverywhere(t *testing.T) {
	fx := newServiceFixture(t)

	m, err := fx.svc.Store(&models.StoreRequest{Content: "ephemeral note"})
	require.NoError(t, err)
	require.NoError(t, fx.svc.Delete(m.ID))

	got, err := fx.svc.Get(m.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, fx.svc.Delete(m.ID))
}

func TestServiceRetrieveEndToEnd(t *testing.T) {
	fx := newServiceFixture(t)

	m, err := fx.svc.Store(&models.StoreRequest{Content: "standup notes from monday morning"})
	require.NoError(t, err)

	resp, err := fx.svc.Retrieve(&models.RetrieveRequest{Query: "standup notes"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.StageLearningEnhanced, resp.Stage)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, m.ID, resp.Memories[0].Memory.ID)
}

func TestServiceFeedbackValidation(t *testing.T) {
	fx := newServiceFixture(t)

	m, err := fx.svc.Store(&models.StoreRequest{Content: "feedback target"})
	require.NoError(t, err)

	err = fx.svc.RecordFeedback(&models.FeedbackRequest{
		QueryID: "q1", MemoryID: m.ID, Relevance: 6, Accuracy: 3,
	})
	assert.Error(t, err)

	err = fx.svc.RecordFeedback(&models.FeedbackRequest{
		QueryID: "q1", MemoryID: m.ID, Relevance: 5, Accuracy: 4,
	})
	assert.NoError(t, err)
}

func TestServiceFactsAndConnections(t *testing.T) {
	fx := newServiceFixture(t)

	f, err := fx.svc.StoreFact(&models.FactRequest{Fact: "the user is in UTC+1", Confidence: 0.6})
	require.NoError(t, err)
	require.NoError(t, fx.svc.ConfirmFact(f.ID, 0.9))

	got, err := fx.svc.GetFact(f.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	a, err := fx.svc.Store(&models.StoreRequest{Content: "learned go generics"})
	require.NoError(t, err)
	b, err := fx.svc.Store(&models.StoreRequest{Content: "refactored the worker pool with generics"})
	require.NoError(t, err)

	strength := 0.8
	conn, err := fx.svc.Connect(&models.ConnectionRequest{
		SourceID: a.ID, TargetID: b.ID, Relationship: "led_to", Strength: &strength,
	})
	require.NoError(t, err)

	conns, err := fx.svc.ConnectionsFor(a.ID, 10)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, conn.ID, conns[0].ID)
}

func TestServiceConnectStrengthDefaulting(t *testing.T) {
	fx := newServiceFixture(t)

	a, err := fx.svc.Store(&models.StoreRequest{Content: "edge source"})
	require.NoError(t, err)
	b, err := fx.svc.Store(&models.StoreRequest{Content: "edge target"})
	require.NoError(t, err)

	// Omitted strength falls back to 0.5.
	conn, err := fx.svc.Connect(&models.ConnectionRequest{
		SourceID: a.ID, TargetID: b.ID, Relationship: "related",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, conn.Strength, 1e-9)

	// An explicit zero is a real value, not "unset".
	zero := 0.0
	conn, err = fx.svc.Connect(&models.ConnectionRequest{
		SourceID: b.ID, TargetID: a.ID, Relationship: "contradicts", Strength: &zero,
	})
	require.NoError(t, err)
	assert.Zero(t, conn.Strength)

	conns, err := fx.svc.ConnectionsFor(b.ID, 10)
	require.NoError(t, err)
	require.Len(t, conns, 2)
}

func TestServiceStoreBatchUsesConfiguredDefaults(t *testing.T) {
	fx := newServiceFixture(t)

	result := fx.svc.StoreBatch([]models.BatchItem{{Content: "bulk imported note"}}, nil)
	require.Equal(t, 1, result.Successful)

	got, err := fx.svc.Get(result.SuccessfulIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "conversation", got.Source)
	assert.Equal(t, 5, got.Importance)

	override := &batch.Options{DefaultSource: "import"}
	result = fx.svc.StoreBatch([]models.BatchItem{{Content: "another bulk note"}}, override)
	require.Equal(t, 1, result.Successful)
	got, err = fx.svc.Get(result.SuccessfulIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "import", got.Source)
}
