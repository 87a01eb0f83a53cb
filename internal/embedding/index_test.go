package embedding_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/embedding/mock"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/store"
)

func newTestIndex(t *testing.T) (*embedding.Index, *mock.Embedder) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	embedder := mock.New(32)
	return embedding.NewIndex(store.NewEmbeddingStore(db), embedder, nil), embedder
}

func TestEmbedPersistsAndFindsSelf(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("the user prefers dark roast coffee", "m1", embedding.EmbedOptions{})
	require.NoError(t, err)
	_, err = ix.Embed("deployment finished without errors", "m2", embedding.EmbedOptions{})
	require.NoError(t, err)

	// Identical text produces an identical vector, so m1 must come back first
	// with a perfect score.
	results, err := ix.FindSimilarText("the user prefers dark roast coffee", embedding.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestFindSimilarOrdersAndLimits(t *testing.T) {
	ix, _ := newTestIndex(t)

	texts := map[string]string{
		"a": "alpha content",
		"b": "beta content",
		"c": "gamma content",
	}
	for id, text := range texts {
		_, err := ix.Embed(text, id, embedding.EmbedOptions{})
		require.NoError(t, err)
	}

	results, err := ix.FindSimilarText("alpha content", embedding.SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestFindSimilarMinScoreFilters(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("some stored text", "m1", embedding.EmbedOptions{})
	require.NoError(t, err)

	results, err := ix.FindSimilarText("some stored text", embedding.SearchOptions{MinScore: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = ix.FindSimilarText("entirely different words", embedding.SearchOptions{MinScore: 0.99})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmbedReplacesVector(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("first version", "m1", embedding.EmbedOptions{})
	require.NoError(t, err)
	_, err = ix.Embed("second version", "m1", embedding.EmbedOptions{})
	require.NoError(t, err)

	results, err := ix.FindSimilarText("second version", embedding.SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestMetadataFilter(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("tagged entry", "tagged", embedding.EmbedOptions{
		Metadata: map[string]any{"topic": "coffee"},
	})
	require.NoError(t, err)
	_, err = ix.Embed("untagged entry", "untagged", embedding.EmbedOptions{})
	require.NoError(t, err)

	results, err := ix.FindSimilarText("entry", embedding.SearchOptions{
		MetadataFilter: map[string]any{"topic": "coffee"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged", results[0].ID)
}

func TestKindSeparatesVectors(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("memory text", "m1", embedding.EmbedOptions{Kind: models.EmbeddingKindMemory})
	require.NoError(t, err)
	_, err = ix.Embed("entity text", "e1", embedding.EmbedOptions{Kind: models.EmbeddingKindEntity})
	require.NoError(t, err)

	results, err := ix.FindSimilarText("memory text", embedding.SearchOptions{Kind: models.EmbeddingKindMemory})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].ID)
}

func TestEmbedderFailurePropagates(t *testing.T) {
	ix, embedder := newTestIndex(t)

	embedder.SetFail(true)
	_, err := ix.Embed("text", "m1", embedding.EmbedOptions{})
	assert.Error(t, err)

	_, err = ix.FindSimilarText("query", embedding.SearchOptions{})
	assert.Error(t, err)
}

func TestUpdateMetadataMerges(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("entry", "m1", embedding.EmbedOptions{
		Metadata: map[string]any{"topic": "coffee", "source": "chat"},
	})
	require.NoError(t, err)

	require.NoError(t, ix.UpdateMetadata("m1", map[string]any{"topic": "tea", "pinned": true}))

	// Patched key replaced, new key added, untouched key kept.
	results, err := ix.FindSimilarText("entry", embedding.SearchOptions{
		MetadataFilter: map[string]any{"topic": "tea", "source": "chat", "pinned": true},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	err = ix.UpdateMetadata("missing", map[string]any{"k": "v"})
	assert.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ix, _ := newTestIndex(t)

	_, err := ix.Embed("short lived", "m1", embedding.EmbedOptions{})
	require.NoError(t, err)

	require.NoError(t, ix.Delete("m1"))
	require.NoError(t, ix.Delete("m1"))

	results, err := ix.FindSimilarText("short lived", embedding.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
