package repo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperbrief/internal/model"
	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
	"github.com/xxxsen/paperbrief/internal/repo"
	"github.com/xxxsen/paperbrief/test/testutil"
)

const testModel = "test-embed-768"

func testVector() []float32 {
	vec := make([]float32, 768)
	vec[0] = 1
	return vec
}

func TestEmbeddingRepoSaveIdempotent(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	embs := repo.NewEmbeddingRepo(db)
	paperID := fmt.Sprintf("paper-emb-%d", timeutil.NowMillis())
	sectionID := storeSection(t, chunks, paperID, "results", "vector target")
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	emb := &model.SectionEmbedding{
		SectionID: sectionID,
		ModelName: testModel,
		Vector:    testVector(),
		Ctime:     timeutil.NowMillis(),
	}
	require.NoError(t, embs.Save(context.Background(), emb))
	// second save hits the (section_id, model_name) conflict and is a no-op
	require.NoError(t, embs.Save(context.Background(), emb))

	fetched, err := embs.GetBySectionID(context.Background(), sectionID, testModel)
	require.NoError(t, err)
	require.Len(t, fetched.Vector, 768)
	require.Equal(t, float32(1), fetched.Vector[0])
}

func TestEmbeddingRepoPendingLifecycle(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	embs := repo.NewEmbeddingRepo(db)
	paperID := fmt.Sprintf("paper-pending-%d", timeutil.NowMillis())
	modelName := fmt.Sprintf("pending-model-%d", timeutil.NowMillis())
	first := storeSection(t, chunks, paperID, "results", "embedded later")
	second := storeSection(t, chunks, paperID, "methods", "still pending")
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	pending, err := embs.ListPendingSections(context.Background(), modelName, 100)
	require.NoError(t, err)
	ids := make(map[int64]bool)
	for _, chunk := range pending {
		ids[chunk.SectionID] = true
	}
	require.True(t, ids[first])
	require.True(t, ids[second])

	require.NoError(t, embs.Save(context.Background(), &model.SectionEmbedding{
		SectionID: first,
		ModelName: modelName,
		Vector:    testVector(),
		Ctime:     timeutil.NowMillis(),
	}))

	pending, err = embs.ListPendingSections(context.Background(), modelName, 100)
	require.NoError(t, err)
	ids = make(map[int64]bool)
	for _, chunk := range pending {
		ids[chunk.SectionID] = true
	}
	require.False(t, ids[first])
	require.True(t, ids[second])
}

func TestEmbeddingRepoListEmbeddedPagination(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	embs := repo.NewEmbeddingRepo(db)
	paperID := fmt.Sprintf("paper-page-%d", timeutil.NowMillis())
	modelName := fmt.Sprintf("page-model-%d", timeutil.NowMillis())
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	var sectionIDs []int64
	for i := 0; i < 5; i++ {
		id := storeSection(t, chunks, paperID, "results", fmt.Sprintf("section %d", i))
		sectionIDs = append(sectionIDs, id)
		require.NoError(t, embs.Save(context.Background(), &model.SectionEmbedding{
			SectionID: id,
			ModelName: modelName,
			Vector:    testVector(),
			Ctime:     timeutil.NowMillis(),
		}))
	}

	var cursor int64
	seen := 0
	for {
		page, err := embs.ListEmbedded(context.Background(), modelName, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			require.Greater(t, item.EmbeddingID, cursor)
			cursor = item.EmbeddingID
			seen++
		}
	}
	require.Equal(t, 5, seen)

	byIDs, err := embs.ListBySectionIDs(context.Background(), modelName, sectionIDs[:3])
	require.NoError(t, err)
	require.Len(t, byIDs, 3)
}

func TestEmbeddingRepoEmbeddingsCascadeOnPaperDelete(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	embs := repo.NewEmbeddingRepo(db)
	paperID := fmt.Sprintf("paper-cascade-%d", timeutil.NowMillis())
	modelName := fmt.Sprintf("cascade-model-%d", timeutil.NowMillis())
	sectionID := storeSection(t, chunks, paperID, "results", "cascades away")
	require.NoError(t, embs.Save(context.Background(), &model.SectionEmbedding{
		SectionID: sectionID,
		ModelName: modelName,
		Vector:    testVector(),
		Ctime:     timeutil.NowMillis(),
	}))

	_, err := chunks.DeleteByPaper(context.Background(), paperID)
	require.NoError(t, err)

	_, err = embs.GetBySectionID(context.Background(), sectionID, modelName)
	require.Error(t, err)
}
