package repo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperbrief/internal/model"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
	"github.com/xxxsen/paperbrief/internal/repo"
	"github.com/xxxsen/paperbrief/test/testutil"
)

func storeSection(t *testing.T, chunks *repo.ChunkRepo, paperID, sectionType, content string) int64 {
	t.Helper()
	id, err := chunks.Create(context.Background(), &model.SectionChunk{
		PaperID:     paperID,
		SectionType: sectionType,
		Content:     content,
		ByteStart:   0,
		ByteEnd:     int64(len(content)),
		TokenStart:  0,
		TokenEnd:    10,
		Ctime:       timeutil.NowMillis(),
	})
	require.NoError(t, err)
	return id
}

func TestChunkRepoCreateAndGet(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	paperID := fmt.Sprintf("paper-get-%d", timeutil.NowMillis())

	sectionID := storeSection(t, chunks, paperID, "results", "microgravity reduced root growth by 25 percent")
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	fetched, err := chunks.GetByID(context.Background(), sectionID)
	require.NoError(t, err)
	require.Equal(t, paperID, fetched.PaperID)
	require.Equal(t, "results", fetched.SectionType)
	require.Empty(t, fetched.Tokens)

	_, err = chunks.GetByID(context.Background(), sectionID+1000000)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestChunkRepoAttachTokens(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	paperID := fmt.Sprintf("paper-tokens-%d", timeutil.NowMillis())
	sectionID := storeSection(t, chunks, paperID, "methods", "samples were flown on the ISS")
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	require.NoError(t, chunks.AttachTokens(context.Background(), sectionID, []string{"samples", "were", "flown"}))
	fetched, err := chunks.GetByID(context.Background(), sectionID)
	require.NoError(t, err)
	require.Equal(t, []string{"samples", "were", "flown"}, fetched.Tokens)

	require.ErrorIs(t, chunks.AttachTokens(context.Background(), sectionID+1000000, []string{"x"}), appErr.ErrNotFound)
}

func TestChunkRepoListAndStructure(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	paperID := fmt.Sprintf("paper-list-%d", timeutil.NowMillis())
	storeSection(t, chunks, paperID, "abstract", "study of plants in orbit")
	storeSection(t, chunks, paperID, "results", "roots grew slower")
	storeSection(t, chunks, paperID, "results", "gene expression changed")
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	all, err := chunks.ListByPaper(context.Background(), paperID)
	require.NoError(t, err)
	require.Len(t, all, 3)

	results, err := chunks.ListByType(context.Background(), paperID, "results")
	require.NoError(t, err)
	require.Len(t, results, 2)

	structure, err := chunks.Structure(context.Background(), paperID)
	require.NoError(t, err)
	require.Equal(t, 3, structure.TotalSections)
	require.Len(t, structure.Sections, 2)
}

func TestChunkRepoSearchText(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	paperID := fmt.Sprintf("paper-fts-%d", timeutil.NowMillis())
	storeSection(t, chunks, paperID, "results", "spaceflight induced bone density loss in mice")
	storeSection(t, chunks, paperID, "methods", "we measured muscle mass")
	t.Cleanup(func() { _, _ = chunks.DeleteByPaper(context.Background(), paperID) })

	matches, err := chunks.SearchText(context.Background(), "bone density", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, "results", matches[0].Chunk.SectionType)
	require.Greater(t, matches[0].Rank, 0.0)
}

func TestChunkRepoDeleteByPaper(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	chunks := repo.NewChunkRepo(db)
	paperID := fmt.Sprintf("paper-del-%d", timeutil.NowMillis())
	storeSection(t, chunks, paperID, "results", "to be removed")
	storeSection(t, chunks, paperID, "methods", "also removed")

	ids, err := chunks.SectionIDsByPaper(context.Background(), paperID)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	deleted, err := chunks.DeleteByPaper(context.Background(), paperID)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	remaining, err := chunks.ListByPaper(context.Background(), paperID)
	require.NoError(t, err)
	require.Empty(t, remaining)
}
