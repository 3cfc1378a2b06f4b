package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/paperbrief/internal/model"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// Save inserts one embedding row. Conflicts on (section_id, model_name) are
// ignored so a racing backfill never fails the batch.
func (r *EmbeddingRepo) Save(ctx context.Context, emb *model.SectionEmbedding) error {
	const query = `
		INSERT INTO embeddings (section_id, model_name, embedding, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (section_id, model_name) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		emb.SectionID,
		emb.ModelName,
		pgvector.NewVector(emb.Vector),
		emb.Ctime,
	)
	return err
}

func (r *EmbeddingRepo) GetBySectionID(ctx context.Context, sectionID int64, modelName string) (*model.SectionEmbedding, error) {
	const query = `
		SELECT embedding_id, section_id, model_name, embedding, ctime
		FROM embeddings
		WHERE section_id = $1 AND model_name = $2
	`
	row := r.db.QueryRowContext(ctx, query, sectionID, modelName)
	var emb model.SectionEmbedding
	var vec pgvector.Vector
	if err := row.Scan(&emb.EmbeddingID, &emb.SectionID, &emb.ModelName, &vec, &emb.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	emb.Vector = vec.Slice()
	return &emb, nil
}

// ListPendingSections returns sections that have no embedding row for the
// given model yet. The left anti-join is what makes backfill idempotent.
func (r *EmbeddingRepo) ListPendingSections(ctx context.Context, modelName string, limit int) ([]model.SectionChunk, error) {
	const query = `
		SELECT ds.section_id, ds.paper_id, ds.section_type, ds.content, ds.ctime
		FROM document_sections ds
		LEFT JOIN embeddings e ON ds.section_id = e.section_id AND e.model_name = $1
		WHERE e.section_id IS NULL
		ORDER BY ds.ctime
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, modelName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.SectionChunk, 0)
	for rows.Next() {
		var chunk model.SectionChunk
		if err := rows.Scan(&chunk.SectionID, &chunk.PaperID, &chunk.SectionType, &chunk.Content, &chunk.Ctime); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *EmbeddingRepo) CountPending(ctx context.Context, modelName string) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM document_sections ds
		LEFT JOIN embeddings e ON ds.section_id = e.section_id AND e.model_name = $1
		WHERE e.section_id IS NULL
	`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, modelName).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListEmbedded pages through embedding rows joined with their sections,
// ordered by embedding_id. afterID is the keyset cursor; pass 0 to start.
func (r *EmbeddingRepo) ListEmbedded(ctx context.Context, modelName string, afterID int64, limit int) ([]model.EmbeddedChunk, error) {
	const query = `
		SELECT e.embedding_id, e.section_id, ds.paper_id, ds.section_type, ds.content, e.embedding
		FROM embeddings e
		JOIN document_sections ds ON e.section_id = ds.section_id
		WHERE e.model_name = $1 AND e.embedding_id > $2
		ORDER BY e.embedding_id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, modelName, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.EmbeddedChunk, 0)
	for rows.Next() {
		var item model.EmbeddedChunk
		var vec pgvector.Vector
		if err := rows.Scan(&item.EmbeddingID, &item.SectionID, &item.PaperID, &item.SectionType, &item.Content, &vec); err != nil {
			return nil, err
		}
		item.Vector = vec.Slice()
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListBySectionIDs resolves embeddings for an explicit id set, used by the
// brute-force fallback when the candidate corpus is small.
func (r *EmbeddingRepo) ListBySectionIDs(ctx context.Context, modelName string, sectionIDs []int64) ([]model.EmbeddedChunk, error) {
	if len(sectionIDs) == 0 {
		return []model.EmbeddedChunk{}, nil
	}
	query := `
		SELECT e.embedding_id, e.section_id, ds.paper_id, ds.section_type, ds.content, e.embedding
		FROM embeddings e
		JOIN document_sections ds ON e.section_id = ds.section_id
		WHERE e.model_name = ? AND e.section_id IN (?)
	`
	query, args, err := sqlx.In(query, modelName, sectionIDs)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.EmbeddedChunk, 0)
	for rows.Next() {
		var item model.EmbeddedChunk
		var vec pgvector.Vector
		if err := rows.Scan(&item.EmbeddingID, &item.SectionID, &item.PaperID, &item.SectionType, &item.Content, &vec); err != nil {
			return nil, err
		}
		item.Vector = vec.Slice()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *EmbeddingRepo) Stats(ctx context.Context, modelName string) (*model.EmbeddingStats, error) {
	stats := &model.EmbeddingStats{ByType: make(map[string]int64)}
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model_name = $1`, modelName)
	if err := row.Scan(&stats.TotalEmbeddings); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ds.section_type, COUNT(*)
		FROM embeddings e
		JOIN document_sections ds ON e.section_id = ds.section_id
		WHERE e.model_name = $1
		GROUP BY ds.section_type
	`, modelName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sectionType string
		var count int64
		if err := rows.Scan(&sectionType, &count); err != nil {
			return nil, err
		}
		stats.ByType[sectionType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	pending, err := r.CountPending(ctx, modelName)
	if err != nil {
		return nil, err
	}
	stats.Pending = pending
	return stats, nil
}
