package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperbrief/internal/model"
	"github.com/xxxsen/paperbrief/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
)

var chunkFields = []string{"section_id", "paper_id", "section_type", "content", "byte_start", "byte_end", "token_start", "token_end", "tokens", "ctime"}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) Create(ctx context.Context, chunk *model.SectionChunk) (int64, error) {
	const query = `
		INSERT INTO document_sections (
			paper_id, section_type, content,
			byte_start, byte_end, token_start, token_end, ctime
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING section_id
	`
	var sectionID int64
	err := r.db.QueryRowContext(ctx, query,
		chunk.PaperID, chunk.SectionType, chunk.Content,
		chunk.ByteStart, chunk.ByteEnd, chunk.TokenStart, chunk.TokenEnd, chunk.Ctime,
	).Scan(&sectionID)
	if err != nil {
		return 0, err
	}
	return sectionID, nil
}

// AttachTokens stores the tokenization of a section after insert. Tokens are
// the only field a chunk row ever gains post-creation.
func (r *ChunkRepo) AttachTokens(ctx context.Context, sectionID int64, tokens []string) error {
	blob, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	const query = `UPDATE document_sections SET tokens = $1 WHERE section_id = $2`
	result, err := r.db.ExecContext(ctx, query, blob, sectionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ChunkRepo) GetByID(ctx context.Context, sectionID int64) (*model.SectionChunk, error) {
	where := map[string]interface{}{
		"section_id": sectionID,
	}
	sqlStr, args, err := builder.BuildSelect("document_sections", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	chunk, err := scanChunk(rows)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (r *ChunkRepo) ListByPaper(ctx context.Context, paperID string) ([]model.SectionChunk, error) {
	where := map[string]interface{}{
		"paper_id": paperID,
		"_orderby": "section_type",
	}
	return r.listChunks(ctx, where)
}

func (r *ChunkRepo) ListByType(ctx context.Context, paperID, sectionType string) ([]model.SectionChunk, error) {
	where := map[string]interface{}{
		"paper_id":     paperID,
		"section_type": sectionType,
		"_orderby":     "ctime",
	}
	return r.listChunks(ctx, where)
}

func (r *ChunkRepo) listChunks(ctx context.Context, where map[string]interface{}) ([]model.SectionChunk, error) {
	sqlStr, args, err := builder.BuildSelect("document_sections", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.SectionChunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

// SearchText runs a Postgres full-text query ranked by ts_rank. Lexical,
// independent of the vector path.
func (r *ChunkRepo) SearchText(ctx context.Context, query string, limit int) ([]model.TextMatch, error) {
	const sqlStr = `
		SELECT section_id, paper_id, section_type, content,
		       byte_start, byte_end, token_start, token_end, tokens, ctime,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS rank
		FROM document_sections
		WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, sqlStr, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	matches := make([]model.TextMatch, 0)
	for rows.Next() {
		var chunk model.SectionChunk
		var tokens sql.NullString
		var rank float64
		if err := rows.Scan(
			&chunk.SectionID, &chunk.PaperID, &chunk.SectionType, &chunk.Content,
			&chunk.ByteStart, &chunk.ByteEnd, &chunk.TokenStart, &chunk.TokenEnd,
			&tokens, &chunk.Ctime, &rank,
		); err != nil {
			return nil, err
		}
		if err := decodeTokens(tokens, &chunk); err != nil {
			return nil, err
		}
		matches = append(matches, model.TextMatch{Chunk: chunk, Rank: rank})
	}
	return matches, rows.Err()
}

func (r *ChunkRepo) Structure(ctx context.Context, paperID string) (*model.PaperStructure, error) {
	const query = `
		SELECT section_type, COUNT(*) AS count,
		       MIN(ctime) AS first_created, MAX(ctime) AS last_created
		FROM document_sections
		WHERE paper_id = $1
		GROUP BY section_type
		ORDER BY section_type
	`
	rows, err := r.db.QueryContext(ctx, query, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	structure := &model.PaperStructure{
		PaperID:  paperID,
		Sections: make([]model.SectionTypeInfo, 0),
	}
	for rows.Next() {
		var info model.SectionTypeInfo
		if err := rows.Scan(&info.SectionType, &info.Count, &info.FirstCreated, &info.LastCreated); err != nil {
			return nil, err
		}
		structure.Sections = append(structure.Sections, info)
		structure.TotalSections += info.Count
	}
	return structure, rows.Err()
}

func (r *ChunkRepo) DeleteByPaper(ctx context.Context, paperID string) (int64, error) {
	where := map[string]interface{}{
		"paper_id": paperID,
	}
	sqlStr, args, err := builder.BuildDelete("document_sections", where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SectionIDsByPaper returns the ids of every section of a paper, used to
// tombstone their index entries on delete.
func (r *ChunkRepo) SectionIDsByPaper(ctx context.Context, paperID string) ([]int64, error) {
	where := map[string]interface{}{
		"paper_id": paperID,
	}
	sqlStr, args, err := builder.BuildSelect("document_sections", where, []string{"section_id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ChunkRepo) Stats(ctx context.Context) (*model.ChunkStats, error) {
	stats := &model.ChunkStats{ChunksByType: make(map[string]int64)}
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(LENGTH(content)), 0) FROM document_sections`)
	if err := row.Scan(&stats.TotalChunks, &stats.AvgContentLength); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT section_type, COUNT(*)
		FROM document_sections
		GROUP BY section_type
	`)
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
		stats.ChunksByType[sectionType] = count
	}
	return stats, rows.Err()
}

type chunkScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(rows chunkScanner) (*model.SectionChunk, error) {
	var chunk model.SectionChunk
	var tokens sql.NullString
	if err := rows.Scan(
		&chunk.SectionID, &chunk.PaperID, &chunk.SectionType, &chunk.Content,
		&chunk.ByteStart, &chunk.ByteEnd, &chunk.TokenStart, &chunk.TokenEnd,
		&tokens, &chunk.Ctime,
	); err != nil {
		return nil, err
	}
	if err := decodeTokens(tokens, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func decodeTokens(tokens sql.NullString, chunk *model.SectionChunk) error {
	if !tokens.Valid || tokens.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(tokens.String), &chunk.Tokens)
}
