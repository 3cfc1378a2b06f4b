package model

// SectionEmbedding is one vector row, exactly one per section per model
// generation. Rows are never updated; re-embedding under a new model wipes
// the table and rebuilds the index.
type SectionEmbedding struct {
	EmbeddingID int64     `json:"embedding_id"`
	SectionID   int64     `json:"section_id"`
	ModelName   string    `json:"model_name"`
	Vector      []float32 `json:"vector"`
	Ctime       int64     `json:"ctime"`
}

// EmbeddedChunk joins an embedding with the section it belongs to; the shape
// the index syncer and the brute-force fallback consume.
type EmbeddedChunk struct {
	EmbeddingID int64     `json:"embedding_id"`
	SectionID   int64     `json:"section_id"`
	PaperID     string    `json:"paper_id"`
	SectionType string    `json:"section_type"`
	Content     string    `json:"content"`
	Vector      []float32 `json:"vector"`
}

type EmbeddingStats struct {
	TotalEmbeddings int64            `json:"total_embeddings"`
	ByType          map[string]int64 `json:"embeddings_by_type"`
	Pending         int64            `json:"pending"`
}
