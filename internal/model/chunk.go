package model

// SectionChunk is one extracted, typed section of a paper. Rows are
// immutable after insert except for the later-attached tokens payload.
type SectionChunk struct {
	SectionID   int64    `json:"section_id"`
	PaperID     string   `json:"paper_id"`
	SectionType string   `json:"section_type"`
	Content     string   `json:"content"`
	ByteStart   int64    `json:"byte_start"`
	ByteEnd     int64    `json:"byte_end"`
	TokenStart  int64    `json:"token_start"`
	TokenEnd    int64    `json:"token_end"`
	Tokens      []string `json:"tokens,omitempty"`
	Ctime       int64    `json:"ctime"`
}

// SectionInput is the parser-facing shape accepted by the ingest path.
type SectionInput struct {
	SectionType string   `json:"section_type"`
	Content     string   `json:"content"`
	ByteStart   int64    `json:"byte_start"`
	ByteEnd     int64    `json:"byte_end"`
	TokenStart  int64    `json:"token_start"`
	TokenEnd    int64    `json:"token_end"`
	Tokens      []string `json:"tokens,omitempty"`
}

// TextMatch is a lexical full-text hit, ranked by ts_rank. Independent of
// the vector path; used as a fallback/complement.
type TextMatch struct {
	Chunk SectionChunk `json:"chunk"`
	Rank  float64      `json:"rank"`
}

type SectionTypeInfo struct {
	SectionType  string `json:"section_type"`
	Count        int    `json:"count"`
	FirstCreated int64  `json:"first_created"`
	LastCreated  int64  `json:"last_created"`
}

type PaperStructure struct {
	PaperID       string            `json:"paper_id"`
	Sections      []SectionTypeInfo `json:"sections"`
	TotalSections int               `json:"total_sections"`
}

type ChunkStats struct {
	TotalChunks      int64            `json:"total_chunks"`
	ChunksByType     map[string]int64 `json:"chunks_by_type"`
	AvgContentLength float64          `json:"avg_content_length"`
}
