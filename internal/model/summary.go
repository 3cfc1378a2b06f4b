package model

// EvidenceSnippet is a ranked, truncated excerpt backing a summary. Derived
// per query, never persisted outside the audit trail.
type EvidenceSnippet struct {
	PaperID        string  `json:"paper_id"`
	SectionType    string  `json:"section_type"`
	ContentPreview string  `json:"content_preview"`
	Score          float64 `json:"score"`
	ChunkID        int64   `json:"chunk_id"`
	RankPosition   int     `json:"rank_position"`
}

// SummaryOutput is the externally visible answer. An empty EvidenceSnippets
// slice marks a degraded/fallback answer.
type SummaryOutput struct {
	Insight          string            `json:"insight"`
	EvidenceBullets  []string          `json:"evidence_bullets"`
	ResearchGaps     []string          `json:"research_gaps"`
	EvidenceSnippets []EvidenceSnippet `json:"evidence_snippets"`
	Query            string            `json:"query"`
	Timestamp        string            `json:"timestamp"`
	ModelFingerprint string            `json:"model_fingerprint"`
}

// RankedChunk is a retrieved chunk with its raw and section-weighted scores.
type RankedChunk struct {
	Chunk         SectionChunk `json:"chunk"`
	Score         float64      `json:"score"`
	WeightedScore float64      `json:"weighted_score"`
}
