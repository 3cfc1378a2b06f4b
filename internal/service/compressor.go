package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/ai"
	"github.com/xxxsen/paperbrief/internal/entity"
	"github.com/xxxsen/paperbrief/internal/model"
	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
)

// Compressor turns ranked evidence into a SummaryOutput. Implementations
// never fail the query: any internal error degrades to a fallback summary
// with empty evidence snippets.
type Compressor interface {
	Compress(ctx context.Context, query string, ranked []model.RankedChunk, maxEvidence int) *model.SummaryOutput
	Mode() string
}

func buildEvidenceSnippets(ranked []model.RankedChunk, maxEvidence int) []model.EvidenceSnippet {
	if maxEvidence <= 0 {
		maxEvidence = 5
	}
	top := ranked
	if len(top) > maxEvidence {
		top = top[:maxEvidence]
	}
	snippets := make([]model.EvidenceSnippet, 0, len(top))
	for i, rc := range top {
		snippets = append(snippets, model.EvidenceSnippet{
			PaperID:        rc.Chunk.PaperID,
			SectionType:    rc.Chunk.SectionType,
			ContentPreview: Preview(rc.Chunk.Content, 300),
			Score:          rc.WeightedScore,
			ChunkID:        rc.Chunk.SectionID,
			RankPosition:   i + 1,
		})
	}
	return snippets
}

func modelFingerprint(embeddingModel, mode string) string {
	blob, _ := json.Marshal(map[string]string{
		"embedding_model":        embeddingModel,
		"summarization_approach": mode,
		"version":                "1.0",
		"timestamp":              timeutil.NowISO(),
	})
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

func fallbackSummary(query, embeddingModel, mode string) *model.SummaryOutput {
	return &model.SummaryOutput{
		Insight:          fmt.Sprintf("Findings related to: %s", query),
		EvidenceBullets:  []string{fmt.Sprintf("Relevant research on %q was identified in the literature.", query)},
		ResearchGaps:     []string{"Further investigation is needed to understand the full scope of this topic."},
		EvidenceSnippets: []model.EvidenceSnippet{},
		Query:            query,
		Timestamp:        timeutil.NowISO(),
		ModelFingerprint: modelFingerprint(embeddingModel, mode),
	}
}

// TemplateCompressor is the deterministic compressor: insight from entities
// found in the top evidence, numbered source-attributed bullets, heuristic
// research gaps. Works with no model dependency beyond the fingerprint.
type TemplateCompressor struct {
	extractor      *entity.Extractor
	embeddingModel string
}

func NewTemplateCompressor(embeddingModel string) *TemplateCompressor {
	return &TemplateCompressor{
		extractor:      entity.NewExtractor(),
		embeddingModel: embeddingModel,
	}
}

func (c *TemplateCompressor) Mode() string {
	return "template"
}

func (c *TemplateCompressor) Compress(ctx context.Context, query string, ranked []model.RankedChunk, maxEvidence int) *model.SummaryOutput {
	if len(ranked) == 0 {
		return fallbackSummary(query, c.embeddingModel, c.Mode())
	}
	snippets := buildEvidenceSnippets(ranked, maxEvidence)
	return &model.SummaryOutput{
		Insight:          c.generateInsight(query, ranked),
		EvidenceBullets:  c.generateBullets(ranked, maxEvidence),
		ResearchGaps:     c.generateGaps(query),
		EvidenceSnippets: snippets,
		Query:            query,
		Timestamp:        timeutil.NowISO(),
		ModelFingerprint: modelFingerprint(c.embeddingModel, c.Mode()),
	}
}

func (c *TemplateCompressor) generateInsight(query string, ranked []model.RankedChunk) string {
	top := ranked
	if len(top) > 3 {
		top = top[:3]
	}
	var sb strings.Builder
	for _, rc := range top {
		sb.WriteString(rc.Chunk.Content)
		sb.WriteByte(' ')
	}
	entities := c.extractor.Extract(sb.String())
	if len(entities) == 0 {
		return fmt.Sprintf("Research on %q reveals important findings in space biology.", query)
	}
	names := entity.Names(entities, 2)
	return fmt.Sprintf("Research on %q indicates connections between %s.", query, strings.Join(names, ", "))
}

func (c *TemplateCompressor) generateBullets(ranked []model.RankedChunk, maxEvidence int) []string {
	if maxEvidence <= 0 || maxEvidence > 5 {
		maxEvidence = 5
	}
	top := ranked
	if len(top) > maxEvidence {
		top = top[:maxEvidence]
	}
	bullets := make([]string, 0, len(top))
	for i, rc := range top {
		bullets = append(bullets, fmt.Sprintf("[%d] %s (Source: %s, Section: %s)",
			i+1, Preview(rc.Chunk.Content, 100), rc.Chunk.PaperID, rc.Chunk.SectionType))
	}
	if len(bullets) == 0 {
		return []string{"Evidence from multiple studies supports these findings."}
	}
	return bullets
}

func (c *TemplateCompressor) generateGaps(query string) []string {
	return []string{
		fmt.Sprintf("Further research is needed on the long-term effects of %q.", query),
		"The mechanisms underlying these observations require deeper investigation.",
		"Controlled experiments are needed to validate these preliminary findings.",
	}
}

// LLMCompressor asks a generation model for the insight/bullets/gaps triple
// as JSON, then fills in the deterministic parts. Any model or parse failure
// falls back to the template compressor, so the query path stays total.
type LLMCompressor struct {
	gen      ai.IGenerator
	fallback *TemplateCompressor

	embeddingModel string
}

func NewLLMCompressor(gen ai.IGenerator, embeddingModel string) *LLMCompressor {
	return &LLMCompressor{
		gen:            gen,
		fallback:       NewTemplateCompressor(embeddingModel),
		embeddingModel: embeddingModel,
	}
}

func (c *LLMCompressor) Mode() string {
	return "llm"
}

type llmSummaryPayload struct {
	Insight         string   `json:"insight"`
	EvidenceBullets []string `json:"evidence_bullets"`
	ResearchGaps    []string `json:"research_gaps"`
}

func (c *LLMCompressor) Compress(ctx context.Context, query string, ranked []model.RankedChunk, maxEvidence int) *model.SummaryOutput {
	if len(ranked) == 0 {
		return fallbackSummary(query, c.embeddingModel, c.Mode())
	}
	payload, err := c.generate(ctx, query, ranked, maxEvidence)
	if err != nil {
		logutil.GetLogger(ctx).Warn("llm compression failed, using template", zap.Error(err))
		return c.fallback.Compress(ctx, query, ranked, maxEvidence)
	}
	return &model.SummaryOutput{
		Insight:          payload.Insight,
		EvidenceBullets:  payload.EvidenceBullets,
		ResearchGaps:     payload.ResearchGaps,
		EvidenceSnippets: buildEvidenceSnippets(ranked, maxEvidence),
		Query:            query,
		Timestamp:        timeutil.NowISO(),
		ModelFingerprint: modelFingerprint(c.embeddingModel, c.Mode()),
	}
}

func (c *LLMCompressor) generate(ctx context.Context, query string, ranked []model.RankedChunk, maxEvidence int) (*llmSummaryPayload, error) {
	if maxEvidence <= 0 {
		maxEvidence = 5
	}
	top := ranked
	if len(top) > maxEvidence {
		top = top[:maxEvidence]
	}
	var sb strings.Builder
	sb.WriteString("You summarize scientific evidence. Given a query and numbered evidence excerpts, ")
	sb.WriteString("respond with a single JSON object with keys \"insight\" (one sentence), ")
	sb.WriteString("\"evidence_bullets\" (array of strings, each citing its excerpt number and paper id) ")
	sb.WriteString("and \"research_gaps\" (array of strings). Respond with JSON only.\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nEvidence:\n", query)
	for i, rc := range top {
		fmt.Fprintf(&sb, "[%d] (paper %s, %s) %s\n", i+1, rc.Chunk.PaperID, rc.Chunk.SectionType, Preview(rc.Chunk.Content, 500))
	}
	raw, err := c.gen.Generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	raw = stripCodeFence(raw)
	var payload llmSummaryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode llm summary: %w", err)
	}
	if payload.Insight == "" || len(payload.EvidenceBullets) == 0 {
		return nil, fmt.Errorf("llm summary missing required fields")
	}
	if payload.ResearchGaps == nil {
		payload.ResearchGaps = []string{}
	}
	return &payload, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
