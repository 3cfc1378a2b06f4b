package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/audit"
	"github.com/xxxsen/paperbrief/internal/model"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
)

const (
	DefaultTopK        = 20
	DefaultMaxEvidence = 5
)

// SummaryService runs the retrieve-rank-compress pipeline and writes the
// audit trail around it. Every query leaves prompt, evidence, and summary
// entries in the session log, including degraded answers.
type SummaryService struct {
	retriever  *Retriever
	compressor Compressor
	auditLog   *audit.Logger
	md         goldmark.Markdown
}

func NewSummaryService(retriever *Retriever, compressor Compressor, auditLog *audit.Logger) *SummaryService {
	return &SummaryService{
		retriever:  retriever,
		compressor: compressor,
		auditLog:   auditLog,
		md:         goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (s *SummaryService) Summarize(ctx context.Context, query string, topK, maxEvidence int) (*model.SummaryOutput, error) {
	return s.summarize(ctx, query, "", topK, maxEvidence)
}

// SummarizePaper restricts retrieval to one paper via an exact scan of its
// stored embeddings.
func (s *SummaryService) SummarizePaper(ctx context.Context, query string, paperID string, topK, maxEvidence int) (*model.SummaryOutput, error) {
	if strings.TrimSpace(paperID) == "" {
		return nil, fmt.Errorf("%w: empty paper_id", appErr.ErrInvalid)
	}
	return s.summarize(ctx, query, paperID, topK, maxEvidence)
}

func (s *SummaryService) summarize(ctx context.Context, query string, paperID string, topK, maxEvidence int) (*model.SummaryOutput, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", appErr.ErrInvalid)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxEvidence <= 0 {
		maxEvidence = DefaultMaxEvidence
	}
	promptMeta := map[string]interface{}{
		"top_k":        topK,
		"max_evidence": maxEvidence,
	}
	if paperID != "" {
		promptMeta["paper_id"] = paperID
	}
	s.auditLog.LogPrompt(ctx, query, "summarization_pipeline", promptMeta)

	var chunks []model.RankedChunk
	var err error
	if paperID != "" {
		chunks, err = s.retriever.RetrieveWithinPaper(ctx, query, paperID, topK)
	} else {
		chunks, err = s.retriever.Retrieve(ctx, query, topK)
	}
	if err != nil {
		return nil, err
	}
	ranked := s.retriever.Rank(chunks)

	evidence := make([]model.EvidenceSnippet, 0, maxEvidence)
	for i, rc := range ranked {
		if i >= maxEvidence {
			break
		}
		evidence = append(evidence, model.EvidenceSnippet{
			PaperID:        rc.Chunk.PaperID,
			SectionType:    rc.Chunk.SectionType,
			ContentPreview: Preview(rc.Chunk.Content, 100),
			Score:          rc.WeightedScore,
			ChunkID:        rc.Chunk.SectionID,
			RankPosition:   i + 1,
		})
	}
	s.auditLog.LogEvidence(ctx, query, evidence, map[string]interface{}{
		"total_retrieved": len(chunks),
		"total_ranked":    len(ranked),
	})

	summary := s.compressor.Compress(ctx, query, ranked, maxEvidence)
	s.auditLog.LogSummary(ctx, summary, map[string]interface{}{
		"component": "factual_compression",
		"mode":      s.compressor.Mode(),
		"fallback":  len(ranked) > 0 && len(summary.EvidenceSnippets) == 0,
	})
	logutil.GetLogger(ctx).Info("summary generated",
		zap.Int("evidence", len(summary.EvidenceSnippets)),
		zap.String("mode", s.compressor.Mode()),
	)
	return summary, nil
}

// RenderMarkdown lays the summary out as an evidence brief.
func (s *SummaryService) RenderMarkdown(summary *model.SummaryOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Evidence Brief\n\n")
	fmt.Fprintf(&sb, "**Query:** %s\n\n", summary.Query)
	fmt.Fprintf(&sb, "**Insight:** %s\n\n", summary.Insight)
	sb.WriteString("## Evidence\n\n")
	for _, bullet := range summary.EvidenceBullets {
		fmt.Fprintf(&sb, "- %s\n", bullet)
	}
	sb.WriteString("\n## Research Gaps\n\n")
	for _, gap := range summary.ResearchGaps {
		fmt.Fprintf(&sb, "- %s\n", gap)
	}
	fmt.Fprintf(&sb, "\n---\n\nGenerated at %s, fingerprint `%s`\n", summary.Timestamp, summary.ModelFingerprint)
	return sb.String()
}

// RenderHTML converts the markdown brief to HTML.
func (s *SummaryService) RenderHTML(summary *model.SummaryOutput) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(s.RenderMarkdown(summary)), &buf); err != nil {
		return "", fmt.Errorf("render brief: %w", err)
	}
	return buf.String(), nil
}

// ExportAuditReport flushes the grouped session report to disk.
func (s *SummaryService) ExportAuditReport(ctx context.Context) (string, error) {
	return s.auditLog.ExportReport(ctx)
}

func (s *SummaryService) AuditSessionID() string {
	return s.auditLog.SessionID()
}
