package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperbrief/internal/audit"
	"github.com/xxxsen/paperbrief/internal/model"
)

func newTestSummaryService(t *testing.T) *SummaryService {
	t.Helper()
	logger, err := audit.NewLogger(t.TempDir())
	require.NoError(t, err)
	return NewSummaryService(NewRetriever(nil, nil, nil, 0), NewTemplateCompressor("test-embed"), logger)
}

func TestSummarizeRejectsEmptyQuery(t *testing.T) {
	s := newTestSummaryService(t)
	_, err := s.Summarize(context.Background(), "   ", 10, 5)
	require.Error(t, err)
}

func TestRenderMarkdownAndHTML(t *testing.T) {
	s := newTestSummaryService(t)
	summary := &model.SummaryOutput{
		Insight:         "Microgravity slows root growth.",
		EvidenceBullets: []string{"[1] roots grew slower (Source: p1, Section: results)"},
		ResearchGaps:    []string{"longer missions"},
		Query:           "root growth",
		Timestamp:       "2026-01-01T00:00:00Z",
		ModelFingerprint: "abc123",
	}
	md := s.RenderMarkdown(summary)
	require.Contains(t, md, "# Evidence Brief")
	require.Contains(t, md, "**Query:** root growth")
	require.Contains(t, md, "- [1] roots grew slower")
	require.Contains(t, md, "abc123")

	html, err := s.RenderHTML(summary)
	require.NoError(t, err)
	require.Contains(t, html, "<h1")
	require.Contains(t, html, "Microgravity slows root growth.")
	require.Contains(t, html, "<li>")
}
