package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperbrief/internal/model"
	"github.com/xxxsen/paperbrief/internal/pkg/errcode"
	"github.com/xxxsen/paperbrief/internal/pkg/response"
	"github.com/xxxsen/paperbrief/internal/service"
)

type QueryHandler struct {
	summary   *service.SummaryService
	retriever *service.Retriever
	ingest    *service.IngestService
	embSvc    *service.EmbeddingService
}

func NewQueryHandler(summary *service.SummaryService, retriever *service.Retriever, ingest *service.IngestService, embSvc *service.EmbeddingService) *QueryHandler {
	return &QueryHandler{
		summary:   summary,
		retriever: retriever,
		ingest:    ingest,
		embSvc:    embSvc,
	}
}

type queryRequest struct {
	Query string `json:"query"`
	// Optional: restrict retrieval to one paper (exact scan).
	PaperID     string `json:"paper_id"`
	TopK        int    `json:"top_k"`
	MaxEvidence int    `json:"max_evidence"`
}

func (h *QueryHandler) summarize(c *gin.Context, req queryRequest) (*model.SummaryOutput, error) {
	ctx := c.Request.Context()
	if req.PaperID != "" {
		return h.summary.SummarizePaper(ctx, req.Query, req.PaperID, req.TopK, req.MaxEvidence)
	}
	return h.summary.Summarize(ctx, req.Query, req.TopK, req.MaxEvidence)
}

func (h *QueryHandler) Summarize(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	summary, err := h.summarize(c, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, summary)
}

// Brief renders the summary as an evidence brief, markdown plus HTML.
func (h *QueryHandler) Brief(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	summary, err := h.summarize(c, req)
	if err != nil {
		handleError(c, err)
		return
	}
	markdown := h.summary.RenderMarkdown(summary)
	html, err := h.summary.RenderHTML(summary)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"summary":  summary,
		"markdown": markdown,
		"html":     html,
	})
}

func (h *QueryHandler) SearchText(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			response.Error(c, errcode.ErrInvalid, "invalid limit")
			return
		}
		limit = parsed
	}
	matches, err := h.retriever.SearchText(c.Request.Context(), query, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"query": query, "matches": matches})
}

func (h *QueryHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	chunkStats, err := h.ingest.ChunkStats(ctx)
	if err != nil {
		handleError(c, err)
		return
	}
	embStats, err := h.embSvc.Stats(ctx)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"chunks":     chunkStats,
		"embeddings": embStats,
		"index":      h.retriever.IndexStats(),
	})
}
