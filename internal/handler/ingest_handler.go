package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperbrief/internal/model"
	"github.com/xxxsen/paperbrief/internal/pkg/errcode"
	"github.com/xxxsen/paperbrief/internal/pkg/response"
	"github.com/xxxsen/paperbrief/internal/service"
)

type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type storeSectionsRequest struct {
	Sections []model.SectionInput `json:"sections"`
	// Embed inline instead of waiting for the backfill job.
	Embed bool `json:"embed"`
}

func (h *IngestHandler) StoreSections(c *gin.Context) {
	var req storeSectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	paperID := c.Param("id")
	result, err := h.ingest.Store(c.Request.Context(), paperID, req.Sections)
	if err != nil {
		handleError(c, err)
		return
	}
	embedded := 0
	if req.Embed && len(result.SectionIDs) > 0 {
		embedded, err = h.ingest.EmbedPaper(c.Request.Context(), paperID)
		if err != nil {
			handleError(c, err)
			return
		}
	}
	response.Success(c, gin.H{
		"paper_id":    result.PaperID,
		"section_ids": result.SectionIDs,
		"failed":      result.Failed,
		"embedded":    embedded,
	})
}

type bulkIngestRequest struct {
	Papers []service.PaperInput `json:"papers"`
}

func (h *IngestHandler) StoreBulk(c *gin.Context) {
	var req bulkIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Papers) == 0 {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	results, err := h.ingest.StoreBulk(c.Request.Context(), req.Papers)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"results": results})
}

func (h *IngestHandler) ListSections(c *gin.Context) {
	paperID := c.Param("id")
	sectionType := c.Query("section_type")
	var (
		chunks []model.SectionChunk
		err    error
	)
	if sectionType != "" {
		chunks, err = h.ingest.ListByType(c.Request.Context(), paperID, sectionType)
	} else {
		chunks, err = h.ingest.ListByPaper(c.Request.Context(), paperID)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"paper_id": paperID, "sections": chunks})
}

func (h *IngestHandler) GetSection(c *gin.Context) {
	sectionID, err := strconv.ParseInt(c.Param("section_id"), 10, 64)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid section id")
		return
	}
	chunk, err := h.ingest.GetChunk(c.Request.Context(), sectionID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chunk)
}

type attachTokensRequest struct {
	Tokens []string `json:"tokens"`
}

func (h *IngestHandler) AttachTokens(c *gin.Context) {
	sectionID, err := strconv.ParseInt(c.Param("section_id"), 10, 64)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid section id")
		return
	}
	var req attachTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.ingest.AttachTokens(c.Request.Context(), sectionID, req.Tokens); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"section_id": sectionID})
}

func (h *IngestHandler) Structure(c *gin.Context) {
	structure, err := h.ingest.Structure(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, structure)
}

func (h *IngestHandler) DeletePaper(c *gin.Context) {
	deleted, err := h.ingest.DeletePaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"paper_id": c.Param("id"), "deleted_sections": deleted})
}
