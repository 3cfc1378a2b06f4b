package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperbrief/internal/pkg/response"
	"github.com/xxxsen/paperbrief/internal/service"
)

type AdminHandler struct {
	embSvc   *service.EmbeddingService
	syncer   *service.IndexSyncer
	snapshot *service.SnapshotService
	summary  *service.SummaryService

	backfillBatchSize int
}

func NewAdminHandler(embSvc *service.EmbeddingService, syncer *service.IndexSyncer, snapshot *service.SnapshotService, summary *service.SummaryService, backfillBatchSize int) *AdminHandler {
	return &AdminHandler{
		embSvc:            embSvc,
		syncer:            syncer,
		snapshot:          snapshot,
		summary:           summary,
		backfillBatchSize: backfillBatchSize,
	}
}

// Backfill embeds every pending section synchronously. The cron job does the
// same on a schedule; this endpoint exists for operators.
func (h *AdminHandler) Backfill(c *gin.Context) {
	processed, err := h.embSvc.Backfill(c.Request.Context(), h.backfillBatchSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"processed": processed})
}

func (h *AdminHandler) SyncIndex(c *gin.Context) {
	added, err := h.syncer.Sync(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"added": added})
}

func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	total, err := h.syncer.Rebuild(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"vectors": total})
}

func (h *AdminHandler) SaveIndex(c *gin.Context) {
	if h.snapshot != nil {
		if err := h.snapshot.Snapshot(c.Request.Context()); err != nil {
			handleError(c, err)
			return
		}
		response.Success(c, gin.H{"snapshot": true})
		return
	}
	if err := h.syncer.SaveIndex(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"snapshot": false})
}

func (h *AdminHandler) AuditReport(c *gin.Context) {
	path, err := h.summary.ExportAuditReport(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"session_id": h.summary.AuditSessionID(),
		"report":     path,
	})
}
