package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inscripciones-api/internal/service"
	"github.com/noah-isme/inscripciones-api/pkg/response"
)

// SyncHandler exposes the remote sync protocols.
type SyncHandler struct {
	sync *service.SyncService
}

// NewSyncHandler constructs SyncHandler.
func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Status reports sync configuration and guard state.
func (h *SyncHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.sync.Status(c.Request.Context()), nil)
}

// Push runs a push sync now. ?full=true forces a full rewrite instead of
// the configured mode.
func (h *SyncHandler) Push(c *gin.Context) {
	full := c.Query("full") == "true"
	if err := h.sync.Push(c.Request.Context(), full); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "pushed"}, nil)
}

// Mirror replaces the local store from the remote sheet. ?force=true
// bypasses the sync guard.
func (h *SyncHandler) Mirror(c *gin.Context) {
	force := c.Query("force") == "true"
	stats, err := h.sync.Mirror(c.Request.Context(), force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// RestoreBackup loads the last remote snapshot into the primary store.
func (h *SyncHandler) RestoreBackup(c *gin.Context) {
	count, stamp, err := h.sync.RestoreBackup(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"restored": count, "snapshot_at": stamp}, nil)
}
