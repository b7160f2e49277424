package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inscripciones-api/pkg/config"
	appErrors "github.com/noah-isme/inscripciones-api/pkg/errors"
	"github.com/noah-isme/inscripciones-api/pkg/response"
)

// Settings sections exposed over HTTP. smtp stays off the wire because it
// carries credentials.
var exposedSections = map[string]struct{}{
	"app":           {},
	"google_sheets": {},
	"pdf":           {},
	"ui":            {},
}

// SettingsHandler reads and updates the persisted settings document.
type SettingsHandler struct {
	settings *config.Settings
}

// NewSettingsHandler constructs SettingsHandler.
func NewSettingsHandler(settings *config.Settings) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSection returns one settings section.
func (h *SettingsHandler) GetSection(c *gin.Context) {
	name := c.Param("section")
	if _, ok := exposedSections[name]; !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown settings section"))
		return
	}
	response.JSON(c, http.StatusOK, h.settings.Section(name), nil)
}

// UpdateSection merges keys into one settings section and persists.
func (h *SettingsHandler) UpdateSection(c *gin.Context) {
	name := c.Param("section")
	if _, ok := exposedSections[name]; !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown settings section"))
		return
	}
	var values map[string]interface{}
	if err := c.ShouldBindJSON(&values); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.settings.SetSection(name, values); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist settings"))
		return
	}
	response.JSON(c, http.StatusOK, h.settings.Section(name), nil)
}
