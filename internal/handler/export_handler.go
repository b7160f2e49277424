package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/internal/service"
	"github.com/noah-isme/inscripciones-api/pkg/response"
)

// ExportHandler serves generated listings and certificates.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Listing renders a filtered listing as csv or pdf and streams it back.
func (h *ExportHandler) Listing(c *gin.Context) {
	var filter models.RecordFilter
	filter.Materia = c.Query("materia")
	filter.Profesor = c.Query("profesor")
	filter.Comision = c.Query("comision")
	filter.Anio = c.Query("anio")
	filter.Turno = c.Query("turno")
	filter.Waitlisted = c.Query("en_lista_espera")

	result, err := h.exports.Listing(c.Request.Context(), filter, c.DefaultQuery("format", "pdf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(result.Path, result.Filename)
}

// Certificate renders the enrollment certificate for one record.
func (h *ExportHandler) Certificate(c *gin.Context) {
	result, err := h.exports.Certificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query("download") == "false" {
		response.JSON(c, http.StatusOK, result, nil)
		return
	}
	c.FileAttachment(result.Path, result.Filename)
}
