package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inscripciones-api/internal/catalog"
	appErrors "github.com/noah-isme/inscripciones-api/pkg/errors"
	"github.com/noah-isme/inscripciones-api/pkg/response"
)

// CatalogHandler answers the cascading catalog queries behind the
// enrollment form.
type CatalogHandler struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(cat *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: cat}
}

// Subjects lists subjects, optionally narrowed to a year.
func (h *CatalogHandler) Subjects(c *gin.Context) {
	if raw := c.Query("anio"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "anio must be an integer"))
			return
		}
		response.JSON(c, http.StatusOK, h.catalog.SubjectsByYear(year), nil)
		return
	}
	response.JSON(c, http.StatusOK, h.catalog.Subjects(), nil)
}

// Professors lists professors for a subject.
func (h *CatalogHandler) Professors(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.catalog.Professors(c.Query("materia")), nil)
}

// Commissions lists commissions for a subject and professor.
func (h *CatalogHandler) Commissions(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.catalog.Commissions(c.Query("materia"), c.Query("profesor")), nil)
}

// Shifts lists every shift in the catalog.
func (h *CatalogHandler) Shifts(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.catalog.Shifts(), nil)
}

// Schedule returns the printable schedule for an offering triple.
func (h *CatalogHandler) Schedule(c *gin.Context) {
	horario := h.catalog.Schedule(c.Query("materia"), c.Query("profesor"), c.Query("comision"))
	response.JSON(c, http.StatusOK, gin.H{"horario": horario}, nil)
}

// Offering returns the full offering for a triple, 404 when unknown.
func (h *CatalogHandler) Offering(c *gin.Context) {
	off := h.catalog.Offering(c.Query("materia"), c.Query("profesor"), c.Query("comision"))
	if off == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "offering not found"))
		return
	}
	response.JSON(c, http.StatusOK, off, nil)
}
