package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/internal/service"
	appErrors "github.com/noah-isme/inscripciones-api/pkg/errors"
	"github.com/noah-isme/inscripciones-api/pkg/response"
)

// EnrollmentHandler exposes the record lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List returns filtered records with pagination.
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.RecordFilter
	filter.DNI = c.Query("dni")
	filter.Materia = c.Query("materia")
	filter.Profesor = c.Query("profesor")
	filter.Comision = c.Query("comision")
	filter.Anio = c.Query("anio")
	filter.Turno = c.Query("turno")
	filter.Waitlisted = c.Query("en_lista_espera")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	records, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get returns one record by ID.
func (h *EnrollmentHandler) Get(c *gin.Context) {
	rec, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// History returns every enrollment for a DNI, newest first.
func (h *EnrollmentHandler) History(c *gin.Context) {
	records, err := h.enrollments.History(c.Request.Context(), c.Param("dni"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Create saves a new record, applying the capacity policy.
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.SaveRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Record != nil {
		delete(req.Record, "id")
	}
	rec, err := h.enrollments.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// Update replaces an existing record by ID.
func (h *EnrollmentHandler) Update(c *gin.Context) {
	var req service.SaveRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Record == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "record payload required"))
		return
	}
	req.Record["id"] = c.Param("id")
	rec, err := h.enrollments.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Delete removes a record by ID.
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Capacity reports the seat situation for an offering triple.
func (h *EnrollmentHandler) Capacity(c *gin.Context) {
	info, err := h.enrollments.Capacity(c.Request.Context(),
		c.Query("materia"), c.Query("profesor"), c.Query("comision"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
