package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/internal/service"
	"github.com/noah-isme/inscripciones-api/internal/store"
	"github.com/noah-isme/inscripciones-api/pkg/config"
)

type storeMock struct {
	records []models.Record
}

func (m *storeMock) LoadAll() ([]models.Record, error) { return m.records, nil }

func (m *storeMock) Upsert(rec models.Record) (models.Record, error) {
	rec = rec.Clone()
	if rec.Get("id") == "" {
		rec["id"] = fmt.Sprintf("GEN%d_20250310_120000", len(m.records)+1)
	}
	for i, existing := range m.records {
		if existing.ID() == rec.ID() {
			m.records[i] = rec
			return rec, nil
		}
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *storeMock) Delete(id string) error {
	for i, rec := range m.records {
		if rec.ID() == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *storeMock) ByID(id string) (models.Record, error) {
	for _, rec := range m.records {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *storeMock) ByDNI(dni string) (models.Record, error) {
	for _, rec := range m.records {
		if rec.Get("dni") == dni {
			return rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *storeMock) History(dni string) ([]models.Record, error) { return nil, nil }

func (m *storeMock) CountEnrollments(materia, profesor, comision string) (int, error) {
	count := 0
	for _, rec := range m.records {
		if rec.Get("materia") == materia && rec.Get("profesor") == profesor &&
			rec.Get("comision") == comision && !rec.Waitlisted() {
			count++
		}
	}
	return count, nil
}

type catalogMock struct{}

func (catalogMock) Offering(materia, profesor, comision string) *models.Offering { return nil }

func newEnrollmentHandler(t *testing.T, st *storeMock) *EnrollmentHandler {
	t.Helper()
	settings, err := config.NewSettings(filepath.Join(t.TempDir(), "config.yaml"), zap.NewNop())
	require.NoError(t, err)
	svc := service.NewEnrollmentService(st, catalogMock{}, settings, nil, nil, zap.NewNop())
	return NewEnrollmentHandler(svc)
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &storeMock{}
	handler := newEnrollmentHandler(t, st)

	payload, _ := json.Marshal(map[string]interface{}{
		"record": map[string]string{
			"id":       "client-sent-id",
			"nombre":   "Ana",
			"apellido": "García",
			"dni":      "40111222",
			"materia":  "Piano",
		},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data models.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEqual(t, "client-sent-id", body.Data.ID(), "client supplied id ignored")
	assert.NotEmpty(t, body.Data.ID())
	assert.Equal(t, models.WaitlistNo, body.Data.Get("en_lista_espera"))
}

func TestEnrollmentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newEnrollmentHandler(t, &storeMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(`{"record":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newEnrollmentHandler(t, &storeMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/records/nope", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestEnrollmentHandlerUpdateSetsPathID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	existing := models.Record{
		"id": "A_20250301_100000", "nombre": "Ana", "apellido": "García",
		"dni": "40111222", "materia": "Piano",
	}
	st := &storeMock{records: []models.Record{existing}}
	handler := newEnrollmentHandler(t, st)

	payload, _ := json.Marshal(map[string]interface{}{
		"record": map[string]string{
			"nombre": "Ana", "apellido": "García", "dni": "40111222",
			"materia": "Piano", "telefono": "387-5551234",
		},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/records/A_20250301_100000", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "A_20250301_100000"}}

	handler.Update(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data models.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "A_20250301_100000", body.Data.ID())
	assert.Equal(t, "387-5551234", body.Data.Get("telefono"))
}

func TestEnrollmentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &storeMock{records: []models.Record{{"id": "A_20250301_100000"}}}
	handler := newEnrollmentHandler(t, st)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/records/A_20250301_100000", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "A_20250301_100000"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, st.records)
}
