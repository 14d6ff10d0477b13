package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"braintacle/database"
	"braintacle/model"
	"braintacle/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowHandler(t *testing.T) {
	s, db := newService(t)
	id := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	rec := httptest.NewRecorder()
	ShowHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/clients/"+strconv.FormatInt(id, 10), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail model.ClientDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "pc", detail.Name)

	rec = httptest.NewRecorder()
	ShowHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/clients/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	ShowHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/clients/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteHandler(t *testing.T) {
	s, db := newService(t)
	id := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	body := `{"id": ` + strconv.FormatInt(id, 10) + `}`
	rec := httptest.NewRecorder()
	DeleteHandler(s, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/clients/delete", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, err := database.GetClient(db, id)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestConfigHandlerRejectsUnknownOption(t *testing.T) {
	s, db := newService(t)
	id := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	body := `{"id": ` + strconv.FormatInt(id, 10) + `, "option": "colour", "value": 1}`
	rec := httptest.NewRecorder()
	ConfigHandler(s, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/clients/config", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandler(t *testing.T) {
	s, db := newService(t)
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	rec := httptest.NewRecorder()
	ExportHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/clients/export?encoding=utf-8", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 2)

	rec = httptest.NewRecorder()
	ExportHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/clients/export?encoding=klingon", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
