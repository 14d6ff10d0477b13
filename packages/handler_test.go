package packages

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"braintacle/model"
	"braintacle/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, fields map[string]string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		fw, err := mw.CreateFormFile("file", "setup.exe")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/packages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPackagesHandlerBuild(t *testing.T) {
	s, _, _ := newService(t)

	rec := httptest.NewRecorder()
	PackagesHandler(s, nil)(rec, uploadRequest(t, map[string]string{"package": `{"name": "tool", "actionParam": "setup.exe"}`}, []byte("abc")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p model.Package
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "windows", p.Platform)
	assert.Equal(t, "launch", p.Action)
	assert.Equal(t, 5, p.Priority)

	rec = httptest.NewRecorder()
	PackagesHandler(s, nil)(rec, uploadRequest(t, map[string]string{"package": `{"name": "tool"}`}, []byte("abc")))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	PackagesHandler(s, nil)(rec, uploadRequest(t, map[string]string{"package": `{"name": "nofile"}`}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	PackageHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/packages/tool", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAssignHandler(t *testing.T) {
	s, db, _ := newService(t)
	client := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})
	require.NoError(t, s.Build(newPackage(t, s, "tool"), []byte("abc")))

	body := `{"package": "tool", "clients": [` + strconv.FormatInt(client, 10) + `]}`
	rec := httptest.NewRecorder()
	AssignHandler(s, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/packages/assign", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assignments, err := s.Assignments("tool")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)

	rec = httptest.NewRecorder()
	AssignHandler(s, nil)(rec, httptest.NewRequest(http.MethodDelete, "/api/packages/assign", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assignments, err = s.Assignments("tool")
	require.NoError(t, err)
	assert.Empty(t, assignments)
}
