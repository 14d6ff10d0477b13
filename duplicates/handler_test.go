package duplicates

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"braintacle/model"
	"braintacle/preferences"
	"braintacle/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountHandler(t *testing.T) {
	s, db := newService(t)
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	rec := httptest.NewRecorder()
	CountHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/duplicates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var counts map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 2, counts[model.CriterionName])

	rec = httptest.NewRecorder()
	CountHandler(s, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/duplicates", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShowHandlerInvalidCriterion(t *testing.T) {
	s, _ := newService(t)
	rec := httptest.NewRecorder()
	ShowHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/duplicates/show?criterion=Color", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMergeHandlerUsesPreferenceDefaults(t *testing.T) {
	s, db := newService(t)
	prefs := preferences.NewStore(db)
	require.NoError(t, prefs.Set("defaultMergeCustomFields", false))

	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})
	_, err := db.Exec(`INSERT INTO custom_fields (client_id, name, value) VALUES (?, 'TAG', 'old'), (?, 'TAG', 'new')`, old, newest)
	require.NoError(t, err)

	body := `{"clients": [` + itoa(old) + `, ` + itoa(newest) + `]}`
	rec := httptest.NewRecorder()
	MergeHandler(s, prefs, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/duplicates/merge", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, newest, result.Survivor)

	var tag string
	require.NoError(t, db.Get(&tag, `SELECT value FROM custom_fields WHERE client_id = ? AND name = 'TAG'`, newest))
	assert.Equal(t, "new", tag)
}

func TestMergeHandlerSingleClient(t *testing.T) {
	s, db := newService(t)
	id := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	rec := httptest.NewRecorder()
	body := `{"clients": [` + itoa(id) + `], "mergeCustomFields": true, "mergeConfig": true,
		"mergeGroups": true, "mergePackages": true, "mergeProductKey": true}`
	MergeHandler(s, preferences.NewStore(db), nil)(rec, httptest.NewRequest(http.MethodPost, "/api/duplicates/merge", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "At least 2 different clients")
}

func TestAllowHandler(t *testing.T) {
	s, _ := newService(t)

	rec := httptest.NewRecorder()
	AllowHandler(s, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/duplicates/allow",
		strings.NewReader(`{"criterion": "AssetTag", "value": "N/A"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	AllowHandler(s, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/duplicates/allow?criterion=AssetTag", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var values []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &values))
	assert.Equal(t, []string{"N/A"}, values)

	rec = httptest.NewRecorder()
	AllowHandler(s, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/duplicates/allow",
		strings.NewReader(`{"criterion": "Name", "value": "pc"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
