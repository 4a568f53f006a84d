package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sheetcrm/adapters/excel"
	"sheetcrm/adapters/normalize"
	"sheetcrm/app"
	"sheetcrm/domain/table"
	"sheetcrm/ports"
)

// offlineProvider is a remote provider that is never configured.
type offlineProvider struct{}

func (offlineProvider) Available() bool { return false }
func (offlineProvider) GetMetadata(context.Context, string) (*ports.RemoteMetadata, error) {
	return nil, http.ErrServerClosed
}
func (offlineProvider) Download(context.Context, string, string) error { return http.ErrServerClosed }
func (offlineProvider) Upload(context.Context, string, string, string) error {
	return http.ErrServerClosed
}

func newTestRouter(t *testing.T) (*gin.Engine, *excel.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := excel.NewStore(filepath.Join(t.TempDir(), "crm.xlsx"))
	syncService := app.NewSyncService(store, offlineProvider{}, "")
	importer := app.NewImportService(store, normalize.NewNormalizer(normalize.PolicyTRComma))
	return NewServer(store, syncService, importer).Router(), store
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListTables(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, httptest.NewRequest("GET", "/api/tables", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Tables, 11)
	assert.Contains(t, body.Tables, "customers")
}

func TestGetTable_Unknown(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, httptest.NewRequest("GET", "/api/tables/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutThenGetTable(t *testing.T) {
	router, _ := newTestRouter(t)

	rows := `[{"id": "c1", "Müşteri Adı": "Acme"}]`
	req := httptest.NewRequest("PUT", "/api/tables/customers", bytes.NewBufferString(rows))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, doRequest(router, req).Code)

	w := doRequest(router, httptest.NewRequest("GET", "/api/tables/customers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rows []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	// The lowercase identifier is folded into the canonical field.
	assert.Equal(t, "c1", body.Rows[0]["ID"])
	assert.Equal(t, "Acme", body.Rows[0]["Müşteri Adı"])
}

func TestPutTable_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("PUT", "/api/tables/customers", bytes.NewBufferString(`{"not":"an array"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, doRequest(router, req).Code)
}

func TestManualSync_NoRemote(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, httptest.NewRequest("POST", "/api/sync", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var result app.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, app.ActionNone, result.Action)
}

func TestSyncStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, httptest.NewRequest("GET", "/api/sync/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status app.SyncStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.State)
	assert.False(t, status.ProviderAvailable)
}

func TestImportEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "Müşteriler")
	header := []interface{}{"ID", "Müşteri Adı"}
	row := []interface{}{"c1", "Acme"}
	require.NoError(t, f.SetSheetRow("Müşteriler", "A1", &header))
	require.NoError(t, f.SetSheetRow("Müşteriler", "A2", &row))
	workbook, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "import.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("mode", "replace"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := doRequest(router, req)
	require.Equal(t, http.StatusOK, w.Code)

	var outcome app.ImportOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	assert.True(t, outcome.Sheets["Müşteriler"].Success)
	assert.Equal(t, 1, outcome.Sheets["Müşteriler"].RowsImported)

	c, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, c[table.Customers], 1)
}

func TestImportEndpoint_BadMode(t *testing.T) {
	router, _ := newTestRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("mode", "merge"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, doRequest(router, req).Code)
}
