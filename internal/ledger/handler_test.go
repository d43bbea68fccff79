package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/ledger", h.MountRoutes)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.ActorHeader, "11")
	req.Header.Set("Accept-Language", "id-ID")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerEntryLifecycle(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/ledger/entries", `{
		"fiscal_year": 2025,
		"type": "CLOSING",
		"lines": [
			{"line_number": 1, "account_ref": "4000", "debit": "1200.50"},
			{"line_number": 2, "account_ref": "3100", "credit": "1200.50"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created entryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "DRAFT", created.Status)
	assert.Equal(t, "Draf", created.StatusLabel)
	assert.Equal(t, "1200.50", created.DebitTotal.String())

	rec = do(t, router, http.MethodPost, "/ledger/entries/"+created.ID+"/transitions", `{"action":"POST","expected_status":"DRAFT"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ILLEGAL_TRANSITION")

	rec = do(t, router, http.MethodPost, "/ledger/entries/"+created.ID+"/transitions", `{"action":"APPROVE","expected_status":"DRAFT"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/ledger/entries/"+created.ID+"/transitions", `{"action":"POST","expected_status":"DRAFT"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)

	rec = do(t, router, http.MethodGet, "/ledger/entries/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"APPROVED"`)
}

func TestHandlerRejectsMalformedAmounts(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/ledger/entries", `{
		"fiscal_year": 2025,
		"type": "OPENING",
		"lines": [
			{"line_number": 1, "account_ref": "1000", "debit": "12.345"},
			{"line_number": 2, "account_ref": "3000", "credit": "12.35"}
		]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerNotFoundAndBadID(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/ledger/entries/9b2e4c4e-3a43-4f57-9a2d-6a8b0ad0c001", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/ledger/entries/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
