package payroll

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
	svc, _, _ := newTestService(t, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/payroll", h.MountRoutes)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.ActorHeader, "4")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const generateBody = `{
	"month": 3,
	"year": 2025,
	"employees": [
		{"employee_ref": "E-1", "basic_salary": "6000000.00",
		 "allowances": [{"code": "MEAL", "amount": "500000.00"}],
		 "deductions": [{"code": "TAX", "amount": "250000.00"}]},
		{"employee_ref": "E-2", "basic_salary": "1000.00",
		 "deductions": [{"code": "LOAN", "amount": "2000.00"}]}
	]
}`

type generateResponse struct {
	Period  string           `json:"period"`
	Results []resultResponse `json:"results"`
}

func TestHandlerGenerateAndPay(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/payroll/generate", generateBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-03", resp.Period)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "NEW", resp.Results[0].Outcome)
	require.NotNil(t, resp.Results[0].Record)
	assert.Equal(t, "6250000.00", resp.Results[0].Record.NetSalary.String())
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, "INVALID_AMOUNT", resp.Results[1].Error.Kind)
	id := resp.Results[0].Record.ID

	rec = do(t, router, http.MethodPost, "/payroll/generate", generateBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"UNCHANGED"`)

	rec = do(t, router, http.MethodGet, "/payroll?month=3&year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []recordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, id, listed[0].ID)

	rec = do(t, router, http.MethodPost, "/payroll/"+id+"/transitions", `{"action":"APPROVE","expected_status":"DRAFT"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/payroll/"+id+"/transitions", `{"action":"PAY","expected_status":"APPROVED"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"PAID"`)

	rec = do(t, router, http.MethodGet, "/payroll/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"employee_ref":"E-1"`)
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/payroll/generate", `{"month":13,"year":2025,"employees":[{"employee_ref":"E","basic_salary":"1.00"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/payroll/generate", `{"month":3,"year":2025,"employees":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/payroll?month=march", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/payroll/6f1c7f0e-2a0b-4c3e-9a55-0d6c1b9d0a11", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/payroll/6f1c7f0e-2a0b-4c3e-9a55-0d6c1b9d0a11/transitions", `{"action":"POST","expected_status":"DRAFT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
