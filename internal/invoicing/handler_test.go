package invoicing

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

const sampleInvoiceBody = `{
	"customer_ref": "CUST-001",
	"issue_date": "2025-03-01",
	"lines": [
		{"product_ref": "SKU-A", "quantity": 2, "unit_price": "100", "tax_rate": "15"},
		{"product_ref": "SKU-B", "quantity": 1, "unit_price": "50", "tax_rate": "0", "discount": "5"}
	]
}`

func newInvoiceRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	return r, f
}

func send(t *testing.T, router http.Handler, method, path, body, idempotencyKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.ActorHeader, "3")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerInvoiceFlow(t *testing.T) {
	router, f := newInvoiceRouter(t)

	rec := send(t, router, http.MethodPost, "/invoices", sampleInvoiceBody, "req-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "250.00", created.Subtotal.String())
	assert.Equal(t, "30.00", created.TaxAmount.String())
	assert.Equal(t, "275.00", created.TotalAmount.String())
	assert.Equal(t, "UNPAID", created.PaymentStatus)
	assert.Len(t, created.Lines, 2)

	rec = send(t, router, http.MethodPost, "/invoices", sampleInvoiceBody, "req-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, f.repo.invoices, 1)

	rec = send(t, router, http.MethodPost, "/invoices/"+created.ID+"/payments", `{"amount":"100","method":"TRANSFER"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"payment_status":"PARTIAL"`)
	assert.Contains(t, rec.Body.String(), `"remaining_amount":"175.00"`)

	rec = send(t, router, http.MethodPost, "/invoices/"+created.ID+"/transitions", `{"action":"CANCEL","expected_status":"DRAFT"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "PRECONDITION_FAILED")

	rec = send(t, router, http.MethodGet, "/invoices/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"DRAFT"`)
}

func TestHandlerRejectsShortStock(t *testing.T) {
	router, _ := newInvoiceRouter(t)
	rec := send(t, router, http.MethodPost, "/invoices", `{
		"customer_ref": "CUST-001",
		"lines": [{"product_ref": "SKU-B", "quantity": 2, "unit_price": "50", "tax_rate": "0"}]
	}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_STOCK")
}

func TestHandlerBadRequests(t *testing.T) {
	router, _ := newInvoiceRouter(t)

	rec := send(t, router, http.MethodPost, "/invoices", `{"customer_ref":"CUST-001","lines":[]}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, router, http.MethodPost, "/invoices", `{"customer_ref":"CUST-001","lines":[{"product_ref":"SKU-A","quantity":1,"unit_price":"abc"}]}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, router, http.MethodGet, "/invoices/aging?as_of=03-2025", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, router, http.MethodGet, "/invoices/9b2e4c4e-3a43-4f57-9a2d-6a8b0ad0c001", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
