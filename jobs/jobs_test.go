package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/assets"
	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
	"github.com/odyssey-erp/fincore/internal/ledger"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/payroll"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func newJobsRouter(enq Enqueuer, insp QueueInspector) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(enq, insp, discard).MountRoutes)
	return r
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerEnqueuesDepreciationRun(t *testing.T) {
	enq := &recordingEnqueuer{}
	router := newJobsRouter(enq, nil)

	rec := post(router, "/jobs/depreciation-run", `{"period":"2025-01"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, assets.TaskDepreciationRun, enq.tasks[0].Type())
	assert.JSONEq(t, `{"period":"2025-01"}`, string(enq.tasks[0].Payload()))

	rec = post(router, "/jobs/depreciation-run", `{"period":"January"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerEnqueuesPayrollWithActor(t *testing.T) {
	enq := &recordingEnqueuer{}
	router := newJobsRouter(enq, nil)

	rec := post(router, "/jobs/payroll-generate", `{"month":3,"year":2025,"employees":[{"employee_ref":"E","basic_salary":"100.00"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, enq.tasks, 1)
	var payload payroll.GeneratePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, int64(3), payload.ActorID)

	rec = post(router, "/jobs/payroll-generate", `{"month":3,"year":2025,"employees":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	enq.err = asynq.ErrDuplicateTask
	rec = post(router, "/jobs/payroll-generate", `{"month":3,"year":2025,"employees":[{"employee_ref":"E","basic_salary":"100.00"}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerHealth(t *testing.T) {
	router := newJobsRouter(nil, stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Active: 1}})
	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"active":1,"retry":0}`, rec.Body.String())

	router = newJobsRouter(nil, stubInspector{err: errors.New("redis down")})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = post(router, "/jobs/ledger-integrity", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeCleaner struct {
	olderThan time.Duration
	removed   int64
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.removed, nil
}

func TestIdempotencyCleanupJob(t *testing.T) {
	store := &fakeCleaner{removed: 7}
	reg := prometheus.NewRegistry()
	job := NewIdempotencyCleanupJob(store, 720*time.Hour, discard, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 720*time.Hour, store.olderThan)

	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Hour, store.olderThan)

	assert.Equal(t, float64(14), itemsByOutcome(t, reg)["deleted"])

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte(`{"retention":"soon"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func itemsByOutcome(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "fincore_job_items_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					values[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return values
}

type fakePosted struct {
	entries []ledger.JournalEntry
}

func (f fakePosted) ListPostedEntries(_ context.Context, fiscalYear int) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, e := range f.entries {
		if e.FiscalYear == fiscalYear {
			out = append(out, e)
		}
	}
	return out, nil
}

func postedEntry(debit, credit string) ledger.JournalEntry {
	return ledger.JournalEntry{
		ID:         uuid.New(),
		FiscalYear: 2025,
		Lines: []ledger.EntryLine{
			{LineNumber: 1, AccountRef: "1000", Debit: money.MustParse(debit)},
			{LineNumber: 2, AccountRef: "4000", Credit: money.MustParse(credit)},
		},
	}
}

func TestLedgerIntegrityJobCountsUnbalanced(t *testing.T) {
	reg := prometheus.NewRegistry()
	source := fakePosted{entries: []ledger.JournalEntry{
		postedEntry("100.00", "100.00"),
		postedEntry("100.00", "99.99"),
		postedEntry("50.00", "50.00"),
	}}
	job := NewLedgerIntegrityJob(source, discard, jobmetrics.NewMetrics(reg))
	task, err := NewLedgerIntegrityTask(2025)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(reg, "fincore_job_items_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	values := itemsByOutcome(t, reg)
	assert.Equal(t, float64(2), values["balanced"])
	assert.Equal(t, float64(1), values["unbalanced"])
}
