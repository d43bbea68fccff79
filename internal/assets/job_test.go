package assets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
)

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2025, 3, 5, 1, 0, 0, 0, time.UTC)

	period, err := DepreciationRunPayload{}.ResolvePeriod(now)
	require.NoError(t, err)
	assert.Equal(t, month(2025, time.February), period)

	period, err = DepreciationRunPayload{Period: "2024-11"}.ResolvePeriod(now)
	require.NoError(t, err)
	assert.Equal(t, month(2024, time.November), period)

	_, err = DepreciationRunPayload{Period: "11/2024"}.ResolvePeriod(now)
	require.Error(t, err)
}

func TestDepreciationJobHandle(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	job := NewDepreciationJob(svc, jobmetrics.NewMetrics(reg), nil, 2)

	task, err := NewDepreciationRunTask("2025-01")
	require.NoError(t, err)
	assert.Equal(t, TaskDepreciationRun, task.Type())
	require.NoError(t, job.Handle(ctx, task))
	assert.Len(t, repo.records, 1)

	count, err := testutil.GatherAndCount(reg, "fincore_job_items_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the posted outcome is non-zero")
}

func TestDepreciationJobRejectsBadPayload(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	job := NewDepreciationJob(svc, nil, nil, 1)

	err := job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte(`{"period":"January"}`)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
