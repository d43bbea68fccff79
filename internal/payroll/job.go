package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
	"github.com/odyssey-erp/fincore/internal/money"
)

// TaskGenerate generates one period's payroll for a list of employees.
const TaskGenerate = "payroll:generate"

const jobName = "payroll_generate"

// GeneratePayload is the asynq payload of TaskGenerate.
type GeneratePayload struct {
	Month     int               `json:"month"`
	Year      int               `json:"year"`
	ActorID   int64             `json:"actor_id"`
	Employees []EmployeePayload `json:"employees"`
}

// EmployeePayload carries one employee's pay data.
type EmployeePayload struct {
	EmployeeRef string      `json:"employee_ref"`
	BasicSalary money.Money `json:"basic_salary"`
	Allowances  []Component `json:"allowances,omitempty"`
	Deductions  []Component `json:"deductions,omitempty"`
}

// NewGenerateTask constructs the asynq task. Identical payloads are
// deduplicated while one is queued.
func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGenerate, body,
		asynq.MaxRetry(5),
		asynq.Timeout(15*time.Minute),
		asynq.Unique(10*time.Minute),
	), nil
}

// ToInput converts the payload into a generation request.
func (p GeneratePayload) ToInput() GenerateInput {
	in := GenerateInput{Period: Period{Month: p.Month, Year: p.Year}, ActorID: p.ActorID}
	for _, e := range p.Employees {
		in.Employees = append(in.Employees, EmployeeInput(e))
	}
	return in
}

// GenerateJob runs Service.Generate from the worker.
type GenerateJob struct {
	service *Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewGenerateJob constructs the job handler.
func NewGenerateJob(service *Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *GenerateJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateJob{service: service, metrics: metrics, logger: logger}
}

// Handle processes TaskGenerate tasks. Per-employee failures are logged and
// counted; only infrastructure errors make the task retry.
func (j *GenerateJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("payroll: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	input := payload.ToInput()
	if err := input.Period.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if len(input.Employees) == 0 {
		return fmt.Errorf("%v: %w", ErrNoEmployees, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(jobName)
	results, err := j.service.Generate(ctx, input)
	counts := map[string]int{}
	for _, res := range results {
		if res.Err != nil {
			counts["failed"]++
			j.logger.Warn("payroll generation rejected",
				slog.String("employee", res.Record.EmployeeRef),
				slog.String("period", input.Period.String()),
				slog.Any("error", res.Err))
			continue
		}
		counts[string(res.Outcome)]++
	}
	for outcome, n := range counts {
		j.metrics.AddItems(jobName, outcome, n)
	}
	j.logger.Info("payroll generation finished",
		slog.String("period", input.Period.String()),
		slog.Int("employees", len(input.Employees)),
		slog.Any("outcomes", counts))
	return tracker.End(err)
}
