package ports

import (
	"context"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

// ExpenseIngestor is the inbound contract for idempotent job intake.
type ExpenseIngestor interface {
	Submit(ctx context.Context, req domain.IngestionRequest) (domain.IntakeResult, error)
}

// JobProcessor is the inbound contract for running one processing job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) (domain.ProcessingStatus, error)
}

// ExpenseService is the inbound contract for expense reads and user edits.
type ExpenseService interface {
	List(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error)
	Get(ctx context.Context, id string) (*domain.Expense, error)
	CreateManual(ctx context.Context, input domain.ManualExpenseInput) (*domain.Expense, error)
	Update(ctx context.Context, id string, patch domain.ExpensePatch) (*domain.Expense, error)
	Delete(ctx context.Context, id string) error
}

// AnalyticsService aggregates settled expenses.
type AnalyticsService interface {
	Summary(ctx context.Context, from, to *time.Time) (domain.AnalyticsSummary, error)
}

// DeviceRegistrar records the push token of the client device.
type DeviceRegistrar interface {
	RegisterToken(ctx context.Context, token string) error
}
