package ports

import (
	"context"
	"io"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

// JobRepository persists processing jobs and drives their status transitions.
// Every method that changes a job status changes the linked expense status in
// the same transaction. Complete and RecordFailure return
// domain.ErrJobSuperseded when the job left the lease it was claimed under,
// e.g. because the user verified the expense mid-run.
type JobRepository interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.IntakeResult, error)
	CreateIngestion(ctx context.Context, expense *domain.Expense, job *domain.ProcessingJob) error
	ListPending(ctx context.Context, now time.Time, limit int) ([]domain.ProcessingJob, error)
	Claim(ctx context.Context, jobID string, now time.Time, lease time.Duration) (*domain.ClaimedJob, error)
	Complete(ctx context.Context, lease domain.JobLease, outcome domain.ExtractionOutcome, now time.Time) error
	RecordFailure(ctx context.Context, failure domain.JobFailure, now time.Time) error
}

// ExpenseRepository persists and reads expense records.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *domain.Expense) error
	GetByID(ctx context.Context, id string) (*domain.Expense, error)
	List(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error)
	Update(ctx context.Context, id string, patch domain.ExpensePatch, now time.Time) (*domain.Expense, error)
	Delete(ctx context.Context, id string) error
}

// DeviceTokenStore holds the push token of the registered device.
type DeviceTokenStore interface {
	SaveToken(ctx context.Context, token string) error
	Token(ctx context.Context) (string, error)
}

// ObjectStorage stores receipt images.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ReceiptPreparer normalizes fetched receipt bytes for text recognition.
type ReceiptPreparer interface {
	Prepare(ctx context.Context, data []byte) (domain.PreparedReceipt, error)
}

// TextRecognizer turns an image into raw text.
type TextRecognizer interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishExpenseIngested(ctx context.Context, expenseID string) error
	SubscribeExpenseIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// Notifier tells the device that a job reached an outcome.
type Notifier interface {
	NotifyJobOutcome(ctx context.Context, expenseID string, status domain.ProcessingStatus) error
}

// ExpenseExporter renders expenses into a downloadable document.
type ExpenseExporter interface {
	ContentType() string
	Export(w io.Writer, expenses []domain.Expense) error
}
