package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

type IntakeUseCase struct {
	jobs        ports.JobRepository
	queue       ports.MessageQueue
	maxAttempts int
	now         func() time.Time
}

func NewIntakeUseCase(jobs ports.JobRepository, queue ports.MessageQueue, maxAttempts int) *IntakeUseCase {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &IntakeUseCase{
		jobs:        jobs,
		queue:       queue,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Submit creates an expense draft and its processing job, or returns the ones
// already recorded for the idempotency key.
func (uc *IntakeUseCase) Submit(ctx context.Context, req domain.IngestionRequest) (domain.IntakeResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return domain.IntakeResult{}, domain.WrapError(domain.ErrInvalidInput, "submit ingestion", errors.New("idempotency key is required"))
	}

	existing, err := uc.jobs.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		return *existing, nil
	case !domain.IsKind(err, domain.ErrJobNotFound):
		return domain.IntakeResult{}, fmt.Errorf("lookup idempotency key: %w", err)
	}

	expense, err := uc.draftExpense(req)
	if err != nil {
		return domain.IntakeResult{}, err
	}
	job := &domain.ProcessingJob{
		ID:             uuid.NewString(),
		ExpenseID:      expense.ID,
		Status:         domain.StatusUploaded,
		IdempotencyKey: key,
		AttemptCount:   0,
		MaxAttempts:    uc.maxAttempts,
		CreatedAt:      expense.CreatedAt,
		UpdatedAt:      expense.CreatedAt,
	}

	if err := uc.jobs.CreateIngestion(ctx, expense, job); err != nil {
		if domain.IsKind(err, domain.ErrDuplicate) {
			return uc.replay(ctx, key)
		}
		return domain.IntakeResult{}, fmt.Errorf("create ingestion: %w", err)
	}

	uc.announce(ctx, expense.ID)
	return domain.IntakeResult{
		ExpenseID:        expense.ID,
		ProcessingStatus: domain.StatusUploaded,
		Created:          true,
	}, nil
}

func (uc *IntakeUseCase) draftExpense(req domain.IngestionRequest) (*domain.Expense, error) {
	now := uc.now().UTC()
	expense := &domain.Expense{
		ID:               uuid.NewString(),
		Source:           req.Source,
		ProcessingStatus: domain.StatusUploaded,
		Currency:         domain.DefaultCurrency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	switch req.Source {
	case domain.SourceReceipt:
		objectKey := strings.TrimSpace(req.ObjectKey)
		if objectKey == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "submit receipt", errors.New("object key is required"))
		}
		expense.ReceiptURL = &objectKey
	case domain.SourceVoice:
		if strings.TrimSpace(req.Transcript) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "submit voice", errors.New("transcript is required"))
		}
		expense.RawInput = domain.RawInput{Transcript: req.Transcript}
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit ingestion", fmt.Errorf("unsupported source %q", req.Source))
	}
	return expense, nil
}

// replay resolves a submission that lost a race on the idempotency key.
func (uc *IntakeUseCase) replay(ctx context.Context, key string) (domain.IntakeResult, error) {
	existing, err := uc.jobs.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return domain.IntakeResult{}, fmt.Errorf("reload concurrent submission: %w", err)
	}
	return *existing, nil
}

func (uc *IntakeUseCase) announce(ctx context.Context, expenseID string) {
	if uc.queue == nil {
		return
	}
	if err := uc.queue.PublishExpenseIngested(ctx, expenseID); err != nil {
		slog.Warn("publish_ingestion_event_failed", "expense_id", expenseID, "error", err)
	}
}
