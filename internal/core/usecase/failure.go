package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

// RetryBackoff spaces retries of a failed job. A zero Base schedules the retry
// for the next poll cycle.
type RetryBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the given attempt number (1-based) is retried.
func (b RetryBackoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt <= 0 {
		return 0
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

type FailureHandler struct {
	jobs    ports.JobRepository
	backoff RetryBackoff
	now     func() time.Time
}

func NewFailureHandler(jobs ports.JobRepository, backoff RetryBackoff) *FailureHandler {
	return &FailureHandler{
		jobs:    jobs,
		backoff: backoff,
		now:     time.Now,
	}
}

// Handle records a failed attempt. The job stays in processing until the
// attempt count reaches max attempts, after which job and expense are failed.
func (h *FailureHandler) Handle(ctx context.Context, job domain.ProcessingJob, cause error) (domain.ProcessingStatus, error) {
	now := h.now().UTC()
	attempt := job.AttemptCount + 1
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	failure := domain.JobFailure{
		Lease:        job.Lease(),
		ExpenseID:    job.ExpenseID,
		Status:       domain.StatusProcessing,
		AttemptCount: attempt,
		ErrorMessage: domain.RootMessage(cause),
	}
	if attempt >= maxAttempts {
		failure.Status = domain.StatusFailed
	} else if delay := h.backoff.Delay(attempt); delay > 0 {
		next := now.Add(delay)
		failure.NextAttemptAt = &next
	}

	if err := h.jobs.RecordFailure(ctx, failure, now); err != nil {
		return "", fmt.Errorf("record job failure: %w", err)
	}

	slog.Warn("job_attempt_failed",
		"job_id", job.ID,
		"expense_id", job.ExpenseID,
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"status", failure.Status,
		"error", cause,
	)
	return failure.Status, nil
}
