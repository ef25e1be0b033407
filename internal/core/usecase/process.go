package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/extraction"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

// leaseSlack is how long a run may outlive JobTimeout while it records its
// outcome. The lease always covers JobTimeout plus this slack so that no other
// poller can claim a job that is still running.
const leaseSlack = time.Minute

// ProcessOptions bounds the work done for a single job.
type ProcessOptions struct {
	Lease          time.Duration
	JobTimeout     time.Duration
	StorageTimeout time.Duration
	OCRTimeout     time.Duration
}

func (o ProcessOptions) withDefaults() ProcessOptions {
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 2 * time.Minute
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 30 * time.Second
	}
	if o.OCRTimeout <= 0 {
		o.OCRTimeout = 30 * time.Second
	}
	if minLease := o.JobTimeout + leaseSlack; o.Lease < minLease {
		o.Lease = minLease
	}
	return o
}

type ProcessExpenseUseCase struct {
	jobs       ports.JobRepository
	storage    ports.ObjectStorage
	preparer   ports.ReceiptPreparer
	recognizer ports.TextRecognizer
	categories *extraction.CategoryMatcher
	voice      *extraction.VoiceParser
	failures   *FailureHandler
	notifier   ports.Notifier
	opts       ProcessOptions
	now        func() time.Time
}

func NewProcessExpenseUseCase(
	jobs ports.JobRepository,
	storage ports.ObjectStorage,
	preparer ports.ReceiptPreparer,
	recognizer ports.TextRecognizer,
	categories *extraction.CategoryMatcher,
	failures *FailureHandler,
	notifier ports.Notifier,
	opts ProcessOptions,
) *ProcessExpenseUseCase {
	if categories == nil {
		categories = extraction.DefaultCategoryMatcher()
	}
	effective := opts.withDefaults()
	if opts.Lease > 0 && effective.Lease != opts.Lease {
		slog.Warn("job_lease_raised",
			"configured", opts.Lease.String(),
			"lease", effective.Lease.String(),
			"job_timeout", effective.JobTimeout.String(),
		)
	}
	uc := &ProcessExpenseUseCase{
		jobs:       jobs,
		storage:    storage,
		preparer:   preparer,
		recognizer: recognizer,
		categories: categories,
		failures:   failures,
		notifier:   notifier,
		opts:       effective,
		now:        time.Now,
	}
	uc.voice = extraction.NewVoiceParser(categories, func() time.Time { return uc.now() })
	return uc
}

// ProcessJob claims the job, extracts fields from its source and records the
// outcome. Extraction errors are absorbed by the failure handler, so the
// returned error is non-nil only when the outcome itself could not be stored.
// A job that another poller holds is skipped with an empty status.
func (uc *ProcessExpenseUseCase) ProcessJob(ctx context.Context, jobID string) (domain.ProcessingStatus, error) {
	claimed, err := uc.jobs.Claim(ctx, jobID, uc.now().UTC(), uc.opts.Lease)
	if err != nil {
		if domain.IsKind(err, domain.ErrJobNotClaimable) {
			slog.Debug("job_skipped", "job_id", jobID)
			return "", nil
		}
		return "", fmt.Errorf("claim job: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, uc.opts.JobTimeout)
	outcome, runErr := uc.extract(runCtx, claimed)
	if runErr == nil {
		runErr = uc.jobs.Complete(runCtx, claimed.Job.Lease(), outcome, uc.now().UTC())
		if runErr != nil {
			runErr = fmt.Errorf("persist extraction: %w", runErr)
		}
	}
	cancel()

	if domain.IsKind(runErr, domain.ErrJobSuperseded) {
		uc.logSuperseded(claimed.Job)
		return "", nil
	}
	if runErr != nil {
		status, err := uc.failures.Handle(ctx, claimed.Job, runErr)
		if domain.IsKind(err, domain.ErrJobSuperseded) {
			uc.logSuperseded(claimed.Job)
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("%w; handle failure: %v", runErr, err)
		}
		if status == domain.StatusFailed {
			uc.notify(ctx, claimed.Job.ExpenseID, status)
		}
		return status, nil
	}

	slog.Info("job_processed",
		"job_id", claimed.Job.ID,
		"expense_id", claimed.Job.ExpenseID,
		"confidence", outcome.Confidence.StringFixed(3),
	)
	uc.notify(ctx, claimed.Job.ExpenseID, domain.StatusAwaitingUser)
	return domain.StatusAwaitingUser, nil
}

func (uc *ProcessExpenseUseCase) extract(ctx context.Context, claimed *domain.ClaimedJob) (domain.ExtractionOutcome, error) {
	source, err := domain.SourceFor(&claimed.Expense)
	if err != nil {
		return domain.ExtractionOutcome{}, err
	}

	switch src := source.(type) {
	case domain.ReceiptJob:
		text, err := uc.receiptText(ctx, src.ObjectKey)
		if err != nil {
			return domain.ExtractionOutcome{}, err
		}
		fields := extraction.ParseReceipt(text)
		category := uc.categories.Suggest(fields.Merchant, text)
		fields.Category = category
		return domain.ExtractionOutcome{
			Fields:     fields,
			Category:   category,
			Confidence: extraction.Score(fields),
			RawInput: domain.RawInput{
				OCRText:   text,
				LineItems: fields.LineItems,
			},
		}, nil
	case domain.VoiceJob:
		fields := uc.voice.Parse(src.Transcript)
		return domain.ExtractionOutcome{
			Fields:     fields,
			Category:   fields.Category,
			Confidence: extraction.Score(fields),
			RawInput:   domain.RawInput{Transcript: src.Transcript},
		}, nil
	default:
		return domain.ExtractionOutcome{}, domain.WrapError(domain.ErrInvalidInput, "dispatch job", fmt.Errorf("unsupported job source %T", source))
	}
}

func (uc *ProcessExpenseUseCase) receiptText(ctx context.Context, objectKey string) (string, error) {
	if uc.storage == nil || uc.recognizer == nil {
		return "", errors.New("receipt processing is not configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, uc.opts.StorageTimeout)
	data, err := uc.storage.Fetch(fetchCtx, objectKey)
	cancel()
	if err != nil {
		return "", fmt.Errorf("fetch receipt: %w", err)
	}

	prepared := domain.PreparedReceipt{Image: data, MIMEType: "image/jpeg"}
	if uc.preparer != nil {
		prepared, err = uc.preparer.Prepare(ctx, data)
		if err != nil {
			return "", fmt.Errorf("prepare receipt: %w", err)
		}
	}
	if prepared.EmbeddedText != "" {
		return prepared.EmbeddedText, nil
	}

	ocrCtx, cancel := context.WithTimeout(ctx, uc.opts.OCRTimeout)
	defer cancel()
	text, err := uc.recognizer.ExtractText(ocrCtx, prepared.Image, prepared.MIMEType)
	if err != nil {
		return "", fmt.Errorf("recognize receipt text: %w", err)
	}
	return text, nil
}

// logSuperseded records a run whose result was dropped because the job moved
// on without it, typically a user verification or a delete during the run.
func (uc *ProcessExpenseUseCase) logSuperseded(job domain.ProcessingJob) {
	slog.Info("job_superseded", "job_id", job.ID, "expense_id", job.ExpenseID)
}

func (uc *ProcessExpenseUseCase) notify(ctx context.Context, expenseID string, status domain.ProcessingStatus) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.NotifyJobOutcome(ctx, expenseID, status); err != nil {
		slog.Warn("notify_job_outcome_failed", "expense_id", expenseID, "status", status, "error", err)
	}
}
