package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

const jobColumnList = `id, expense_id, status, idempotency_key, attempt_count, max_attempts,
	last_error_message, next_attempt_at, locked_until, created_at, updated_at`

// eligibleJobPredicate selects jobs a poller may claim at $now.
const eligibleJobPredicate = `status IN ('uploaded', 'processing')
	AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
	AND (locked_until IS NULL OR locked_until < $1)`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.IntakeResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT j.expense_id, e.processing_status
FROM processing_jobs j
JOIN expenses e ON e.id = j.expense_id
WHERE j.idempotency_key = $1
`, key)

	var result domain.IntakeResult
	var status string
	if err := row.Scan(&result.ExpenseID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "find job by idempotency key", fmt.Errorf("key=%s", key))
		}
		return nil, fmt.Errorf("find job by idempotency key: %w", err)
	}
	result.ProcessingStatus = domain.ProcessingStatus(status)
	return &result, nil
}

// CreateIngestion inserts the expense draft and its job atomically. A clash on
// the idempotency key is reported as domain.ErrDuplicate.
func (r *JobRepository) CreateIngestion(ctx context.Context, expense *domain.Expense, job *domain.ProcessingJob) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingestion tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertExpense(ctx, tx, expense); err != nil {
		return fmt.Errorf("insert expense draft: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO processing_jobs (
	id, expense_id, status, idempotency_key, attempt_count, max_attempts, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, job.ID, job.ExpenseID, string(job.Status), job.IdempotencyKey, job.AttemptCount, job.MaxAttempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicate, "insert processing job", err)
		}
		return fmt.Errorf("insert processing job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingestion tx: %w", err)
	}
	return nil
}

func (r *JobRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.ProcessingJob, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jobColumnList+`
FROM processing_jobs
WHERE `+eligibleJobPredicate+`
ORDER BY created_at ASC
LIMIT $2
`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProcessingJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Claim leases an eligible job to the caller until now+lease and moves job
// and expense to processing. Rows locked by another claimer are skipped.
func (r *JobRepository) Claim(ctx context.Context, jobID string, now time.Time, lease time.Duration) (*domain.ClaimedJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	job, err := scanJob(tx.QueryRowContext(ctx, `
SELECT `+jobColumnList+`
FROM processing_jobs
WHERE `+eligibleJobPredicate+` AND id = $2
FOR UPDATE SKIP LOCKED
`, now, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotClaimable, "claim job", fmt.Errorf("id=%s", jobID))
		}
		return nil, fmt.Errorf("select job for claim: %w", err)
	}

	// timestamptz keeps microseconds; the lease must compare equal after a
	// round trip.
	lockedUntil := now.Add(lease).Truncate(time.Microsecond)
	if _, err := tx.ExecContext(ctx, `
UPDATE processing_jobs
SET status = $2, locked_until = $3, updated_at = $4
WHERE id = $1
`, job.ID, string(domain.StatusProcessing), lockedUntil, now); err != nil {
		return nil, fmt.Errorf("lease job: %w", err)
	}
	job.Status = domain.StatusProcessing
	job.LockedUntil = &lockedUntil
	job.UpdatedAt = now

	expense, err := scanExpense(tx.QueryRowContext(ctx, `
UPDATE expenses
SET processing_status = $2, updated_at = $3
WHERE id = $1
RETURNING `+expenseColumnList, job.ExpenseID, string(domain.StatusProcessing), now))
	if err != nil {
		return nil, fmt.Errorf("mark expense processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return &domain.ClaimedJob{Job: job, Expense: expense}, nil
}

// Complete stores the extraction outcome and moves job and expense to
// awaiting_user. Fields the extractor did not find keep their stored value.
// Nothing is written once the job left the lease, e.g. after a verification.
func (r *JobRepository) Complete(ctx context.Context, lease domain.JobLease, outcome domain.ExtractionOutcome, now time.Time) error {
	rawInput, err := json.Marshal(outcome.RawInput)
	if err != nil {
		return fmt.Errorf("marshal raw input: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var expenseID string
	err = tx.QueryRowContext(ctx, `
UPDATE processing_jobs
SET status = $2, locked_until = NULL, next_attempt_at = NULL, updated_at = $3
WHERE id = $1 AND status = 'processing' AND locked_until = $4
RETURNING expense_id
`, lease.JobID, string(domain.StatusAwaitingUser), now, lease.LockedUntil).Scan(&expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrJobSuperseded, "complete job", fmt.Errorf("id=%s", lease.JobID))
		}
		return fmt.Errorf("complete job: %w", err)
	}

	currency := outcome.Fields.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE expenses
SET amount = COALESCE($2, amount),
	merchant = COALESCE($3, merchant),
	date = COALESCE($4, date),
	currency = $5,
	category = $6,
	confidence = $7,
	raw_input = $8,
	processing_status = $9,
	updated_at = $10
WHERE id = $1
`,
		expenseID, outcome.Fields.Amount, outcome.Fields.Merchant, outcome.Fields.Date, currency,
		outcome.Category, outcome.Confidence, rawInput, string(domain.StatusAwaitingUser), now,
	); err != nil {
		return fmt.Errorf("store extracted fields: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete tx: %w", err)
	}
	return nil
}

// RecordFailure writes a failed attempt under the failure's lease.
func (r *JobRepository) RecordFailure(ctx context.Context, failure domain.JobFailure, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failure tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE processing_jobs
SET status = $2, attempt_count = $3, last_error_message = $4, next_attempt_at = $5, locked_until = NULL, updated_at = $6
WHERE id = $1 AND status = 'processing' AND locked_until = $7
`, failure.Lease.JobID, string(failure.Status), failure.AttemptCount, failure.ErrorMessage, failure.NextAttemptAt, now, failure.Lease.LockedUntil)
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record job failure rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobSuperseded, "record job failure", fmt.Errorf("id=%s", failure.Lease.JobID))
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE expenses
SET processing_status = $2, updated_at = $3
WHERE id = $1
`, failure.ExpenseID, string(failure.Status), now); err != nil {
		return fmt.Errorf("mirror expense status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failure tx: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	var status string
	err := row.Scan(
		&job.ID,
		&job.ExpenseID,
		&status,
		&job.IdempotencyKey,
		&job.AttemptCount,
		&job.MaxAttempts,
		&job.LastErrorMessage,
		&job.NextAttemptAt,
		&job.LockedUntil,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.ProcessingJob{}, err
	}
	job.Status = domain.ProcessingStatus(status)
	return job, nil
}
