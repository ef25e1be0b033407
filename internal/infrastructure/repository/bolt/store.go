// Package bolt is an embedded single-node store for expenses and processing
// jobs. It serves local runs where the API and the poller share one process;
// a bbolt file cannot be opened by two processes at once.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

var (
	expensesBucket    = []byte("expenses")
	jobsBucket        = []byte("processing_jobs")
	idempotencyBucket = []byte("idempotency_keys")
	jobByExpenseIndex = []byte("jobs_by_expense")
	settingsBucket    = []byte("settings")

	deviceTokenKey = []byte("device_token")
)

// Store implements the job, expense and device token ports on a bbolt file.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{expensesBucket, jobsBucket, idempotencyBucket, jobByExpenseIndex, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindByIdempotencyKey(_ context.Context, key string) (*domain.IntakeResult, error) {
	var result *domain.IntakeResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		jobID := tx.Bucket(idempotencyBucket).Get([]byte(key))
		if jobID == nil {
			return domain.WrapError(domain.ErrJobNotFound, "find job by idempotency key", fmt.Errorf("key=%s", key))
		}
		job, err := getJob(tx, string(jobID))
		if err != nil {
			return err
		}
		expense, err := getExpense(tx, job.ExpenseID)
		if err != nil {
			return err
		}
		result = &domain.IntakeResult{ExpenseID: expense.ID, ProcessingStatus: expense.ProcessingStatus}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateIngestion(_ context.Context, expense *domain.Expense, job *domain.ProcessingJob) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(idempotencyBucket)
		if keys.Get([]byte(job.IdempotencyKey)) != nil {
			return domain.WrapError(domain.ErrDuplicate, "create ingestion", fmt.Errorf("idempotency key %s already used", job.IdempotencyKey))
		}
		if err := putExpense(tx, expense); err != nil {
			return err
		}
		if err := putJob(tx, job); err != nil {
			return err
		}
		if err := keys.Put([]byte(job.IdempotencyKey), []byte(job.ID)); err != nil {
			return fmt.Errorf("indexing idempotency key: %w", err)
		}
		return tx.Bucket(jobByExpenseIndex).Put([]byte(job.ExpenseID), []byte(job.ID))
	})
}

func (s *Store) ListPending(_ context.Context, now time.Time, limit int) ([]domain.ProcessingJob, error) {
	pending := make([]domain.ProcessingJob, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, v []byte) error {
			var job domain.ProcessingJob
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshaling job: %w", err)
			}
			if job.Eligible(now) {
				pending = append(pending, job)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(pending, func(a, b domain.ProcessingJob) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Claim runs inside a single write transaction, which bbolt serializes, so
// two pollers in one process cannot lease the same job.
func (s *Store) Claim(_ context.Context, jobID string, now time.Time, lease time.Duration) (*domain.ClaimedJob, error) {
	var claimed *domain.ClaimedJob
	err := s.db.Update(func(tx *bbolt.Tx) error {
		job, err := getJob(tx, jobID)
		if domain.IsKind(err, domain.ErrJobNotFound) {
			return domain.WrapError(domain.ErrJobNotClaimable, "claim job", fmt.Errorf("id=%s", jobID))
		}
		if err != nil {
			return err
		}
		if !job.Eligible(now) {
			return domain.WrapError(domain.ErrJobNotClaimable, "claim job", fmt.Errorf("id=%s", jobID))
		}
		expense, err := getExpense(tx, job.ExpenseID)
		if err != nil {
			return err
		}

		lockedUntil := now.Add(lease)
		job.Status = domain.StatusProcessing
		job.LockedUntil = &lockedUntil
		job.UpdatedAt = now
		expense.ProcessingStatus = domain.StatusProcessing
		expense.UpdatedAt = now
		if err := putJob(tx, job); err != nil {
			return err
		}
		if err := putExpense(tx, expense); err != nil {
			return err
		}
		claimed = &domain.ClaimedJob{Job: *job, Expense: *expense}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) Complete(_ context.Context, lease domain.JobLease, outcome domain.ExtractionOutcome, now time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		job, err := leasedJob(tx, lease, "complete job")
		if err != nil {
			return err
		}
		expense, err := getExpense(tx, job.ExpenseID)
		if err != nil {
			return err
		}

		job.Status = domain.StatusAwaitingUser
		job.LockedUntil = nil
		job.NextAttemptAt = nil
		job.UpdatedAt = now

		if outcome.Fields.Amount != nil {
			expense.Amount = outcome.Fields.Amount
		}
		if outcome.Fields.Merchant != nil {
			expense.Merchant = outcome.Fields.Merchant
		}
		if outcome.Fields.Date != nil {
			expense.Date = outcome.Fields.Date
		}
		expense.Currency = outcome.Fields.Currency
		if expense.Currency == "" {
			expense.Currency = domain.DefaultCurrency
		}
		confidence := outcome.Confidence
		expense.Category = outcome.Category
		expense.Confidence = &confidence
		expense.RawInput = outcome.RawInput
		expense.ProcessingStatus = domain.StatusAwaitingUser
		expense.UpdatedAt = now

		if err := putJob(tx, job); err != nil {
			return err
		}
		return putExpense(tx, expense)
	})
}

func (s *Store) RecordFailure(_ context.Context, failure domain.JobFailure, now time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		job, err := leasedJob(tx, failure.Lease, "record job failure")
		if err != nil {
			return err
		}
		expense, err := getExpense(tx, failure.ExpenseID)
		if err != nil {
			return err
		}

		message := failure.ErrorMessage
		job.Status = failure.Status
		job.AttemptCount = failure.AttemptCount
		job.LastErrorMessage = &message
		job.NextAttemptAt = failure.NextAttemptAt
		job.LockedUntil = nil
		job.UpdatedAt = now
		expense.ProcessingStatus = failure.Status
		expense.UpdatedAt = now

		if err := putJob(tx, job); err != nil {
			return err
		}
		return putExpense(tx, expense)
	})
}

func (s *Store) SaveToken(_ context.Context, token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Put(deviceTokenKey, []byte(token))
	})
}

func (s *Store) Token(_ context.Context) (string, error) {
	var token string
	err := s.db.View(func(tx *bbolt.Tx) error {
		token = string(tx.Bucket(settingsBucket).Get(deviceTokenKey))
		return nil
	})
	return token, err
}

// leasedJob loads the job only while it is still processing under lease. A
// deleted job counts as superseded too.
func leasedJob(tx *bbolt.Tx, lease domain.JobLease, operation string) (*domain.ProcessingJob, error) {
	job, err := getJob(tx, lease.JobID)
	if domain.IsKind(err, domain.ErrJobNotFound) {
		return nil, domain.WrapError(domain.ErrJobSuperseded, operation, fmt.Errorf("id=%s", lease.JobID))
	}
	if err != nil {
		return nil, err
	}
	if !lease.Holds(*job) {
		return nil, domain.WrapError(domain.ErrJobSuperseded, operation, fmt.Errorf("id=%s status=%s", job.ID, job.Status))
	}
	return job, nil
}

func getJob(tx *bbolt.Tx, id string) (*domain.ProcessingJob, error) {
	data := tx.Bucket(jobsBucket).Get([]byte(id))
	if data == nil {
		return nil, domain.WrapError(domain.ErrJobNotFound, "load job", fmt.Errorf("id=%s", id))
	}
	var job domain.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &job, nil
}

func putJob(tx *bbolt.Tx, job *domain.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	return tx.Bucket(jobsBucket).Put([]byte(job.ID), data)
}

func getExpense(tx *bbolt.Tx, id string) (*domain.Expense, error) {
	data := tx.Bucket(expensesBucket).Get([]byte(id))
	if data == nil {
		return nil, domain.WrapError(domain.ErrExpenseNotFound, "load expense", fmt.Errorf("id=%s", id))
	}
	var expense domain.Expense
	if err := json.Unmarshal(data, &expense); err != nil {
		return nil, fmt.Errorf("unmarshaling expense: %w", err)
	}
	return &expense, nil
}

func putExpense(tx *bbolt.Tx, expense *domain.Expense) error {
	data, err := json.Marshal(expense)
	if err != nil {
		return fmt.Errorf("marshaling expense: %w", err)
	}
	return tx.Bucket(expensesBucket).Put([]byte(expense.ID), data)
}
