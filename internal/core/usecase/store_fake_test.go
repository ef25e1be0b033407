package usecase

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

// memoryStore keeps expenses and jobs in maps and applies the same status
// transitions as the persistent repositories.
type memoryStore struct {
	mu       sync.Mutex
	expenses map[string]domain.Expense
	jobs     map[string]domain.ProcessingJob

	beforeCreate   func()
	beforeComplete func()
	createErr      error
	listErr        error
	completeErr    error
	recordErr      error

	failures []domain.JobFailure
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		expenses: make(map[string]domain.Expense),
		jobs:     make(map[string]domain.ProcessingJob),
	}
}

func (s *memoryStore) put(expense domain.Expense, job *domain.ProcessingJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[expense.ID] = expense
	if job != nil {
		s.jobs[job.ID] = *job
	}
}

func (s *memoryStore) job(id string) domain.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *memoryStore) jobForExpense(expenseID string) (domain.ProcessingJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ExpenseID == expenseID {
			return job, true
		}
	}
	return domain.ProcessingJob{}, false
}

func (s *memoryStore) expense(id string) domain.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expenses[id]
}

func (s *memoryStore) FindByIdempotencyKey(_ context.Context, key string) (*domain.IntakeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.IdempotencyKey == key {
			return &domain.IntakeResult{
				ExpenseID:        job.ExpenseID,
				ProcessingStatus: s.expenses[job.ExpenseID].ProcessingStatus,
			}, nil
		}
	}
	return nil, domain.WrapError(domain.ErrJobNotFound, "find job by key", errors.New(key))
}

func (s *memoryStore) CreateIngestion(_ context.Context, expense *domain.Expense, job *domain.ProcessingJob) error {
	if s.beforeCreate != nil {
		s.beforeCreate()
	}
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.IdempotencyKey == job.IdempotencyKey {
			return domain.WrapError(domain.ErrDuplicate, "create ingestion", errors.New(job.IdempotencyKey))
		}
	}
	s.expenses[expense.ID] = *expense
	s.jobs[job.ID] = *job
	return nil
}

func (s *memoryStore) ListPending(_ context.Context, now time.Time, limit int) ([]domain.ProcessingJob, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.ProcessingJob
	for _, job := range s.jobs {
		if job.Eligible(now) {
			pending = append(pending, job)
		}
	}
	slices.SortFunc(pending, func(a, b domain.ProcessingJob) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *memoryStore) Claim(_ context.Context, jobID string, now time.Time, lease time.Duration) (*domain.ClaimedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !job.Eligible(now) {
		return nil, domain.WrapError(domain.ErrJobNotClaimable, "claim job", errors.New(jobID))
	}
	lockedUntil := now.Add(lease)
	job.Status = domain.StatusProcessing
	job.LockedUntil = &lockedUntil
	job.UpdatedAt = now
	s.jobs[jobID] = job

	expense := s.expenses[job.ExpenseID]
	expense.ProcessingStatus = domain.StatusProcessing
	expense.UpdatedAt = now
	s.expenses[expense.ID] = expense
	return &domain.ClaimedJob{Job: job, Expense: expense}, nil
}

func (s *memoryStore) Complete(_ context.Context, lease domain.JobLease, outcome domain.ExtractionOutcome, now time.Time) error {
	if s.beforeComplete != nil {
		s.beforeComplete()
	}
	if s.completeErr != nil {
		return s.completeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[lease.JobID]
	if !ok || !lease.Holds(job) {
		return domain.WrapError(domain.ErrJobSuperseded, "complete job", errors.New(lease.JobID))
	}
	job.Status = domain.StatusAwaitingUser
	job.LockedUntil = nil
	job.UpdatedAt = now
	s.jobs[job.ID] = job

	expense := s.expenses[job.ExpenseID]
	expense.Amount = cmp.Or(outcome.Fields.Amount, expense.Amount)
	expense.Merchant = cmp.Or(outcome.Fields.Merchant, expense.Merchant)
	expense.Date = cmp.Or(outcome.Fields.Date, expense.Date)
	expense.Currency = outcome.Fields.Currency
	expense.Category = outcome.Category
	confidence := outcome.Confidence
	expense.Confidence = &confidence
	expense.RawInput = outcome.RawInput
	expense.ProcessingStatus = domain.StatusAwaitingUser
	expense.UpdatedAt = now
	s.expenses[expense.ID] = expense
	return nil
}

func (s *memoryStore) RecordFailure(_ context.Context, failure domain.JobFailure, now time.Time) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[failure.Lease.JobID]
	if !ok || !failure.Lease.Holds(job) {
		return domain.WrapError(domain.ErrJobSuperseded, "record job failure", errors.New(failure.Lease.JobID))
	}
	s.failures = append(s.failures, failure)

	message := failure.ErrorMessage
	job.Status = failure.Status
	job.AttemptCount = failure.AttemptCount
	job.LastErrorMessage = &message
	job.NextAttemptAt = failure.NextAttemptAt
	job.LockedUntil = nil
	job.UpdatedAt = now
	s.jobs[job.ID] = job

	expense := s.expenses[failure.ExpenseID]
	expense.ProcessingStatus = failure.Status
	expense.UpdatedAt = now
	s.expenses[expense.ID] = expense
	return nil
}

func (s *memoryStore) Create(_ context.Context, expense *domain.Expense) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.put(*expense, nil)
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expense, ok := s.expenses[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrExpenseNotFound, "get expense", errors.New(id))
	}
	return &expense, nil
}

func (s *memoryStore) List(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Expense
	for _, expense := range s.expenses {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, expense.ProcessingStatus) {
			continue
		}
		if slices.Contains(filter.ExcludeStatuses, expense.ProcessingStatus) {
			continue
		}
		if filter.Source != "" && expense.Source != filter.Source {
			continue
		}
		if filter.RequireAmount && expense.Amount == nil {
			continue
		}
		if filter.From != nil && (expense.Date == nil || expense.Date.Before(*filter.From)) {
			continue
		}
		if filter.To != nil && (expense.Date == nil || expense.Date.After(*filter.To)) {
			continue
		}
		out = append(out, expense)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, id string, patch domain.ExpensePatch, now time.Time) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expense, ok := s.expenses[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrExpenseNotFound, "update expense", errors.New(id))
	}
	expense.Amount = cmp.Or(patch.Amount, expense.Amount)
	expense.Merchant = cmp.Or(patch.Merchant, expense.Merchant)
	expense.Category = cmp.Or(patch.Category, expense.Category)
	expense.Date = cmp.Or(patch.Date, expense.Date)
	expense.Notes = cmp.Or(patch.Notes, expense.Notes)
	if patch.Currency != nil {
		expense.Currency = *patch.Currency
	}
	if patch.Verifies() {
		expense.IsUserVerified = true
		expense.ProcessingStatus = domain.StatusVerified
		for jobID, job := range s.jobs {
			if job.ExpenseID == id {
				job.Status = domain.StatusVerified
				job.LockedUntil = nil
				job.UpdatedAt = now
				s.jobs[jobID] = job
			}
		}
	}
	expense.UpdatedAt = now
	s.expenses[id] = expense
	return &expense, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return domain.WrapError(domain.ErrExpenseNotFound, "delete expense", errors.New(id))
	}
	delete(s.expenses, id)
	for jobID, job := range s.jobs {
		if job.ExpenseID == id {
			delete(s.jobs, jobID)
		}
	}
	return nil
}
