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

func (s *Store) Create(_ context.Context, expense *domain.Expense) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putExpense(tx, expense)
	})
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Expense, error) {
	var expense *domain.Expense
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		expense, err = getExpense(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// List scans every expense; the embedded store is meant for a single user's
// data set.
func (s *Store) List(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	expenses := make([]domain.Expense, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(expensesBucket).ForEach(func(_, v []byte) error {
			var expense domain.Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if matches(filter, expense) {
				expenses = append(expenses, expense)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(expenses) > filter.Limit {
		expenses = expenses[:filter.Limit]
	}
	return expenses, nil
}

func (s *Store) Update(_ context.Context, id string, patch domain.ExpensePatch, now time.Time) (*domain.Expense, error) {
	var updated *domain.Expense
	err := s.db.Update(func(tx *bbolt.Tx) error {
		expense, err := getExpense(tx, id)
		if err != nil {
			return err
		}
		applyPatch(expense, patch)
		expense.UpdatedAt = now

		if patch.Verifies() {
			if jobID := tx.Bucket(jobByExpenseIndex).Get([]byte(id)); jobID != nil {
				job, err := getJob(tx, string(jobID))
				if err != nil {
					return err
				}
				job.Status = domain.StatusVerified
				job.LockedUntil = nil
				job.UpdatedAt = now
				if err := putJob(tx, job); err != nil {
					return err
				}
			}
		}
		if err := putExpense(tx, expense); err != nil {
			return err
		}
		updated = expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the expense together with its job and index entries.
func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getExpense(tx, id); err != nil {
			return err
		}
		index := tx.Bucket(jobByExpenseIndex)
		if jobID := index.Get([]byte(id)); jobID != nil {
			job, err := getJob(tx, string(jobID))
			if err == nil {
				if err := tx.Bucket(idempotencyBucket).Delete([]byte(job.IdempotencyKey)); err != nil {
					return err
				}
			}
			if err := tx.Bucket(jobsBucket).Delete(jobID); err != nil {
				return err
			}
			if err := index.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return tx.Bucket(expensesBucket).Delete([]byte(id))
	})
}

func applyPatch(expense *domain.Expense, patch domain.ExpensePatch) {
	if patch.Amount != nil {
		expense.Amount = patch.Amount
	}
	if patch.Currency != nil {
		expense.Currency = *patch.Currency
	}
	if patch.Merchant != nil {
		expense.Merchant = patch.Merchant
	}
	if patch.Category != nil {
		expense.Category = patch.Category
	}
	if patch.Date != nil {
		expense.Date = patch.Date
	}
	if patch.Notes != nil {
		expense.Notes = patch.Notes
	}
	if patch.Verifies() {
		expense.IsUserVerified = true
		expense.ProcessingStatus = domain.StatusVerified
	}
}

func matches(filter domain.ExpenseFilter, expense domain.Expense) bool {
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, expense.ProcessingStatus) {
		return false
	}
	if slices.Contains(filter.ExcludeStatuses, expense.ProcessingStatus) {
		return false
	}
	if filter.Source != "" && expense.Source != filter.Source {
		return false
	}
	if filter.RequireAmount && expense.Amount == nil {
		return false
	}
	if filter.From != nil && (expense.Date == nil || expense.Date.Before(*filter.From)) {
		return false
	}
	if filter.To != nil && (expense.Date == nil || expense.Date.After(*filter.To)) {
		return false
	}
	return true
}
