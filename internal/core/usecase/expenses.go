package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ExpenseUseCase serves expense reads and user edits.
type ExpenseUseCase struct {
	repo ports.ExpenseRepository
	now  func() time.Time
}

func NewExpenseUseCase(repo ports.ExpenseRepository) *ExpenseUseCase {
	return &ExpenseUseCase{repo: repo, now: time.Now}
}

func (uc *ExpenseUseCase) List(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list expenses", errors.New("from must not be after to"))
	}
	expenses, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func (uc *ExpenseUseCase) Get(ctx context.Context, id string) (*domain.Expense, error) {
	expense, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return expense, nil
}

// CreateManual stores a user-entered expense. It skips extraction and is
// verified from the start.
func (uc *ExpenseUseCase) CreateManual(ctx context.Context, input domain.ManualExpenseInput) (*domain.Expense, error) {
	if !input.Amount.IsPositive() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create expense", errors.New("amount must be greater than zero"))
	}
	if input.Date.IsZero() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create expense", errors.New("date is required"))
	}
	currency, err := normalizeCurrency(input.Currency)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create expense", err)
	}

	now := uc.now().UTC()
	amount := input.Amount.Round(2)
	confidence := decimal.NewFromInt(1)
	date := domain.NormalizeDate(input.Date)
	expense := &domain.Expense{
		ID:               uuid.NewString(),
		Source:           domain.SourceManual,
		ProcessingStatus: domain.StatusVerified,
		Amount:           &amount,
		Currency:         currency,
		Merchant:         input.Merchant,
		Category:         input.Category,
		Date:             &date,
		Notes:            input.Notes,
		Confidence:       &confidence,
		IsUserVerified:   true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.repo.Create(ctx, expense); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	return expense, nil
}

// Update applies a partial edit. Setting IsUserVerified moves both the
// expense and its job, if any, to verified.
func (uc *ExpenseUseCase) Update(ctx context.Context, id string, patch domain.ExpensePatch) (*domain.Expense, error) {
	if patch.Empty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update expense", errors.New("no fields to update"))
	}
	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "update expense", errors.New("amount must be greater than zero"))
		}
		rounded := patch.Amount.Round(2)
		patch.Amount = &rounded
	}
	if patch.Currency != nil {
		currency, err := normalizeCurrency(*patch.Currency)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "update expense", err)
		}
		patch.Currency = &currency
	}
	if patch.Date != nil {
		date := domain.NormalizeDate(*patch.Date)
		patch.Date = &date
	}

	expense, err := uc.repo.Update(ctx, id, patch, uc.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	return expense, nil
}

func (uc *ExpenseUseCase) Delete(ctx context.Context, id string) error {
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return domain.DefaultCurrency, nil
	}
	if !currencyPattern.MatchString(currency) {
		return "", fmt.Errorf("currency %q is not an ISO 4217 code", raw)
	}
	return currency, nil
}
