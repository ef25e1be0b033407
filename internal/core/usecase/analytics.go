package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

const defaultAnalyticsWindow = 30 * 24 * time.Hour

var unsettledStatuses = []domain.ProcessingStatus{
	domain.StatusUploaded,
	domain.StatusProcessing,
	domain.StatusFailed,
}

type AnalyticsUseCase struct {
	repo ports.ExpenseRepository
	now  func() time.Time
}

func NewAnalyticsUseCase(repo ports.ExpenseRepository) *AnalyticsUseCase {
	return &AnalyticsUseCase{repo: repo, now: time.Now}
}

// Summary totals settled expenses dated within [from, to]. A nil to means
// today and a nil from means thirty days before to.
func (uc *AnalyticsUseCase) Summary(ctx context.Context, from, to *time.Time) (domain.AnalyticsSummary, error) {
	end := domain.NormalizeDate(uc.now())
	if to != nil {
		end = domain.NormalizeDate(*to)
	}
	start := end.Add(-defaultAnalyticsWindow)
	if from != nil {
		start = domain.NormalizeDate(*from)
	}
	if start.After(end) {
		return domain.AnalyticsSummary{}, domain.WrapError(domain.ErrInvalidInput, "analytics summary", errors.New("from must not be after to"))
	}

	expenses, err := uc.repo.List(ctx, domain.ExpenseFilter{
		ExcludeStatuses: unsettledStatuses,
		From:            &start,
		To:              &end,
		RequireAmount:   true,
	})
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("load expenses for summary: %w", err)
	}

	summary := summarize(expenses)
	summary.From = start
	summary.To = end
	return summary, nil
}

func summarize(expenses []domain.Expense) domain.AnalyticsSummary {
	byCategory := make(map[string]*domain.CategoryTotal)
	byMonth := make(map[string]*domain.MonthlyTotal)
	total := decimal.Zero

	for _, expense := range expenses {
		if expense.Amount == nil || expense.ProcessingStatus.InFlight() {
			continue
		}
		amount := *expense.Amount
		total = total.Add(amount)

		categoryKey := ""
		if expense.Category != nil {
			categoryKey = "=" + *expense.Category
		}
		ct, ok := byCategory[categoryKey]
		if !ok {
			ct = &domain.CategoryTotal{Category: expense.Category, Total: decimal.Zero}
			byCategory[categoryKey] = ct
		}
		ct.Total = ct.Total.Add(amount)
		ct.Count++

		if expense.Date == nil {
			continue
		}
		month := expense.Date.UTC().Format("2006-01")
		mt, ok := byMonth[month]
		if !ok {
			mt = &domain.MonthlyTotal{Month: month, Total: decimal.Zero}
			byMonth[month] = mt
		}
		mt.Total = mt.Total.Add(amount)
		mt.Count++
	}

	summary := domain.AnalyticsSummary{
		Total:      total,
		Categories: make([]domain.CategoryTotal, 0, len(byCategory)),
		Monthly:    make([]domain.MonthlyTotal, 0, len(byMonth)),
	}
	for _, ct := range byCategory {
		summary.Categories = append(summary.Categories, *ct)
	}
	for _, mt := range byMonth {
		summary.Monthly = append(summary.Monthly, *mt)
	}

	slices.SortFunc(summary.Categories, func(a, b domain.CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(categoryName(a.Category), categoryName(b.Category))
	})
	slices.SortFunc(summary.Monthly, func(a, b domain.MonthlyTotal) int {
		return cmp.Compare(a.Month, b.Month)
	})
	return summary
}

func categoryName(category *string) string {
	if category == nil {
		return ""
	}
	return *category
}
