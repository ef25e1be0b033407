package mcpadapter

import (
	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

type expenseView struct {
	ID               string                  `json:"id"`
	Source           domain.ExpenseSource    `json:"source"`
	ProcessingStatus domain.ProcessingStatus `json:"processing_status"`
	Amount           *string                 `json:"amount"`
	Currency         string                  `json:"currency"`
	Merchant         *string                 `json:"merchant"`
	Category         *string                 `json:"category"`
	Date             *string                 `json:"date"`
	Notes            *string                 `json:"notes"`
	Confidence       *string                 `json:"confidence"`
	IsUserVerified   bool                    `json:"is_user_verified"`
}

func newExpenseView(expense domain.Expense) expenseView {
	view := expenseView{
		ID:               expense.ID,
		Source:           expense.Source,
		ProcessingStatus: expense.ProcessingStatus,
		Currency:         expense.Currency,
		Merchant:         expense.Merchant,
		Category:         expense.Category,
		Notes:            expense.Notes,
		IsUserVerified:   expense.IsUserVerified,
	}
	if expense.Amount != nil {
		view.Amount = domain.StringPtr(expense.Amount.StringFixed(2))
	}
	if expense.Confidence != nil {
		view.Confidence = domain.StringPtr(expense.Confidence.StringFixed(3))
	}
	if expense.Date != nil {
		view.Date = domain.StringPtr(expense.Date.Format(domain.DateLayout))
	}
	return view
}

type categoryView struct {
	Category string `json:"category"`
	Total    string `json:"total"`
	Count    int    `json:"count"`
}

type monthView struct {
	Month string `json:"month"`
	Total string `json:"total"`
	Count int    `json:"count"`
}

type summaryView struct {
	From       string         `json:"from"`
	To         string         `json:"to"`
	Total      string         `json:"total"`
	Categories []categoryView `json:"categories"`
	Monthly    []monthView    `json:"monthly"`
}

func newSummaryView(summary domain.AnalyticsSummary) summaryView {
	view := summaryView{
		From:       summary.From.Format(domain.DateLayout),
		To:         summary.To.Format(domain.DateLayout),
		Total:      summary.Total.StringFixed(2),
		Categories: make([]categoryView, 0, len(summary.Categories)),
		Monthly:    make([]monthView, 0, len(summary.Monthly)),
	}
	for _, c := range summary.Categories {
		name := "Uncategorized"
		if c.Category != nil {
			name = *c.Category
		}
		view.Categories = append(view.Categories, categoryView{Category: name, Total: c.Total.StringFixed(2), Count: c.Count})
	}
	for _, m := range summary.Monthly {
		view.Monthly = append(view.Monthly, monthView{Month: m.Month, Total: m.Total.StringFixed(2), Count: m.Count})
	}
	return view
}
