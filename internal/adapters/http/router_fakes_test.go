package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/config"
	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

type ingestorFake struct {
	result domain.IntakeResult
	err    error
	got    []domain.IngestionRequest
}

func (f *ingestorFake) Submit(_ context.Context, req domain.IngestionRequest) (domain.IntakeResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return domain.IntakeResult{}, f.err
	}
	return f.result, nil
}

type expensesFake struct {
	expense   *domain.Expense
	list      []domain.Expense
	err       error
	gotFilter domain.ExpenseFilter
	gotInput  domain.ManualExpenseInput
	gotPatch  domain.ExpensePatch
	gotID     string
}

func (f *expensesFake) List(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	f.gotFilter = filter
	return f.list, f.err
}

func (f *expensesFake) Get(_ context.Context, id string) (*domain.Expense, error) {
	f.gotID = id
	return f.expense, f.err
}

func (f *expensesFake) CreateManual(_ context.Context, input domain.ManualExpenseInput) (*domain.Expense, error) {
	f.gotInput = input
	return f.expense, f.err
}

func (f *expensesFake) Update(_ context.Context, id string, patch domain.ExpensePatch) (*domain.Expense, error) {
	f.gotID = id
	f.gotPatch = patch
	return f.expense, f.err
}

func (f *expensesFake) Delete(_ context.Context, id string) error {
	f.gotID = id
	return f.err
}

type analyticsFake struct {
	summary  domain.AnalyticsSummary
	err      error
	gotFrom  *time.Time
	gotTo    *time.Time
	gotCalls int
}

func (f *analyticsFake) Summary(_ context.Context, from, to *time.Time) (domain.AnalyticsSummary, error) {
	f.gotCalls++
	f.gotFrom, f.gotTo = from, to
	return f.summary, f.err
}

type devicesFake struct {
	token string
	err   error
}

func (f *devicesFake) RegisterToken(_ context.Context, token string) error {
	f.token = token
	return f.err
}

type exporterFake struct {
	got []domain.Expense
}

func (f *exporterFake) ContentType() string { return "application/test-sheet" }

func (f *exporterFake) Export(w io.Writer, expenses []domain.Expense) error {
	f.got = expenses
	_, err := io.WriteString(w, "sheet")
	return err
}

type routerFakes struct {
	ingestor  *ingestorFake
	expenses  *expensesFake
	analytics *analyticsFake
	devices   *devicesFake
	exporter  *exporterFake
}

func newRouterFakes() *routerFakes {
	return &routerFakes{
		ingestor:  &ingestorFake{},
		expenses:  &expensesFake{},
		analytics: &analyticsFake{},
		devices:   &devicesFake{},
		exporter:  &exporterFake{},
	}
}

func (f *routerFakes) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, f.ingestor, f.expenses, f.analytics, f.devices, f.exporter).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newRouterFakes().handler(cfg)
}

func sampleExpense() *domain.Expense {
	amount := decimal.RequireFromString("42.5")
	confidence := decimal.RequireFromString("0.9")
	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Expense{
		ID:               "5b0c7c5e-7a51-4a63-9d51-2b1d6f1b8e10",
		Source:           domain.SourceReceipt,
		ProcessingStatus: domain.StatusAwaitingUser,
		Amount:           &amount,
		Currency:         domain.DefaultCurrency,
		Merchant:         domain.StringPtr("Tim Hortons"),
		Category:         domain.StringPtr("Coffee"),
		Date:             &date,
		Confidence:       &confidence,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}
