package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

type ingestorStub struct {
	got []domain.IngestionRequest
	err error
}

func (s *ingestorStub) Submit(_ context.Context, req domain.IngestionRequest) (domain.IntakeResult, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return domain.IntakeResult{}, s.err
	}
	return domain.IntakeResult{ExpenseID: "exp-1", ProcessingStatus: domain.StatusUploaded, Created: true}, nil
}

type expensesStub struct {
	expense *domain.Expense
	err     error
}

func (s *expensesStub) List(context.Context, domain.ExpenseFilter) ([]domain.Expense, error) {
	return nil, nil
}

func (s *expensesStub) Get(context.Context, string) (*domain.Expense, error) {
	return s.expense, s.err
}

func (s *expensesStub) CreateManual(context.Context, domain.ManualExpenseInput) (*domain.Expense, error) {
	return nil, nil
}

func (s *expensesStub) Update(context.Context, string, domain.ExpensePatch) (*domain.Expense, error) {
	return nil, nil
}

func (s *expensesStub) Delete(context.Context, string) error { return nil }

type analyticsStub struct {
	from, to *time.Time
}

func (s *analyticsStub) Summary(_ context.Context, from, to *time.Time) (domain.AnalyticsSummary, error) {
	s.from, s.to = from, to
	return domain.AnalyticsSummary{
		From:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		Total: decimal.RequireFromString("12.5"),
		Categories: []domain.CategoryTotal{
			{Category: nil, Total: decimal.RequireFromString("12.5"), Count: 1},
		},
	}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", res.Content[0])
		return ""
	}
}

func TestSubmitVoiceExpenseGeneratesKey(t *testing.T) {
	ingestor := &ingestorStub{}
	tools := NewTools(ingestor, &expensesStub{}, &analyticsStub{})

	res, err := tools.SubmitVoiceExpense(context.Background(), callRequest(map[string]any{"transcript": "spent $23 at Metro"}))
	if err != nil {
		t.Fatalf("SubmitVoiceExpense() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if len(ingestor.got) != 1 || ingestor.got[0].IdempotencyKey == "" {
		t.Fatalf("expected submission with generated key, got %+v", ingestor.got)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &payload); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if payload["expense_id"] != "exp-1" || payload["idempotency_key"] != ingestor.got[0].IdempotencyKey {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSubmitVoiceExpenseValidatesArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "missing transcript", args: map[string]any{}},
		{name: "bad key", args: map[string]any{"transcript": "coffee $4", "idempotency_key": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestor := &ingestorStub{}
			tools := NewTools(ingestor, &expensesStub{}, &analyticsStub{})

			res, err := tools.SubmitVoiceExpense(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("SubmitVoiceExpense() error = %v", err)
			}
			if !res.IsError {
				t.Fatalf("expected tool error")
			}
			if len(ingestor.got) != 0 {
				t.Fatalf("expected no submission")
			}
		})
	}
}

func TestGetExpenseHidesInternalErrors(t *testing.T) {
	tools := NewTools(&ingestorStub{}, &expensesStub{err: errors.New("dial tcp: refused")}, &analyticsStub{})

	res, err := tools.GetExpense(context.Background(), callRequest(map[string]any{"id": "exp-1"}))
	if err != nil {
		t.Fatalf("GetExpense() error = %v", err)
	}
	if !res.IsError || resultText(t, res) != "internal error" {
		t.Fatalf("expected generic tool error, got %+v", res)
	}
}

func TestGetExpenseFormatsMoney(t *testing.T) {
	amount := decimal.RequireFromString("23")
	tools := NewTools(&ingestorStub{}, &expensesStub{expense: &domain.Expense{
		ID:               "exp-1",
		Source:           domain.SourceVoice,
		ProcessingStatus: domain.StatusAwaitingUser,
		Amount:           &amount,
		Currency:         "CAD",
	}}, &analyticsStub{})

	res, err := tools.GetExpense(context.Background(), callRequest(map[string]any{"id": "exp-1"}))
	if err != nil {
		t.Fatalf("GetExpense() error = %v", err)
	}
	var view map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &view); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if view["amount"] != "23.00" || view["processing_status"] != "awaiting_user" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestExpenseSummaryParsesRange(t *testing.T) {
	analytics := &analyticsStub{}
	tools := NewTools(&ingestorStub{}, &expensesStub{}, analytics)

	res, err := tools.ExpenseSummary(context.Background(), callRequest(map[string]any{"from": "2026-01-01"}))
	if err != nil {
		t.Fatalf("ExpenseSummary() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if analytics.from == nil || analytics.from.Format(domain.DateLayout) != "2026-01-01" || analytics.to != nil {
		t.Fatalf("unexpected range: from=%v to=%v", analytics.from, analytics.to)
	}

	var view summaryView
	if err := json.Unmarshal([]byte(resultText(t, res)), &view); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if view.Total != "12.50" || view.Categories[0].Category != "Uncategorized" {
		t.Fatalf("unexpected summary: %+v", view)
	}

	res, err = tools.ExpenseSummary(context.Background(), callRequest(map[string]any{"to": "Jan 31"}))
	if err != nil {
		t.Fatalf("ExpenseSummary() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected malformed date to be rejected")
	}
}
