// Package mcpadapter exposes expense intake and reads as MCP tools so an
// assistant can log spending from a conversation.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

const serverName = "expense-tracker"

type Tools struct {
	ingestor  ports.ExpenseIngestor
	expenses  ports.ExpenseService
	analytics ports.AnalyticsService
}

func NewTools(ingestor ports.ExpenseIngestor, expenses ports.ExpenseService, analytics ports.AnalyticsService) *Tools {
	return &Tools{ingestor: ingestor, expenses: expenses, analytics: analytics}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("submit_voice_expense",
		mcp.WithDescription("Record an expense from a spoken or typed sentence such as \"spent $23 at Metro yesterday\". The expense is parsed asynchronously and waits for the user to verify it."),
		mcp.WithString("transcript", mcp.Required(), mcp.Description("What the user said about the expense.")),
		mcp.WithString("idempotency_key", mcp.Description("UUID that makes retries safe. Generated when omitted.")),
	), tools.SubmitVoiceExpense)

	s.AddTool(mcp.NewTool("get_expense",
		mcp.WithDescription("Fetch one expense with its processing status and extracted fields."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Expense id returned by submit_voice_expense.")),
	), tools.GetExpense)

	s.AddTool(mcp.NewTool("expense_summary",
		mcp.WithDescription("Totals of settled expenses by category and month. Defaults to the last 30 days."),
		mcp.WithString("from", mcp.Description("First day, YYYY-MM-DD.")),
		mcp.WithString("to", mcp.Description("Last day, YYYY-MM-DD.")),
	), tools.ExpenseSummary)

	return s
}

func (t *Tools) SubmitVoiceExpense(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transcript, err := req.RequireString("transcript")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key := strings.TrimSpace(req.GetString("idempotency_key", ""))
	if key == "" {
		key = uuid.NewString()
	} else if parsed, err := uuid.Parse(key); err != nil {
		return mcp.NewToolResultError("idempotency_key must be a valid UUID"), nil
	} else {
		key = parsed.String()
	}

	result, err := t.ingestor.Submit(ctx, domain.IngestionRequest{
		Source:         domain.SourceVoice,
		Transcript:     transcript,
		IdempotencyKey: key,
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"expense_id":        result.ExpenseID,
		"processing_status": result.ProcessingStatus,
		"idempotency_key":   key,
	})
}

func (t *Tools) GetExpense(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expense, err := t.expenses.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(newExpenseView(*expense))
}

func (t *Tools) ExpenseSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := optionalDate(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := optionalDate(req, "to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary, err := t.analytics.Summary(ctx, from, to)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(newSummaryView(summary))
}

func optionalDate(req mcp.CallToolRequest, name string) (*time.Time, error) {
	raw := strings.TrimSpace(req.GetString(name, ""))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", name)
	}
	return &parsed, nil
}

// toolError reports caller mistakes verbatim and hides internal failures.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(domain.RootMessage(err))
	case domain.IsKind(err, domain.ErrExpenseNotFound):
		return mcp.NewToolResultError(domain.ErrExpenseNotFound.Error())
	case domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("service temporarily unavailable, try again")
	default:
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
