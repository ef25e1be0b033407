package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

type ingestReceiptRequest struct {
	ObjectKey string `json:"object_key" validate:"required,max=1024"`
}

type ingestVoiceRequest struct {
	Transcript string `json:"transcript" validate:"required,max=4000"`
}

type intakeResponse struct {
	ExpenseID        string                  `json:"expense_id"`
	ProcessingStatus domain.ProcessingStatus `json:"processing_status"`
}

type createExpenseRequest struct {
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
	Currency string           `json:"currency" validate:"omitempty,len=3,alpha"`
	Merchant *string          `json:"merchant" validate:"omitempty,max=255"`
	Category *string          `json:"category" validate:"omitempty,max=100"`
	Date     *types.Date      `json:"date" validate:"required"`
	Notes    *string          `json:"notes" validate:"omitempty,max=1000"`
}

func (r createExpenseRequest) toInput() domain.ManualExpenseInput {
	return domain.ManualExpenseInput{
		Amount:   *r.Amount,
		Date:     r.Date.Time,
		Currency: r.Currency,
		Merchant: r.Merchant,
		Category: r.Category,
		Notes:    r.Notes,
	}
}

type updateExpenseRequest struct {
	Amount         *decimal.Decimal `json:"amount"`
	Currency       *string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Merchant       *string          `json:"merchant" validate:"omitempty,max=255"`
	Category       *string          `json:"category" validate:"omitempty,max=100"`
	Date           *types.Date      `json:"date"`
	Notes          *string          `json:"notes" validate:"omitempty,max=1000"`
	IsUserVerified *bool            `json:"is_user_verified"`
}

func (r updateExpenseRequest) toPatch() domain.ExpensePatch {
	patch := domain.ExpensePatch{
		Amount:         r.Amount,
		Currency:       r.Currency,
		Merchant:       r.Merchant,
		Category:       r.Category,
		Notes:          r.Notes,
		IsUserVerified: r.IsUserVerified,
	}
	if r.Date != nil {
		date := r.Date.Time
		patch.Date = &date
	}
	return patch
}

type deviceTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

// expenseResponse renders money with two decimals and confidence with three,
// both as strings, so clients never see float rounding.
type expenseResponse struct {
	ID               string                  `json:"id"`
	Source           domain.ExpenseSource    `json:"source"`
	ProcessingStatus domain.ProcessingStatus `json:"processing_status"`
	Amount           *string                 `json:"amount"`
	Currency         string                  `json:"currency"`
	Merchant         *string                 `json:"merchant"`
	Category         *string                 `json:"category"`
	Date             *types.Date             `json:"date"`
	Notes            *string                 `json:"notes"`
	ReceiptURL       *string                 `json:"receipt_url"`
	RawInput         domain.RawInput         `json:"raw_input"`
	Confidence       *string                 `json:"confidence"`
	IsUserVerified   bool                    `json:"is_user_verified"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func newExpenseResponse(expense domain.Expense) expenseResponse {
	resp := expenseResponse{
		ID:               expense.ID,
		Source:           expense.Source,
		ProcessingStatus: expense.ProcessingStatus,
		Currency:         expense.Currency,
		Merchant:         expense.Merchant,
		Category:         expense.Category,
		Notes:            expense.Notes,
		ReceiptURL:       expense.ReceiptURL,
		RawInput:         expense.RawInput,
		IsUserVerified:   expense.IsUserVerified,
		CreatedAt:        expense.CreatedAt,
		UpdatedAt:        expense.UpdatedAt,
	}
	if expense.Amount != nil {
		resp.Amount = domain.StringPtr(expense.Amount.StringFixed(2))
	}
	if expense.Confidence != nil {
		resp.Confidence = domain.StringPtr(expense.Confidence.StringFixed(3))
	}
	if expense.Date != nil {
		resp.Date = &types.Date{Time: *expense.Date}
	}
	return resp
}

type categoryTotalResponse struct {
	Category *string     `json:"category"`
	Total    json.Number `json:"total"`
	Count    int         `json:"count"`
}

type monthlyTotalResponse struct {
	Month string      `json:"month"`
	Total json.Number `json:"total"`
	Count int         `json:"count"`
}

type analyticsResponse struct {
	From       types.Date              `json:"from"`
	To         types.Date              `json:"to"`
	Total      json.Number             `json:"total"`
	Categories []categoryTotalResponse `json:"categories"`
	Monthly    []monthlyTotalResponse  `json:"monthly"`
}

func newAnalyticsResponse(summary domain.AnalyticsSummary) analyticsResponse {
	resp := analyticsResponse{
		From:       types.Date{Time: summary.From},
		To:         types.Date{Time: summary.To},
		Total:      money(summary.Total),
		Categories: make([]categoryTotalResponse, 0, len(summary.Categories)),
		Monthly:    make([]monthlyTotalResponse, 0, len(summary.Monthly)),
	}
	for _, c := range summary.Categories {
		resp.Categories = append(resp.Categories, categoryTotalResponse{Category: c.Category, Total: money(c.Total), Count: c.Count})
	}
	for _, m := range summary.Monthly {
		resp.Monthly = append(resp.Monthly, monthlyTotalResponse{Month: m.Month, Total: money(m.Total), Count: m.Count})
	}
	return resp
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest reports the first failed rule as an invalid input error.
func validateRequest(v *validator.Validate, op string, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return domain.WrapError(domain.ErrInvalidInput, op, err)
}
