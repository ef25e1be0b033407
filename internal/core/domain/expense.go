package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExpenseSource string

const (
	SourceManual  ExpenseSource = "manual"
	SourceVoice   ExpenseSource = "voice"
	SourceReceipt ExpenseSource = "receipt"
)

type ProcessingStatus string

const (
	StatusUploaded     ProcessingStatus = "uploaded"
	StatusProcessing   ProcessingStatus = "processing"
	StatusAwaitingUser ProcessingStatus = "awaiting_user"
	StatusVerified     ProcessingStatus = "verified"
	StatusFailed       ProcessingStatus = "failed"
)

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusAwaitingUser, StatusVerified, StatusFailed:
		return true
	default:
		return false
	}
}

// InFlight reports statuses that analytics and exports treat as unsettled.
func (s ProcessingStatus) InFlight() bool {
	return s == StatusUploaded || s == StatusProcessing || s == StatusFailed
}

const (
	DefaultCurrency    = "CAD"
	DefaultMaxAttempts = 3
	DateLayout         = "2006-01-02"
)

type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// RawInput is the source material kept alongside an expense.
type RawInput struct {
	Transcript string     `json:"transcript,omitempty"`
	OCRText    string     `json:"ocr_text,omitempty"`
	LineItems  []LineItem `json:"line_items,omitempty"`
}

type Expense struct {
	ID               string           `json:"id"`
	Source           ExpenseSource    `json:"source"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	Amount           *decimal.Decimal `json:"amount"`
	Currency         string           `json:"currency"`
	Merchant         *string          `json:"merchant"`
	Category         *string          `json:"category"`
	Date             *time.Time       `json:"date"`
	Notes            *string          `json:"notes"`
	ReceiptURL       *string          `json:"receipt_url"`
	RawInput         RawInput         `json:"raw_input"`
	Confidence       *decimal.Decimal `json:"confidence"`
	IsUserVerified   bool             `json:"is_user_verified"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ManualExpenseInput carries a user-entered expense that skips extraction.
type ManualExpenseInput struct {
	Amount   decimal.Decimal
	Date     time.Time
	Currency string
	Merchant *string
	Category *string
	Notes    *string
}

// ExpensePatch holds a partial update. Nil fields are left untouched.
type ExpensePatch struct {
	Amount         *decimal.Decimal
	Currency       *string
	Merchant       *string
	Category       *string
	Date           *time.Time
	Notes          *string
	IsUserVerified *bool
}

func (p ExpensePatch) Empty() bool {
	return p.Amount == nil && p.Currency == nil && p.Merchant == nil && p.Category == nil &&
		p.Date == nil && p.Notes == nil && p.IsUserVerified == nil
}

// Verifies reports whether the patch moves the expense to verified.
func (p ExpensePatch) Verifies() bool {
	return p.IsUserVerified != nil && *p.IsUserVerified
}

type ExpenseFilter struct {
	Statuses        []ProcessingStatus
	ExcludeStatuses []ProcessingStatus
	Source          ExpenseSource
	From            *time.Time
	To              *time.Time
	RequireAmount   bool
	Limit           int
}

// NormalizeDate truncates t to its UTC calendar date.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func StringPtr(s string) *string {
	return &s
}
