package extraction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

// ParseReceipt extracts candidate fields from receipt OCR text. Each field is
// resolved independently; fields that no rule detects stay nil. Category is
// left to the caller.
func ParseReceipt(text string) domain.ExtractedFields {
	fields := domain.ExtractedFields{
		Currency:  domain.DefaultCurrency,
		LineItems: receiptLineItems(text),
	}
	if amount, _, ok := FirstMatch(ReceiptAmountRules, text); ok {
		fields.Amount = decimalPtr(amount)
	}
	if merchant, ok := receiptMerchant(text); ok {
		fields.Merchant = &merchant
	}
	if date, _, ok := FirstMatch(DateRules, text); ok {
		fields.Date = timePtr(date)
	}
	return fields
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func timePtr(t time.Time) *time.Time {
	return &t
}
