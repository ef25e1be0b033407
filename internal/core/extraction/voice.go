package extraction

import (
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

// VoiceParser extracts candidate fields from a spoken transcript.
type VoiceParser struct {
	categories *CategoryMatcher
	now        func() time.Time
}

func NewVoiceParser(categories *CategoryMatcher, now func() time.Time) *VoiceParser {
	if categories == nil {
		categories = DefaultCategoryMatcher()
	}
	if now == nil {
		now = time.Now
	}
	return &VoiceParser{categories: categories, now: now}
}

func (p *VoiceParser) Parse(transcript string) domain.ExtractedFields {
	fields := domain.ExtractedFields{
		Currency:  domain.DefaultCurrency,
		LineItems: []domain.LineItem{},
	}
	if amount, _, ok := FirstMatch(VoiceAmountRules, transcript); ok {
		fields.Amount = decimalPtr(amount)
	}
	if merchant, ok := voiceMerchant(transcript); ok {
		fields.Merchant = &merchant
	}

	dateRules := append(relativeDateRules(p.now()), DateRules...)
	if date, _, ok := FirstMatch(dateRules, transcript); ok {
		fields.Date = timePtr(date)
	}
	fields.Category = p.categories.Suggest(fields.Merchant, transcript)
	return fields
}
