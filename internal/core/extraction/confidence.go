package extraction

import (
	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

var (
	amountWeight   = decimal.RequireFromString("0.5")
	dateWeight     = decimal.RequireFromString("0.3")
	merchantWeight = decimal.RequireFromString("0.2")
)

// Score weighs how much of an expense was extracted. Amount matters most,
// then date, then merchant.
func Score(fields domain.ExtractedFields) decimal.Decimal {
	score := decimal.Zero
	if fields.Amount != nil {
		score = score.Add(amountWeight)
	}
	if fields.Date != nil {
		score = score.Add(dateWeight)
	}
	if fields.Merchant != nil {
		score = score.Add(merchantWeight)
	}
	return score.Round(3)
}
