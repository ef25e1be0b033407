package extraction_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/extraction"
)

var _ = Describe("Score", func() {
	amount := decimal.RequireFromString("12.50")
	date := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	merchant := "Metro"

	DescribeTable("weighs the extracted fields",
		func(fields domain.ExtractedFields, expected string) {
			Expect(extraction.Score(fields).StringFixed(3)).To(Equal(expected))
		},
		Entry("nothing", domain.ExtractedFields{}, "0.000"),
		Entry("merchant only", domain.ExtractedFields{Merchant: &merchant}, "0.200"),
		Entry("date only", domain.ExtractedFields{Date: &date}, "0.300"),
		Entry("amount only", domain.ExtractedFields{Amount: &amount}, "0.500"),
		Entry("amount and merchant", domain.ExtractedFields{Amount: &amount, Merchant: &merchant}, "0.700"),
		Entry("amount and date", domain.ExtractedFields{Amount: &amount, Date: &date}, "0.800"),
		Entry("everything", domain.ExtractedFields{Amount: &amount, Date: &date, Merchant: &merchant}, "1.000"),
	)

	It("is deterministic", func() {
		fields := domain.ExtractedFields{Amount: &amount, Date: &date}
		Expect(extraction.Score(fields).Equal(extraction.Score(fields))).To(BeTrue())
	})
})
