package extraction_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/extraction"
)

var _ = Describe("ParseReceipt", func() {
	var (
		text   string
		fields domain.ExtractedFields
	)

	JustBeforeEach(func() {
		fields = extraction.ParseReceipt(text)
	})

	Describe("amount", func() {
		DescribeTable("resolves the total",
			func(input, expected string) {
				fields := extraction.ParseReceipt(input)
				Expect(fields.Amount).NotTo(BeNil())
				Expect(fields.Amount.StringFixed(2)).To(Equal(expected))
			},
			Entry("labelled total after subtotal and tax", "Subtotal  $8.00\nHST  $1.04\nTotal  $9.04", "9.04"),
			Entry("last labelled total wins", "Total $5.00\nGrand Total $12.50", "12.50"),
			Entry("largest figure without a label", "Item A $3.50\nItem B $7.25", "7.25"),
			Entry("thousands separators", "Amount $1,234.56", "1234.56"),
			Entry("amount due label", "Amount Due: $42.00", "42.00"),
			Entry("balance due label", "Coffee  4.25\nBalance Due 4.25", "4.25"),
		)

		When("the text has no monetary value", func() {
			BeforeEach(func() {
				text = "Thank you for shopping"
			})

			It("leaves the amount nil", func() {
				Expect(fields.Amount).To(BeNil())
			})
		})

		When("the labelled total is zero", func() {
			BeforeEach(func() {
				text = "Item  $4.00\nTotal $0.00"
			})

			It("falls back to the largest figure", func() {
				Expect(fields.Amount).NotTo(BeNil())
				Expect(fields.Amount.StringFixed(2)).To(Equal("4.00"))
			})
		})
	})

	Describe("merchant", func() {
		DescribeTable("picks the first meaningful header line",
			func(input string, expected *string) {
				fields := extraction.ParseReceipt(input)
				if expected == nil {
					Expect(fields.Merchant).To(BeNil())
					return
				}
				Expect(fields.Merchant).NotTo(BeNil())
				Expect(*fields.Merchant).To(Equal(*expected))
			},
			Entry("name above the address", "Tim Hortons\n100 Main St\nToronto ON\nTotal $5.00", domain.StringPtr("Tim Hortons")),
			Entry("skips a phone number", "(416) 555-1234\nMetro Grocery\nTotal $20.00", domain.StringPtr("Metro Grocery")),
			Entry("skips boilerplate", "Receipt\nShell Gas Station\nTotal $40.00", domain.StringPtr("Shell Gas Station")),
			Entry("skips a street address", "200 Queen St W\nCafe Neon", domain.StringPtr("Cafe Neon")),
			Entry("nothing usable", "12345\n(800) 555-0000\nTotal $10.00", nil),
		)

		When("the merchant is below the sixth line", func() {
			BeforeEach(func() {
				text = "1\n22\n333\n4444\n55555\n666666\nLate Merchant"
			})

			It("does not look that far", func() {
				Expect(fields.Merchant).To(BeNil())
			})
		})
	})

	Describe("date", func() {
		DescribeTable("normalizes to YYYY-MM-DD",
			func(input, expected string) {
				fields := extraction.ParseReceipt(input)
				Expect(fields.Date).NotTo(BeNil())
				Expect(fields.Date.Format(domain.DateLayout)).To(Equal(expected))
			},
			Entry("iso", "Date: 2026-02-03", "2026-02-03"),
			Entry("iso with slashes and no padding", "2026/2/3 14:02", "2026-02-03"),
			Entry("month day year", "02/14/2026", "2026-02-14"),
			Entry("month name first", "Feb 3 2026", "2026-02-03"),
			Entry("month name with comma", "January 15, 2026", "2026-01-15"),
			Entry("day first", "15 Jan 2026", "2026-01-15"),
		)

		When("the printed date does not exist", func() {
			BeforeEach(func() {
				text = "02/30/2026"
			})

			It("leaves the date nil", func() {
				Expect(fields.Date).To(BeNil())
			})
		})
	})

	Describe("line items", func() {
		BeforeEach(func() {
			text = "Metro\nMilk 2%         $3.49\nBread  2.99\nSubtotal  $6.48\nHST  $0.00\nTotal  $6.48\nDebit  $6.48"
		})

		It("keeps only priced description lines", func() {
			Expect(fields.LineItems).To(HaveLen(2))
			Expect(fields.LineItems[0].Description).To(Equal("Milk 2%"))
			Expect(fields.LineItems[0].Amount.StringFixed(2)).To(Equal("3.49"))
			Expect(fields.LineItems[1].Description).To(Equal("Bread"))
		})

		It("always reports CAD", func() {
			Expect(fields.Currency).To(Equal("CAD"))
		})
	})
})
