package extraction_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/extraction"
)

var _ = Describe("VoiceParser", func() {
	var parser *extraction.VoiceParser

	BeforeEach(func() {
		now := time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC)
		parser = extraction.NewVoiceParser(extraction.DefaultCategoryMatcher(), func() time.Time { return now })
	})

	Describe("amount", func() {
		DescribeTable("reads digits with a dollar sign or unit word",
			func(transcript string, expected *string) {
				fields := parser.Parse(transcript)
				if expected == nil {
					Expect(fields.Amount).To(BeNil())
					return
				}
				Expect(fields.Amount).NotTo(BeNil())
				Expect(fields.Amount.String()).To(Equal(*expected))
			},
			Entry("dollar sign", "spent $23 at Metro", domain.StringPtr("23")),
			Entry("dollar sign with cents", "paid $12.50 for coffee", domain.StringPtr("12.5")),
			Entry("spelled out number", "forty-five dollars at Shell", nil),
			Entry("dollars word", "45 dollars at Shell", domain.StringPtr("45")),
			Entry("bucks word", "10 bucks for parking", domain.StringPtr("10")),
		)
	})

	Describe("merchant", func() {
		DescribeTable("reads capitalized words after at or from",
			func(transcript string, expected *string) {
				fields := parser.Parse(transcript)
				if expected == nil {
					Expect(fields.Merchant).To(BeNil())
					return
				}
				Expect(fields.Merchant).NotTo(BeNil())
				Expect(*fields.Merchant).To(Equal(*expected))
			},
			Entry("single word", "spent $23 at Metro", domain.StringPtr("Metro")),
			Entry("two words after from", "$5 from Tim Hortons", domain.StringPtr("Tim Hortons")),
			Entry("end of transcript", "bought coffee at Second Cup", domain.StringPtr("Second Cup")),
			Entry("stops at a boundary word", "I spent 25 dollars at Starbucks today", domain.StringPtr("Starbucks")),
			Entry("stops at punctuation", "lunch at Pizza Pizza, 18 dollars", domain.StringPtr("Pizza Pizza")),
			Entry("keeps an abbreviation", "spent $23 at St. Lawrence Market today", domain.StringPtr("St. Lawrence Market")),
			Entry("sentence end is not an abbreviation", "spent $10 at Metro. Then coffee", domain.StringPtr("Metro")),
			Entry("no preposition", "spent $15 on groceries", nil),
			Entry("lowercase place", "coffee at the corner", nil),
		)
	})

	Describe("date", func() {
		DescribeTable("resolves relative and printed dates",
			func(transcript, expected string) {
				fields := parser.Parse(transcript)
				Expect(fields.Date).NotTo(BeNil())
				Expect(fields.Date.Format(domain.DateLayout)).To(Equal(expected))
			},
			Entry("today", "bought lunch today", "2026-02-17"),
			Entry("yesterday", "filled up gas yesterday", "2026-02-16"),
			Entry("printed date", "dated 01/10/2026", "2026-01-10"),
		)

		It("leaves the date nil when nothing is said", func() {
			Expect(parser.Parse("$5 for coffee").Date).To(BeNil())
		})
	})

	Describe("category", func() {
		DescribeTable("delegates to the category matcher",
			func(transcript string, expected *string) {
				fields := parser.Parse(transcript)
				if expected == nil {
					Expect(fields.Category).To(BeNil())
					return
				}
				Expect(fields.Category).NotTo(BeNil())
				Expect(*fields.Category).To(Equal(*expected))
			},
			Entry("merchant match", "$10 at Metro today", domain.StringPtr("Groceries")),
			Entry("keyword match", "$5 for coffee", domain.StringPtr("Restaurant")),
			Entry("no match", "$50 payment to consultant", nil),
		)
	})

	It("never produces line items", func() {
		fields := parser.Parse("spent $23 at Metro")
		Expect(fields.LineItems).To(BeEmpty())
		Expect(fields.Currency).To(Equal("CAD"))
	})
})
