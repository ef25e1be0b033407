package extraction_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/extraction"
)

var _ = Describe("CategoryMatcher", func() {
	var matcher *extraction.CategoryMatcher

	BeforeEach(func() {
		matcher = extraction.DefaultCategoryMatcher()
	})

	DescribeTable("Suggest",
		func(merchant *string, text string, expected *string) {
			got := matcher.Suggest(merchant, text)
			if expected == nil {
				Expect(got).To(BeNil())
				return
			}
			Expect(got).NotTo(BeNil())
			Expect(*got).To(Equal(*expected))
		},
		Entry("grocery chain in capitals", domain.StringPtr("WALMART"), "", domain.StringPtr("Groceries")),
		Entry("coffee keyword", domain.StringPtr("COFFEE SHOP"), "", domain.StringPtr("Restaurant")),
		Entry("hyphenated fuel brand", domain.StringPtr("Petro-Canada"), "", domain.StringPtr("Fuel")),
		Entry("pharmacy chain", domain.StringPtr("Shoppers Drug Mart"), "", domain.StringPtr("Healthcare")),
		Entry("keyword in free text only", nil, "uber ride home", domain.StringPtr("Transport")),
		Entry("multi word pattern", domain.StringPtr("Best Buy"), "", domain.StringPtr("Shopping")),
		Entry("no rule matches", domain.StringPtr("Jane Doe Consulting"), "invoice for services", nil),
		Entry("empty input", nil, "   ", nil),
	)

	It("keeps the table order", func() {
		Expect(matcher.Categories()).To(Equal([]string{
			"Groceries", "Restaurant", "Fuel", "Transport", "Utilities", "Healthcare", "Shopping", "Entertainment",
		}))
	})

	It("lets an earlier category shadow a later one", func() {
		got := matcher.Suggest(domain.StringPtr("Market Cafe"), "")
		Expect(got).NotTo(BeNil())
		Expect(*got).To(Equal("Groceries"))
	})

	When("loading a custom table", func() {
		It("applies the custom rules", func() {
			custom, err := extraction.LoadCategoryMatcher(strings.NewReader(`
categories:
  - name: Pets
    patterns: [petsmart, 'vet\s*clinic']
`))
			Expect(err).NotTo(HaveOccurred())
			got := custom.Suggest(nil, "PetSmart food")
			Expect(got).NotTo(BeNil())
			Expect(*got).To(Equal("Pets"))
		})

		It("rejects a category without patterns", func() {
			_, err := extraction.LoadCategoryMatcher(strings.NewReader("categories:\n  - name: Empty\n"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects an invalid pattern", func() {
			_, err := extraction.LoadCategoryMatcher(strings.NewReader("categories:\n  - name: Broken\n    patterns: ['(']\n"))
			Expect(err).To(HaveOccurred())
		})
	})
})
