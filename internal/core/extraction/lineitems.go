package extraction

import (
	"regexp"
	"strings"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

var (
	lineItemPattern    = regexp.MustCompile(`^(.+?)\s{2,}\$?\s*([\d,]+\.\d{2})\s*$`)
	nonItemLinePattern = regexp.MustCompile(`(?i)(?:total|subtotal|tax|hst|gst|pst|discount|tip|gratuity|change|cash|credit|debit)`)
)

// receiptLineItems returns the "description  price" lines that are not totals,
// taxes, tips or payment lines.
func receiptLineItems(text string) []domain.LineItem {
	items := make([]domain.LineItem, 0)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || nonItemLinePattern.MatchString(line) {
			continue
		}
		match := lineItemPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		amount, ok := parseMoney(match[2])
		if !ok {
			continue
		}
		items = append(items, domain.LineItem{
			Description: strings.TrimSpace(match[1]),
			Amount:      amount,
		})
	}
	return items
}
