package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	labelledTotalPattern = regexp.MustCompile(`(?i)(?:total|amount\s*due|grand\s*total|balance\s*due|net\s*total)[:\s]*\$?\s*([\d,]+\.?\d{0,2})`)
	moneyFigurePattern   = regexp.MustCompile(`\$?\s*([\d,]+\.\d{2})`)
	dollarSignPattern    = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{1,2})?)`)
	dollarWordPattern    = regexp.MustCompile(`(?i)([\d,]+(?:\.\d{1,2})?)\s+(?:dollars?|bucks?)`)
)

// ReceiptAmountRules resolve a receipt total. The last labelled total wins so a
// grand total beats the subtotal printed above it; otherwise the largest figure
// on the receipt is assumed to be the total.
var ReceiptAmountRules = []Rule[decimal.Decimal]{
	{Name: "labelled_total", Detect: lastLabelledTotal},
	{Name: "largest_figure", Detect: largestFigure},
}

// VoiceAmountRules resolve a spoken amount. Number words are not recognized.
var VoiceAmountRules = []Rule[decimal.Decimal]{
	{Name: "dollar_sign", Detect: firstCapture(dollarSignPattern)},
	{Name: "dollar_word", Detect: firstCapture(dollarWordPattern)},
}

func lastLabelledTotal(text string) (decimal.Decimal, bool) {
	matches := labelledTotalPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return decimal.Decimal{}, false
	}
	return parseMoney(matches[len(matches)-1][1])
}

func largestFigure(text string) (decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, match := range moneyFigurePattern.FindAllStringSubmatch(text, -1) {
		value, ok := parseMoney(match[1])
		if !ok {
			continue
		}
		if !found || value.GreaterThan(best) {
			best = value
			found = true
		}
	}
	return best, found
}

func firstCapture(pattern *regexp.Regexp) func(string) (decimal.Decimal, bool) {
	return func(text string) (decimal.Decimal, bool) {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			return decimal.Decimal{}, false
		}
		return parseMoney(match[1])
	}
}

// parseMoney reads a figure with comma thousands separators. Only positive
// amounts are accepted.
func parseMoney(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.TrimSuffix(cleaned, ".")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil || !value.IsPositive() {
		return decimal.Decimal{}, false
	}
	return value.Round(2), true
}
