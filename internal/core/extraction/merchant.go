package extraction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	merchantHeaderLines = 6
	maxMerchantWords    = 4
	maxAbbreviationLen  = 3
)

// merchantLineSkips are the receipt header lines that are never a merchant.
var merchantLineSkips = []Rule[struct{}]{
	{Name: "bare_number", Detect: matches(regexp.MustCompile(`^\d+$`))},
	{Name: "phone_number", Detect: matches(regexp.MustCompile(`^\+?[\d\s\-().]{7,}$`))},
	{Name: "street_address", Detect: matches(regexp.MustCompile(`(?i)^\d+\s+\w+.*\b(st|ave|dr|rd|blvd|ln|cres|way)\b`))},
	{Name: "boilerplate", Detect: matches(regexp.MustCompile(`(?i)^(receipt|invoice|order|bill|thank|welcome)`))},
	{Name: "price_or_tax", Detect: matches(regexp.MustCompile(`(?i)\$|(?:total|subtotal|tax|hst|gst|pst)`))},
}

var (
	merchantWordPattern = regexp.MustCompile(`^[A-Z][a-zA-Z&'.]+$`)
	voiceBoundaryWords  = map[string]bool{
		"for":       true,
		"on":        true,
		"yesterday": true,
		"today":     true,
		"last":      true,
	}
)

func matches(pattern *regexp.Regexp) func(string) (struct{}, bool) {
	return func(text string) (struct{}, bool) {
		return struct{}{}, pattern.MatchString(text)
	}
}

// receiptMerchant returns the first of the leading non-empty lines that is not
// a number, phone, address, boilerplate header or price line.
func receiptMerchant(text string) (string, bool) {
	seen := 0
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		seen++
		if seen > merchantHeaderLines {
			break
		}
		if len(line) < 2 {
			continue
		}
		if _, _, skip := FirstMatch(merchantLineSkips, line); skip {
			continue
		}
		return line, true
	}
	return "", false
}

// voiceMerchant returns the capitalized words spoken after "at" or "from".
func voiceMerchant(transcript string) (string, bool) {
	tokens := strings.Fields(transcript)
	for i, token := range tokens {
		lower := strings.ToLower(token)
		if lower != "at" && lower != "from" {
			continue
		}
		if name, ok := capitalizedRun(tokens[i+1:]); ok {
			return name, true
		}
	}
	return "", false
}

// capitalizedRun collects up to four capitalized words. The run only counts
// when it is followed by a boundary word, a number, punctuation or the end of
// the transcript. A short word ending in "." followed by another capitalized
// word is an abbreviation ("St. Lawrence Market") and keeps the run going.
func capitalizedRun(tokens []string) (string, bool) {
	words := make([]string, 0, maxMerchantWords)
	for i, token := range tokens {
		if len(words) > 0 && endsMerchantRun(token) {
			return strings.Join(words, " "), true
		}
		word, punctuated := trimTrailingPunctuation(token)
		if len(words) == maxMerchantWords || !merchantWordPattern.MatchString(word) {
			return "", false
		}
		if punctuated && isAbbreviation(token, tokens[i+1:]) {
			words = append(words, token)
			continue
		}
		words = append(words, word)
		if punctuated {
			return strings.Join(words, " "), true
		}
	}
	if len(words) == 0 {
		return "", false
	}
	return strings.Join(words, " "), true
}

func isAbbreviation(token string, rest []string) bool {
	if !strings.HasSuffix(token, ".") || strings.ContainsRune(token, ',') {
		return false
	}
	if utf8.RuneCountInString(token)-1 > maxAbbreviationLen || len(rest) == 0 {
		return false
	}
	next, _ := trimTrailingPunctuation(rest[0])
	return !endsMerchantRun(rest[0]) && merchantWordPattern.MatchString(next)
}

func endsMerchantRun(token string) bool {
	first, _ := utf8.DecodeRuneInString(token)
	if unicode.IsDigit(first) || first == ',' || first == '.' {
		return true
	}
	word, _ := trimTrailingPunctuation(strings.ToLower(token))
	return voiceBoundaryWords[word]
}

func trimTrailingPunctuation(token string) (string, bool) {
	trimmed := strings.TrimRight(token, ",.")
	return trimmed, trimmed != token
}
