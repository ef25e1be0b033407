// Package extraction derives structured expense fields from receipt OCR text
// and voice transcripts. Every field is resolved by an ordered rule table:
// rules run in declaration order and the first detection wins.
package extraction

// Rule is one named detector in a rule table.
type Rule[T any] struct {
	Name   string
	Detect func(text string) (T, bool)
}

// FirstMatch returns the value and rule name of the first rule that detects
// something in text.
func FirstMatch[T any](rules []Rule[T], text string) (T, string, bool) {
	for _, rule := range rules {
		if value, ok := rule.Detect(text); ok {
			return value, rule.Name, true
		}
	}
	var zero T
	return zero, "", false
}
