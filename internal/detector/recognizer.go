package detector

import "strings"

// RuleBasedRecognizer is the pure rule-based PersonEntityRecognizer fallback
// (spec §4.1 permits either an NLP model or this). It recognizes title-case
// bigrams where at least one word is a known first name, deterministically
// and without any network access.
type RuleBasedRecognizer struct{}

// NewRuleBasedRecognizer returns the default on-host name recognizer.
func NewRuleBasedRecognizer() *RuleBasedRecognizer {
	return &RuleBasedRecognizer{}
}

// Recognize implements PersonEntityRecognizer.
func (r *RuleBasedRecognizer) Recognize(text string) []NameSpan {
	var out []NameSpan
	for _, loc := range findBigramsTrigrams(text, titleCaseWordRE, 2, 2) {
		words := strings.Fields(text[loc.start:loc.end])
		if len(words) != 2 || !anyKnownFirstName(words) {
			continue
		}
		out = append(out, NameSpan{Start: loc.start, End: loc.end, Text: text[loc.start:loc.end]})
	}
	return out
}
