// Package detector implements the layered PII entity detector (spec §4.1):
// regex and context-window heuristics plus an injected person-name
// recognizer, producing order-deterministic, side-effect-free candidate
// spans. It performs no deduplication or overlap resolution across layers —
// that is the Sanitizer's job.
package detector

import (
	"unicode/utf8"

	"moltguard/internal/pii"
)

// Detector produces candidate PII matches from a text buffer.
type Detector struct {
	recognizer PersonEntityRecognizer
}

// New returns a Detector using the given person-name recognizer. A nil
// recognizer disables the recognizer-sourced candidates of layer 7; the
// bigram/trigram heuristics still run.
func New(recognizer PersonEntityRecognizer) *Detector {
	return &Detector{recognizer: recognizer}
}

// Detect runs every layer, in the order specified, and returns the union of
// candidate matches. It never panics on malformed input: invalid UTF-8 is
// first repaired to valid UTF-8 (replacing bad bytes), which may shift
// affected byte offsets but never aborts detection.
func (d *Detector) Detect(text string) []pii.Match {
	if !utf8.ValidString(text) {
		text = toValidUTF8(text)
	}

	var all []pii.Match

	bankMatches := detectBankContext(text)
	all = append(all, bankMatches...)

	var routingSpans []span
	for _, m := range bankMatches {
		if m.Category == pii.RoutingNumber {
			routingSpans = append(routingSpans, span{m.Start, m.End})
		}
	}
	all = append(all, detectFinancialContext(text, routingSpans)...)

	all = append(all, detectFixedPatterns(text)...)
	all = append(all, detectAddressCaseInsensitive(text)...)
	all = append(all, detectTaxYear(text)...)
	all = append(all, detectDates(text)...)
	all = append(all, detectContextCurrency(text)...)
	all = append(all, detectPersons(text, d.recognizer)...)
	all = append(all, detectSecrets(text)...)

	return all
}

// toValidUTF8 replaces invalid byte sequences with the Unicode replacement
// character so that regex scanning over the buffer never panics.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	buf := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		buf = append(buf, r)
		i += size
	}
	return string(buf)
}
