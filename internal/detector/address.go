package detector

import (
	"regexp"

	"golang.org/x/text/cases"

	"moltguard/internal/pii"
)

// streetSuffixFold normalizes a candidate suffix word for membership
// lookup. cases.Fold (rather than strings.ToLower) is used so the
// comparison is correct for scripts where simple lowercasing isn't
// equivalent to case folding.
var streetSuffixFold = cases.Fold()

var streetSuffixes = map[string]bool{
	"street": true, "st": true, "avenue": true, "ave": true,
	"boulevard": true, "blvd": true, "road": true, "rd": true,
	"lane": true, "ln": true, "drive": true, "dr": true,
	"court": true, "ct": true, "place": true, "pl": true,
	"way": true, "circle": true, "cir": true,
}

const maxAddressWords = 6

var addressTokenRE = regexp.MustCompile(`\d+|[A-Za-z]+`)

// detectAddressCaseInsensitive implements a case-insensitive street-suffix
// layer on top of the fixed-pattern table's case-sensitive suffix
// alternation (which only matches Title Case suffixes like "Street"). It
// tokenizes the text, and for every bare house-number token looks ahead up
// to maxAddressWords word tokens for one that case-folds to a known street
// suffix, accepting the span from the number through that word.
func detectAddressCaseInsensitive(text string) []pii.Match {
	tokens := addressTokenRE.FindAllStringIndex(text, -1)
	var matches []pii.Match

	for i, tok := range tokens {
		word := text[tok[0]:tok[1]]
		if len(word) == 0 || len(word) > 6 || !isDigits(word) {
			continue
		}
		for j := i + 1; j < len(tokens) && j <= i+maxAddressWords; j++ {
			cand := text[tokens[j][0]:tokens[j][1]]
			if isDigits(cand) {
				break // a second number ends the run of street-name words
			}
			if streetSuffixes[streetSuffixFold.String(cand)] {
				end := tokens[j][1]
				matches = append(matches, pii.Match{Start: tok[0], End: end, Category: pii.Address, Text: text[tok[0]:end]})
				break
			}
		}
	}
	return matches
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
