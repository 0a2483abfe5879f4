package detector

import (
	"regexp"

	"moltguard/internal/pii"
)

var (
	currencyKeywordRE = regexp.MustCompile(`(?i)\b(wages|income|salary|payment|refund|balance|amount|total|gross|net|compensation|earned|adjusted|taxable|liability|deduction|withholding|dividend|distribution|contribution|proceeds|revenue|cost|expense|fee|rent|royalty|alimony|stipend|bonus|commission|pension|annuity|benefit)\b`)
	groupedNumberRE   = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?\b`)
	plainBigNumberRE  = regexp.MustCompile(`\b\d{5,}\b`)
)

// detectContextCurrency implements layer 6: within ±200 chars of a financial
// keyword, comma-grouped numbers and plain 5+-digit numbers become currency,
// excluding year-shaped 4-digit values (not reachable by these patterns) and
// 9-digit SSN/EIN-shaped values.
func detectContextCurrency(text string) []pii.Match {
	kwLocs := currencyKeywordRE.FindAllStringIndex(text, -1)
	if len(kwLocs) == 0 {
		return nil
	}

	var matches []pii.Match
	var taken []span

	for _, m := range groupedNumberRE.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if !nearAnyKeyword(kwLocs, start, 200) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.Currency, Text: text[start:end]})
		taken = append(taken, span{start, end})
	}

	for _, m := range plainBigNumberRE.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if overlapsAny(start, end, taken) {
			continue
		}
		digits := text[start:end]
		if len(digits) == 9 {
			continue // SSN/EIN-shaped
		}
		if !nearAnyKeyword(kwLocs, start, 200) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.Currency, Text: digits})
	}

	return matches
}
