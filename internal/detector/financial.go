package detector

import (
	"regexp"

	"moltguard/internal/pii"
)

var (
	financialKeywordRE = regexp.MustCompile(`(?i)\b(deposit|refund|1040|8888|w-2|1099|payment|transfer|wire|ach|eft|tax return|withholding|payroll)\b`)
	financialDigitRun   = regexp.MustCompile(`\b\d{8,12}\b`)
	fourDigitYear       = regexp.MustCompile(`^\d{4}$`)
)

// detectFinancialContext implements layer 2: near financial/tax keywords
// within ±200 chars, 8-12 digit groups become bank_account, skipping
// 4-digit year-shaped values and spans already recognized as routing
// numbers elsewhere in the text.
func detectFinancialContext(text string, routingSpans []span) []pii.Match {
	kwLocs := financialKeywordRE.FindAllStringIndex(text, -1)
	if len(kwLocs) == 0 {
		return nil
	}

	var matches []pii.Match
	for _, m := range financialDigitRun.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		digits := text[start:end]
		if fourDigitYear.MatchString(digits) {
			continue
		}
		if len(digits) == 9 && abaValid(digits) {
			continue
		}
		if overlapsAny(start, end, routingSpans) {
			continue
		}
		if !nearAnyKeyword(kwLocs, start, 200) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.BankAccount, Text: digits})
	}
	return matches
}
