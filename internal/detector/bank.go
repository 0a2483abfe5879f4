package detector

import (
	"regexp"

	"moltguard/internal/pii"
)

var (
	bankKeywords = []string{
		"account", "routing", "aba", "checking", "savings",
		"bank account", "acct", "direct deposit",
	}

	nineDigitRun  = regexp.MustCompile(`\b\d{9}\b`)
	bankAcctRun   = regexp.MustCompile(`\b\d{8,17}\b`)
	bankKeywordRE = regexp.MustCompile(`(?i)\b(account|routing|aba|checking|savings|bank account|acct|direct deposit)\b`)
)

// detectBankContext implements layer 1 of the spec: banking keywords gate a
// ±120-char window in which 9-digit groups passing the ABA checksum become
// routing_number, and 8-17 digit groups become bank_account. A 9-digit span
// recognized as a routing number is excluded from the bank_account layer.
func detectBankContext(text string) []pii.Match {
	kwLocs := bankKeywordRE.FindAllStringIndex(text, -1)
	if len(kwLocs) == 0 {
		return nil
	}

	var matches []pii.Match
	var routingSpans []span

	for _, m := range nineDigitRun.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if !nearAnyKeyword(kwLocs, start, 120) {
			continue
		}
		digits := text[start:end]
		if !abaValid(digits) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.RoutingNumber, Text: digits})
		routingSpans = append(routingSpans, span{start, end})
	}

	for _, m := range bankAcctRun.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if !nearAnyKeyword(kwLocs, start, 120) {
			continue
		}
		if overlapsAny(start, end, routingSpans) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.BankAccount, Text: text[start:end]})
	}

	return matches
}

// nearAnyKeyword reports whether position pos sits within radius chars of
// any keyword match location.
func nearAnyKeyword(kwLocs [][]int, pos, radius int) bool {
	for _, loc := range kwLocs {
		kwStart, kwEnd := loc[0], loc[1]
		if pos >= kwStart-radius && pos <= kwEnd+radius {
			return true
		}
	}
	return false
}

// abaValid checks the routing-number checksum:
// 3(d1+d4+d7) + 7(d2+d5+d8) + (d3+d6+d9) mod 10 == 0.
func abaValid(digits string) bool {
	if len(digits) != 9 {
		return false
	}
	d := make([]int, 9)
	for i, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
		d[i] = int(r - '0')
	}
	sum := 3*(d[0]+d[3]+d[6]) + 7*(d[1]+d[4]+d[7]) + (d[2] + d[5] + d[8])
	return sum%10 == 0
}
