package detector

import (
	"regexp"
	"strconv"

	"moltguard/internal/pii"
)

var (
	dateSlashRE = regexp.MustCompile(`\b(\d{1,2})([/-])(\d{1,2})([/-])(\d{4})\b`)
	dateISORE   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)

	dobKeywordRE = regexp.MustCompile(`(?i)\b(dob|date of birth|birthdate|birth date|birthday|born)\b`)
)

// detectDates implements layer 5: MM/DD/YYYY, MM-DD-YYYY and ISO
// YYYY-MM-DD dates, validated, promoted to dob when near a DOB keyword,
// and skipped when they look like part of a path or filename.
func detectDates(text string) []pii.Match {
	var matches []pii.Match
	var taken []span

	kwLocs := dobKeywordRE.FindAllStringIndex(text, -1)

	for _, m := range dateSlashRE.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if isPathAdjacent(text, start, end) {
			continue
		}
		mo, _ := strconv.Atoi(text[m[2]:m[3]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		yr, _ := strconv.Atoi(text[m[8]:m[9]])
		if !validDate(mo, day, yr) {
			continue
		}
		cat := pii.Date
		if nearAnyKeyword(kwLocs, start, 60) {
			cat = pii.DOB
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: cat, Text: text[start:end]})
		taken = append(taken, span{start, end})
	}

	for _, m := range dateISORE.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if overlapsAny(start, end, taken) || isPathAdjacent(text, start, end) {
			continue
		}
		yr, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		if !validDate(mo, day, yr) {
			continue
		}
		cat := pii.Date
		if nearAnyKeyword(kwLocs, start, 60) {
			cat = pii.DOB
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: cat, Text: text[start:end]})
	}

	return matches
}

func validDate(mo, day, yr int) bool {
	return mo >= 1 && mo <= 12 && day >= 1 && day <= 31 && yr >= 1900 && yr <= 2100
}

// isPathAdjacent rejects date-shaped candidates preceded by a path separator
// or followed by a dot, heuristically avoiding file-path false positives.
func isPathAdjacent(text string, start, end int) bool {
	if start > 0 {
		prev := text[start-1]
		if prev == '/' || prev == '\\' {
			return true
		}
	}
	if end < len(text) && text[end] == '.' {
		return true
	}
	return false
}
