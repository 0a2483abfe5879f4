package detector

import (
	"regexp"
	"strconv"

	"moltguard/internal/pii"
)

var (
	taxYearKeywordRE = regexp.MustCompile(`(?i)\b(tax year|ty|filing|return|w-2|1040|1099|schedule|form|fiscal year|fy)\b`)
	yearRun          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// detectTaxYear implements layer 4: a 4-digit year 1900-2099 within ±60
// chars of a tax keyword becomes tax_year.
func detectTaxYear(text string) []pii.Match {
	kwLocs := taxYearKeywordRE.FindAllStringIndex(text, -1)
	if len(kwLocs) == 0 {
		return nil
	}

	var matches []pii.Match
	for _, m := range yearRun.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		y, err := strconv.Atoi(text[start:end])
		if err != nil || y < 1900 || y > 2099 {
			continue
		}
		if !nearAnyKeyword(kwLocs, start, 60) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.TaxYear, Text: text[start:end]})
	}
	return matches
}
