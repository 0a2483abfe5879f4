package detector

import (
	"regexp"

	"moltguard/internal/pii"
)

// fixedPattern is one entry of the ordered layer-3 table: entries earlier in
// the slice take precedence when spans overlap.
type fixedPattern struct {
	category Category
	re       *regexp.Regexp
}

// Category is a local alias kept for readability in the pattern table; it is
// always a pii.Category.
type Category = pii.Category

var fixedPatterns = []fixedPattern{
	{pii.URL, regexp.MustCompile(`\bhttps?://[^\s<>"']+`)},
	{pii.Email, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{pii.CreditCard, regexp.MustCompile(`\b\d{4}[ -]\d{4}[ -]\d{4}[ -]\d{4}\b`)},
	{pii.BankCard, regexp.MustCompile(`\b\d{16,19}\b`)},
	{pii.Currency, regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{1,2})?`)},
	{pii.ITIN, regexp.MustCompile(`\b9\d{2}[-\s]\d{2}[-\s]\d{4}\b`)},
	{pii.SSN, regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`)},
	{pii.EIN, regexp.MustCompile(`\b\d{2}-\d{7}\b`)},
	{pii.IBAN, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)},
	{pii.IP, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b|\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)},
	{pii.Phone, regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`)},
	{pii.Address, regexp.MustCompile(`\b\d{1,6}\s+[A-Za-z0-9.'\s]{1,40}\b(?:Street|St|Avenue|Ave|Boulevard|Blvd|Road|Rd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way|Circle|Cir)\b\.?(?:\s*,?\s*(?:Apt|Suite|Ste|Unit|#)\s*\w+)?`)},
	{pii.Address, regexp.MustCompile(`(?i)\bP\.?O\.?\s*Box\s+\d+\b`)},
	{pii.Address, regexp.MustCompile(`\b\d{1,6}\s+[A-Za-z\s]{1,40},\s*[A-Za-z\s]{1,30},?\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?\b`)},
	{pii.PartialAddress, regexp.MustCompile(`\b\d{1,6}\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2}\b`)},
}

// detectFixedPatterns implements layer 3. Entries are scanned in table order
// and a later entry's candidate is dropped if it overlaps an already-accepted
// span from an earlier entry, giving earlier categories precedence.
func detectFixedPatterns(text string) []pii.Match {
	var matches []pii.Match
	var taken []span

	for _, p := range fixedPatterns {
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			start, end := m[0], m[1]
			if overlapsAny(start, end, taken) {
				continue
			}
			matches = append(matches, pii.Match{Start: start, End: end, Category: p.category, Text: text[start:end]})
			taken = append(taken, span{start, end})
		}
	}
	return matches
}
