package detector

import (
	"regexp"
	"strings"

	"moltguard/internal/pii"
)

// PersonEntityRecognizer is the injected name-recognition capability (spec
// §4.1): it must run entirely on-host, be deterministic, and only return
// spans on non-structural lines that do not match the tax-form label regex.
type PersonEntityRecognizer interface {
	Recognize(text string) []NameSpan
}

// NameSpan is one candidate person-name span and its original text.
type NameSpan struct {
	Start, End int
	Text       string
}

var taxFormLabelRE = regexp.MustCompile(`^(Form|Schedule|Statement|Wage|Tax)\b`)

// structuralLineRE matches a line (after leading whitespace) that begins
// with markdown/list/heading syntax, rejected as a person-name host.
var structuralLineRE = regexp.MustCompile(`^\s*(#|\*\*|-|\*|_|\d+\.)`)

var firstNames = map[string]bool{
	"james": true, "john": true, "robert": true, "michael": true, "william": true,
	"david": true, "richard": true, "joseph": true, "thomas": true, "charles": true,
	"mary": true, "patricia": true, "jennifer": true, "linda": true, "elizabeth": true,
	"barbara": true, "susan": true, "jessica": true, "sarah": true, "karen": true,
	"jane": true, "nancy": true, "lisa": true, "betty": true, "margaret": true,
	"sandra": true, "ashley": true, "kimberly": true, "emily": true, "donna": true,
	"michelle": true, "carol": true, "amanda": true, "melissa": true, "deborah": true,
	"stephanie": true, "rebecca": true, "laura": true, "sharon": true, "cynthia": true,
	"kathleen": true, "helen": true, "amy": true, "shirley": true, "angela": true,
	"anna": true, "brenda": true, "pamela": true, "nicole": true, "samantha": true,
	"daniel": true, "paul": true, "mark": true, "donald": true, "george": true,
	"kenneth": true, "steven": true, "edward": true, "brian": true, "ronald": true,
	"anthony": true, "kevin": true, "jason": true, "matthew": true, "gary": true,
	"timothy": true, "jose": true, "larry": true, "jeffrey": true, "frank": true,
	"scott": true, "eric": true, "stephen": true, "andrew": true, "raymond": true,
	"gregory": true, "joshua": true, "jerry": true, "dennis": true, "walter": true,
	"patrick": true, "peter": true, "harold": true, "douglas": true, "henry": true,
	"carl": true, "arthur": true, "ryan": true, "roger": true, "joe": true,
	"juan": true, "jack": true, "albert": true, "jonathan": true, "justin": true,
	"terry": true, "gerald": true, "keith": true, "samuel": true, "willie": true,
	"ralph": true, "lawrence": true, "nicholas": true, "roy": true, "benjamin": true,
	"bruce": true, "brandon": true, "adam": true, "harry": true, "fred": true,
	"wayne": true, "billy": true, "steve": true, "louis": true, "jeremy": true,
	"aaron": true, "randy": true, "howard": true, "eugene": true, "carlos": true,
	"russell": true, "bobby": true, "victor": true, "martin": true, "ernest": true,
}

var months = []string{
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december", "jan", "feb", "mar", "apr",
	"jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
}

var stateNames = []string{
	"alabama", "alaska", "arizona", "arkansas", "california", "colorado",
	"connecticut", "delaware", "florida", "georgia", "hawaii", "idaho",
	"illinois", "indiana", "iowa", "kansas", "kentucky", "louisiana", "maine",
	"maryland", "massachusetts", "michigan", "minnesota", "mississippi",
	"missouri", "montana", "nebraska", "nevada", "ohio", "oklahoma", "oregon",
	"pennsylvania", "tennessee", "texas", "utah", "vermont", "virginia",
	"washington", "wisconsin", "wyoming",
}

var technicalTerms = []string{
	"schedule", "form", "statement", "wage", "tax", "total", "amount",
	"balance", "account", "routing", "summary", "report", "invoice",
	"taxable", "adjusted", "gross", "net", "income", "refund", "filing",
}

var commonOrgs = []string{
	"irs", "internal revenue service", "social security administration",
	"department of treasury", "bank of america", "wells fargo", "chase",
	"citibank", "capital one", "american express",
}

// exclusionWords is the union consulted by rejectAllExcluded: tax terms,
// structural/technical terms, months, states, and common organizations.
var exclusionWords = buildExclusionSet()

func buildExclusionSet() map[string]bool {
	set := map[string]bool{}
	for _, w := range months {
		set[w] = true
	}
	for _, w := range stateNames {
		set[w] = true
	}
	for _, w := range technicalTerms {
		set[w] = true
	}
	for _, phrase := range commonOrgs {
		for _, w := range strings.Fields(phrase) {
			set[w] = true
		}
	}
	return set
}

// titleCaseWordRE matches one title-case word: Capital letter then lowercase.
var titleCaseWordRE = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
var allCapsWordRE = regexp.MustCompile(`\b[A-Z]{2,}\b`)
var lowerWordRE = regexp.MustCompile(`\b[a-z]+\b`)

var emailHeaderRE = regexp.MustCompile(`(?m)^(From|To|Cc|Bcc|Reply-To|Sender):\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*<[^>]+>`)
var nameAdjacentAngleRE = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*<[^>@]+@[^>]+>`)
var salutationRE = regexp.MustCompile(`\b(Hi|Hey|Hello|Dear|Thanks|Thank you),?\s+([A-Z][a-z]+)\b`)

// detectPersons implements layer 7. It combines the recognizer's candidates
// with bigram/trigram heuristics over title-case, ALL-CAPS and lowercase
// runs, gated by the exclusion union and the structural-line rejection.
func detectPersons(text string, recognizer PersonEntityRecognizer) []pii.Match {
	var matches []pii.Match

	add := func(start, end int, original string) {
		if rejectAllExcluded(original) {
			return
		}
		if onStructuralLine(text, start) {
			return
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.Person, Text: original})
	}

	if recognizer != nil {
		for _, ns := range recognizer.Recognize(text) {
			if taxFormLabelRE.MatchString(ns.Text) {
				continue
			}
			add(ns.Start, ns.End, ns.Text)
		}
	}

	for _, loc := range findBigramsTrigrams(text, titleCaseWordRE, 2, 3) {
		words := strings.Fields(text[loc.start:loc.end])
		if len(words) == 2 {
			if !(bothExcludableOK(words) || anyKnownFirstName(words)) {
				continue
			}
		} else {
			if !anyKnownFirstName(words) {
				continue
			}
		}
		add(loc.start, loc.end, text[loc.start:loc.end])
	}

	for _, loc := range findBigramsTrigrams(text, allCapsWordRE, 2, 3) {
		words := strings.Fields(text[loc.start:loc.end])
		if !anyKnownFirstName(words) {
			continue
		}
		add(loc.start, loc.end, text[loc.start:loc.end])
	}

	for _, loc := range findBigrams(text, lowerWordRE) {
		words := strings.Fields(text[loc.start:loc.end])
		if len(words) != 2 || !firstNames[strings.ToLower(words[0])] {
			continue
		}
		add(loc.start, loc.end, text[loc.start:loc.end])
	}

	for _, m := range emailHeaderRE.FindAllStringSubmatchIndex(text, -1) {
		add(m[4], m[5], text[m[4]:m[5]])
	}
	for _, m := range nameAdjacentAngleRE.FindAllStringSubmatchIndex(text, -1) {
		add(m[2], m[3], text[m[2]:m[3]])
	}
	for _, m := range salutationRE.FindAllStringSubmatchIndex(text, -1) {
		add(m[4], m[5], text[m[4]:m[5]])
	}

	return matches
}

func anyKnownFirstName(words []string) bool {
	for _, w := range words {
		if firstNames[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

func bothExcludableOK(words []string) bool {
	for _, w := range words {
		if exclusionWords[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

// rejectAllExcluded reports whether every word of candidate is in the
// exclusion union, in which case the whole candidate is rejected.
func rejectAllExcluded(candidate string) bool {
	words := strings.Fields(candidate)
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if !exclusionWords[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

func onStructuralLine(text string, pos int) bool {
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	lineEnd := strings.IndexByte(text[pos:], '\n')
	if lineEnd == -1 {
		lineEnd = len(text)
	} else {
		lineEnd += pos
	}
	return structuralLineRE.MatchString(text[lineStart:lineEnd])
}

// findBigrams finds adjacent two-word runs matched by wordRE.
func findBigrams(text string, wordRE *regexp.Regexp) []span {
	return findBigramsTrigrams(text, wordRE, 2, 2)
}

// findBigramsTrigrams finds runs of minWords..maxWords consecutive words
// (separated by a single space) all matched by wordRE.
func findBigramsTrigrams(text string, wordRE *regexp.Regexp, minWords, maxWords int) []span {
	locs := wordRE.FindAllStringIndex(text, -1)
	var out []span
	i := 0
	for i < len(locs) {
		runStart := i
		j := i + 1
		for j < len(locs) && j-runStart < maxWords && text[locs[j-1][1]:locs[j][0]] == " " {
			j++
		}
		runLen := j - runStart
		if runLen >= minWords {
			// emit the longest run first, then progressively shorter
			// prefixes down to minWords, so trigrams are tried before
			// their contained bigrams.
			for n := runLen; n >= minWords; n-- {
				out = append(out, span{locs[runStart][0], locs[runStart+n-1][1]})
			}
		}
		i = j
	}
	return out
}
