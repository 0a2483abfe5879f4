package detector

import (
	"math"
	"regexp"
	"strings"

	"moltguard/internal/pii"
)

var (
	secretPrefixRE = regexp.MustCompile(`\b(?:sk-|sk_|pk_|ghp_|AKIA|xox|SG\.|hf_|api-|token-|secret-)[A-Za-z0-9_\-]{8,}\b`)
	bearerRE       = regexp.MustCompile(`\bBearer\s+[A-Za-z0-9._\-]{8,}\b`)
	genericTokenRE = regexp.MustCompile(`\b[A-Za-z0-9_\-]{20,}\b`)

	// llmAPIIdentifierRE matches the LLM-API-identifier prefixes that are
	// never treated as leaked secrets even though they are high-entropy.
	llmAPIIdentifierRE = regexp.MustCompile(`^(?:call_|toolu_|chatcmpl-|msg_|resp_|run_|step_|asst_|file-|org-|snip_|tool_|block_|embd_|modr_|ft-|batch_)`)

	minSecretEntropy = 4.0
)

// detectSecrets implements layer 8: prefix-gated API keys, Bearer tokens,
// and generic high-entropy 20+-char tokens, all excluding the LLM-API
// identifier prefix set.
func detectSecrets(text string) []pii.Match {
	var matches []pii.Match
	var taken []span

	for _, m := range secretPrefixRE.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		token := text[start:end]
		if llmAPIIdentifierRE.MatchString(token) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.Secret, Text: token})
		taken = append(taken, span{start, end})
	}

	for _, m := range bearerRE.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		token := text[start:end]
		if overlapsAny(start, end, taken) {
			continue
		}
		if llmAPIIdentifierRE.MatchString(strings.TrimSpace(strings.TrimPrefix(token, "Bearer"))) {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.Secret, Text: token})
		taken = append(taken, span{start, end})
	}

	for _, m := range genericTokenRE.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		token := text[start:end]
		if overlapsAny(start, end, taken) {
			continue
		}
		if llmAPIIdentifierRE.MatchString(token) {
			continue
		}
		if shannonEntropy(token) < minSecretEntropy {
			continue
		}
		matches = append(matches, pii.Match{Start: start, End: end, Category: pii.Secret, Text: token})
		taken = append(taken, span{start, end})
	}

	return matches
}

// shannonEntropy computes the Shannon entropy, in bits per character, of s.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	n := float64(len(s))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
