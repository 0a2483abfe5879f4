// Package canary implements the post-sanitization residual-pattern check
// that aborts an outbound request if it still looks like it contains an
// SSN/ITIN or EIN (spec §4.7). This is defense-in-depth, not a substitute
// for the detector.
package canary

import (
	"errors"
	"regexp"
)

var (
	ssnShapeRE = regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`)
	einShapeRE = regexp.MustCompile(`\b\d{2}-\d{7}\b`)
)

// ErrLeakedPII is returned by AssertNoLeakedPII when a residual SSN/ITIN- or
// EIN-shaped pattern is found. The message is generic by design — the
// offending substring must never appear in logs or in the error itself.
var ErrLeakedPII = errors.New("canary: residual PII-shaped pattern found in outbound payload")

// AssertNoLeakedPII scans payload for SSN/ITIN-shaped and EIN-shaped digit
// runs. It returns ErrLeakedPII on any hit.
func AssertNoLeakedPII(payload string) error {
	if ssnShapeRE.MatchString(payload) || einShapeRE.MatchString(payload) {
		return ErrLeakedPII
	}
	return nil
}
