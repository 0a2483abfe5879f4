// Package pii holds the shared vocabulary used by every stage of the
// sanitize/restore pipeline: the Category enumeration, placeholder
// formatting, and the structural-key set that the Sanitizer and Restorer
// both consult.
package pii

import (
	"fmt"
	"regexp"
	"strconv"
)

// Category labels a kind of sensitive value. It governs placeholder prefix,
// detector precedence, and audit-count serialization.
type Category string

// Required Category members.
const (
	SSN            Category = "ssn"
	ITIN           Category = "itin"
	EIN            Category = "ein"
	Email          Category = "email"
	Phone          Category = "phone"
	URL            Category = "url"
	IP             Category = "ip"
	IBAN           Category = "iban"
	CreditCard     Category = "credit_card"
	BankCard       Category = "bank_card"
	Currency       Category = "currency"
	TaxYear        Category = "tax_year"
	DOB            Category = "dob"
	Date           Category = "date"
	BankAccount    Category = "bank_account"
	RoutingNumber  Category = "routing_number"
	Address        Category = "address"
	PartialAddress Category = "partial_address"
	Person         Category = "person"
	Secret         Category = "secret"
)

// AllCategories lists every required Category member, in no particular
// precedence order — precedence is owned by the detector, not this package.
var AllCategories = []Category{
	SSN, ITIN, EIN, Email, Phone, URL, IP, IBAN, CreditCard, BankCard,
	Currency, TaxYear, DOB, Date, BankAccount, RoutingNumber, Address,
	PartialAddress, Person, Secret,
}

// Valid reports whether c is one of the required Category members.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// placeholderPattern matches a canonical bracketed placeholder, capturing
// the category and counter.
var placeholderPattern = regexp.MustCompile(`^\[([a-z_]+)_(\d+)\]$`)

// barePattern matches the bracket-stripped form some upstream models emit.
var barePattern = regexp.MustCompile(`^([a-z_]+)_(\d+)$`)

// Placeholder formats the canonical bracketed placeholder for a category and
// counter, e.g. Placeholder(Person, 1) == "[person_1]".
func Placeholder(c Category, n uint32) string {
	return fmt.Sprintf("[%s_%d]", c, n)
}

// BarePlaceholder formats the bracket-stripped form, e.g. "person_1".
func BarePlaceholder(c Category, n uint32) string {
	return fmt.Sprintf("%s_%d", c, n)
}

// ParsePlaceholder parses a canonical bracketed placeholder into its
// category and counter. ok is false if s is not a well-formed placeholder
// for a known category.
func ParsePlaceholder(s string) (c Category, n uint32, ok bool) {
	m := placeholderPattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	return parseMatch(m)
}

// ParseBarePlaceholder parses the bracket-stripped form "category_n".
func ParseBarePlaceholder(s string) (c Category, n uint32, ok bool) {
	m := barePattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	return parseMatch(m)
}

func parseMatch(m []string) (Category, uint32, bool) {
	cat := Category(m[1])
	if !cat.Valid() {
		return "", 0, false
	}
	v, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return cat, uint32(v), true
}

// StructuralKeys is the fixed set of JSON field names whose values are never
// sent to the detector regardless of content. Protects the LLM-protocol
// contract (§3 of the spec).
var StructuralKeys = map[string]bool{
	"tool_call_id": true, "tool_use_id": true, "id": true, "model": true,
	"role": true, "type": true, "finish_reason": true, "name": true,
	"object": true, "created": true, "index": true,
	"system_fingerprint": true, "stream": true, "max_tokens": true,
	"temperature": true, "top_p": true, "top_k": true, "stop_reason": true,
	"stop_sequence": true, "media_type": true, "source_type": true,
	"prompt_tokens": true, "completion_tokens": true, "total_tokens": true,
	"input_tokens": true, "output_tokens": true, "refusal": true,
}
