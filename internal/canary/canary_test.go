package canary

import "testing"

func TestAssertNoLeakedPII_Clean(t *testing.T) {
	if err := AssertNoLeakedPII(`{"content":"[ssn_1] [person_1]"}`); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestAssertNoLeakedPII_SSNShape(t *testing.T) {
	if err := AssertNoLeakedPII(`{"content":"123-45-6789"}`); err != ErrLeakedPII {
		t.Errorf("expected ErrLeakedPII, got %v", err)
	}
}

func TestAssertNoLeakedPII_EINShape(t *testing.T) {
	if err := AssertNoLeakedPII(`{"content":"12-3456789"}`); err != ErrLeakedPII {
		t.Errorf("expected ErrLeakedPII, got %v", err)
	}
}

func TestAssertNoLeakedPII_PlaceholdersDoNotTrip(t *testing.T) {
	// After sanitization, placeholders like [ssn_1] must not themselves
	// trip the canary — ensures the canary and detector shapes don't
	// collide on the bracketed numbering.
	if err := AssertNoLeakedPII(`{"content":"[ssn_12] [ein_3]"}`); err != nil {
		t.Errorf("expected no error for placeholders, got %v", err)
	}
}
