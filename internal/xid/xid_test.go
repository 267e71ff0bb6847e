package xid

import "testing"

func TestNewCarriesPrefixAndIsUnique(t *testing.T) {
	seen := make(map[string]bool, 64)
	for i := 0; i < 64; i++ {
		id := New("sale")
		if !HasPrefix(id, "sale") {
			t.Fatalf("expected sale- prefix with uuid suffix, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestHasPrefixRejectsForeignIDs(t *testing.T) {
	if HasPrefix("prd-not-a-uuid", "prd") {
		t.Fatalf("expected malformed suffix to be rejected")
	}
	if HasPrefix(New("cus"), "prd") {
		t.Fatalf("expected prefix mismatch to be rejected")
	}
}
