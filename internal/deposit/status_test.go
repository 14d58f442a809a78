package deposit

import (
	"testing"

	"github.com/pixa-pay/pixa_pay/internal/ledger"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw   string
		want  ledger.Status
		known bool
	}{
		{"COMPLETED", ledger.StatusCompleted, true},
		{"PAID", ledger.StatusCompleted, true},
		{"CONFIRMED", ledger.StatusCompleted, true},
		{"completed", ledger.StatusCompleted, true},
		{"paid", ledger.StatusCompleted, true},
		{"  Confirmed ", ledger.StatusCompleted, true},
		{"PENDING", ledger.StatusPending, true},
		{"pending", ledger.StatusPending, true},
		{"FAILED", ledger.StatusFailed, true},
		{"CANCELED", ledger.StatusCanceled, true},
		{"CANCELLED", ledger.StatusCanceled, true},
		{"cancelled", ledger.StatusCanceled, true},
		{"REFUNDED", "", false},
		{"IN_ANALYSIS", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, known := NormalizeStatus(tc.raw)
		if known != tc.known {
			t.Errorf("NormalizeStatus(%q) known = %v, want %v", tc.raw, known, tc.known)
			continue
		}
		if known && got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestExternalReferenceRoundTrip(t *testing.T) {
	id := "7b2f8f3e-1f44-4be4-9a1c-2a2f9a5d6c01"
	ref := ExternalReference(id)
	if ref != "user-"+id {
		t.Fatalf("unexpected reference %q", ref)
	}

	parsed, ok := ParseExternalReference(ref)
	if !ok || parsed != id {
		t.Fatalf("expected %q to parse back, got %q ok=%v", ref, parsed, ok)
	}

	for _, bad := range []string{"", "user-", "user-77", "wallet-" + id, id} {
		if _, ok := ParseExternalReference(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
