package deposit

import (
	"strings"

	"github.com/pixa-pay/pixa_pay/internal/ledger"
)

// NormalizeStatus maps the provider's status vocabulary to the internal
// transaction state. The second return is false for unrecognized text, in
// which case the caller must leave the current status untouched.
func NormalizeStatus(raw string) (ledger.Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED", "PAID", "CONFIRMED":
		return ledger.StatusCompleted, true
	case "PENDING":
		return ledger.StatusPending, true
	case "FAILED":
		return ledger.StatusFailed, true
	case "CANCELED", "CANCELLED":
		return ledger.StatusCanceled, true
	}
	return "", false
}
