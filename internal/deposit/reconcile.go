package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/pixa-pay/pixa_pay/internal/ledger"
	"github.com/pixa-pay/pixa_pay/internal/notification"
)

// Notification is the validated shape of an inbound provider webhook.
// Status is required; the other fields are optional and drive the two
// resolution paths.
type Notification struct {
	ProviderReference string
	Status            string
	AmountMinorUnits  int64
	ExternalReference string
}

// Outcome classifies what a notification did to local state. Every outcome
// except a returned error must be acknowledged to the provider so it stops
// redelivering.
type Outcome string

const (
	// OutcomeApplied: the transaction transitioned; a credit was applied if
	// the new status is COMPLETED.
	OutcomeApplied Outcome = "applied"
	// OutcomeRecovered: no local transaction existed; a COMPLETED one was
	// created for the account recovered from the external reference.
	OutcomeRecovered Outcome = "recovered"
	// OutcomeAlreadyApplied: duplicate delivery, state unchanged.
	OutcomeAlreadyApplied Outcome = "already_applied"
	// OutcomeTerminal: the transaction is final and the notification
	// contradicts it; treated as stale and ignored.
	OutcomeTerminal Outcome = "terminal"
	// OutcomeUnchanged: unrecognized status text, nothing touched.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeUnmatched: nothing actionable could be resolved.
	OutcomeUnmatched Outcome = "unmatched"
)

// ApplyNotification resolves a provider notification to local state and
// applies at most one idempotent transition. It is safe under concurrent and
// duplicated deliveries: the store's compare-and-swap and the unique provider
// reference constraint guarantee a single credit per transaction.
//
// A non-nil error means the decision could not be persisted; the caller must
// fail the delivery so the provider retries.
func (s *Service) ApplyNotification(ctx context.Context, n Notification) (Outcome, error) {
	if n.ProviderReference != "" {
		tx, err := s.store.FindByProviderReference(ctx, n.ProviderReference)
		switch {
		case err == nil:
			return s.reconcileTransaction(ctx, tx, n)
		case !errors.Is(err, ledger.ErrTransactionNotFound):
			s.metrics.ObserveReconciliation("error")
			return "", fmt.Errorf("%w: lookup %s: %v", ErrReconciliation, n.ProviderReference, err)
		}
	}
	return s.reconcileFallback(ctx, n)
}

func (s *Service) reconcileTransaction(ctx context.Context, tx ledger.Transaction, n Notification) (Outcome, error) {
	next, known := NormalizeStatus(n.Status)
	if !known {
		s.logger.Warn("unrecognized provider status", "status", n.Status, "provider_reference", tx.ProviderReference)
		s.metrics.ObserveReconciliation(string(OutcomeUnchanged))
		return OutcomeUnchanged, nil
	}

	if next == tx.Status {
		s.metrics.ObserveReconciliation(string(OutcomeAlreadyApplied))
		return OutcomeAlreadyApplied, nil
	}

	if tx.Status.Terminal() {
		s.logger.Warn("stale notification for settled transaction",
			"provider_reference", tx.ProviderReference, "current", tx.Status, "reported", next)
		s.metrics.ObserveReconciliation(string(OutcomeTerminal))
		return OutcomeTerminal, nil
	}

	res, err := s.store.SettleFrom(ctx, tx.ID, tx.Status, next)
	if err != nil {
		s.metrics.ObserveReconciliation("error")
		return "", fmt.Errorf("%w: settle %s: %v", ErrReconciliation, tx.ID, err)
	}
	if !res.Applied {
		// Lost a race against a concurrent delivery; classify by the state
		// that won.
		if res.Status == next {
			s.metrics.ObserveReconciliation(string(OutcomeAlreadyApplied))
			return OutcomeAlreadyApplied, nil
		}
		s.metrics.ObserveReconciliation(string(OutcomeTerminal))
		return OutcomeTerminal, nil
	}

	s.notifySettled(ctx, tx.AccountID, tx.AmountMinorUnits, next)
	s.metrics.ObserveReconciliation(string(OutcomeApplied))
	return OutcomeApplied, nil
}

// reconcileFallback handles notifications with no matching local transaction.
// When the external reference recovers an account and the provider reports
// completion, the credit is recorded here so a deposit whose initiating write
// never landed locally is not lost.
func (s *Service) reconcileFallback(ctx context.Context, n Notification) (Outcome, error) {
	accountID, ok := ParseExternalReference(n.ExternalReference)
	if !ok {
		s.logger.Warn("notification resolved nothing",
			"provider_reference", n.ProviderReference, "external_reference", n.ExternalReference)
		s.metrics.ObserveReconciliation(string(OutcomeUnmatched))
		return OutcomeUnmatched, nil
	}

	next, known := NormalizeStatus(n.Status)
	if !known || next != ledger.StatusCompleted {
		s.metrics.ObserveReconciliation(string(OutcomeUnmatched))
		return OutcomeUnmatched, nil
	}
	if n.AmountMinorUnits <= 0 {
		s.logger.Warn("completion notification without usable amount", "external_reference", n.ExternalReference)
		s.metrics.ObserveReconciliation(string(OutcomeUnmatched))
		return OutcomeUnmatched, nil
	}

	_, _, err := s.store.CreditAccount(ctx, accountID, ledger.KindDeposit, n.AmountMinorUnits, n.ProviderReference, "PIX deposit recovered from notification")
	switch {
	case errors.Is(err, ledger.ErrDuplicateReference):
		// A concurrent or earlier delivery already created the transaction.
		s.metrics.ObserveReconciliation(string(OutcomeAlreadyApplied))
		return OutcomeAlreadyApplied, nil
	case errors.Is(err, ledger.ErrAccountNotFound):
		s.logger.Warn("external reference names unknown account", "account_id", accountID)
		s.metrics.ObserveReconciliation(string(OutcomeUnmatched))
		return OutcomeUnmatched, nil
	case err != nil:
		s.metrics.ObserveReconciliation("error")
		return "", fmt.Errorf("%w: fallback credit for account %s: %v", ErrReconciliation, accountID, err)
	}

	s.notifySettled(ctx, accountID, n.AmountMinorUnits, ledger.StatusCompleted)
	s.metrics.ObserveReconciliation(string(OutcomeRecovered))
	return OutcomeRecovered, nil
}

func (s *Service) notifySettled(ctx context.Context, accountID string, amount int64, status ledger.Status) {
	if s.notifier == nil {
		return
	}
	kind := notification.KindDepositFailed
	body := fmt.Sprintf("Your deposit of %d did not complete (%s)", amount, status)
	if status == ledger.StatusCompleted {
		kind = notification.KindDepositCredited
		body = fmt.Sprintf("Your deposit of %d was credited", amount)
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: accountID, Body: body})
}
