package deposit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/pixa-pay/pixa_pay/internal/gateway"
	"github.com/pixa-pay/pixa_pay/internal/ledger"
)

// brokenStore fails selected operations to exercise persistence error paths.
type brokenStore struct {
	ledger.Store
	failCreatePending bool
	failSettle        bool
	failCredit        bool
}

var errStoreDown = errors.New("store down")

func (s *brokenStore) CreatePending(ctx context.Context, accountID string, kind ledger.Kind, amount int64, providerRef, description string) (ledger.Transaction, error) {
	if s.failCreatePending {
		return ledger.Transaction{}, errStoreDown
	}
	return s.Store.CreatePending(ctx, accountID, kind, amount, providerRef, description)
}

func (s *brokenStore) SettleFrom(ctx context.Context, txID string, from, to ledger.Status) (ledger.SettleResult, error) {
	if s.failSettle {
		return ledger.SettleResult{}, errStoreDown
	}
	return s.Store.SettleFrom(ctx, txID, from, to)
}

func (s *brokenStore) CreditAccount(ctx context.Context, accountID string, kind ledger.Kind, amount int64, providerRef, description string) (ledger.Transaction, int64, error) {
	if s.failCredit {
		return ledger.Transaction{}, 0, errStoreDown
	}
	return s.Store.CreditAccount(ctx, accountID, kind, amount, providerRef, description)
}

func pendingDeposit(t *testing.T, store ledger.Store, amount int64, providerRef string) (ledger.Account, ledger.Transaction) {
	t.Helper()
	ctx := context.Background()
	acct, err := store.CreateAccount(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	tx, err := store.CreatePending(ctx, acct.ID, ledger.KindDeposit, amount, providerRef, "deposit")
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	return acct, tx
}

func TestApplyNotificationCreditsOnceOnCompletion(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := pendingDeposit(t, store, 5_000, "pr-1")

	n := Notification{ProviderReference: "pr-1", Status: "PAID"}

	outcome, err := svc.ApplyNotification(ctx, n)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 5_000 {
		t.Fatalf("expected balance 5000, got %d", balance)
	}

	// Redelivery: same notification must be a no-op.
	outcome, err = svc.ApplyNotification(ctx, n)
	if err != nil {
		t.Fatalf("apply duplicate: %v", err)
	}
	if outcome != OutcomeAlreadyApplied {
		t.Fatalf("expected already_applied, got %s", outcome)
	}
	balance, _ = svc.Balance(ctx, acct.ID)
	if balance != 5_000 {
		t.Fatalf("expected balance unchanged at 5000, got %d", balance)
	}

	tx, _ := store.FindByProviderReference(ctx, "pr-1")
	if tx.Status != ledger.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", tx.Status)
	}
}

func TestApplyNotificationTerminalFinality(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := pendingDeposit(t, store, 5_000, "pr-2")

	if outcome, err := svc.ApplyNotification(ctx, Notification{ProviderReference: "pr-2", Status: "CANCELLED"}); err != nil || outcome != OutcomeApplied {
		t.Fatalf("cancel: outcome=%s err=%v", outcome, err)
	}

	// A later contradictory completion is stale, not an error.
	outcome, err := svc.ApplyNotification(ctx, Notification{ProviderReference: "pr-2", Status: "COMPLETED"})
	if err != nil {
		t.Fatalf("apply stale: %v", err)
	}
	if outcome != OutcomeTerminal {
		t.Fatalf("expected terminal, got %s", outcome)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 0 {
		t.Fatalf("expected no credit after cancellation, got %d", balance)
	}
	tx, _ := store.FindByProviderReference(ctx, "pr-2")
	if tx.Status != ledger.StatusCanceled {
		t.Fatalf("expected CANCELED to stick, got %s", tx.Status)
	}
}

func TestApplyNotificationUnknownStatusLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := pendingDeposit(t, store, 5_000, "pr-3")

	outcome, err := svc.ApplyNotification(ctx, Notification{ProviderReference: "pr-3", Status: "IN_ANALYSIS"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %s", outcome)
	}

	tx, _ := store.FindByProviderReference(ctx, "pr-3")
	if tx.Status != ledger.StatusPending {
		t.Fatalf("expected PENDING, got %s", tx.Status)
	}
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 0 {
		t.Fatalf("expected no credit, got %d", balance)
	}
}

func TestApplyNotificationPendingDuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	pendingDeposit(t, store, 5_000, "pr-4")

	outcome, err := svc.ApplyNotification(ctx, Notification{ProviderReference: "pr-4", Status: "PENDING"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome != OutcomeAlreadyApplied {
		t.Fatalf("expected already_applied, got %s", outcome)
	}
}

func TestApplyNotificationUnresolvableIsAcknowledged(t *testing.T) {
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})

	outcome, err := svc.ApplyNotification(context.Background(), Notification{
		ProviderReference: "pr-404",
		Status:            "COMPLETED",
		AmountMinorUnits:  1_000,
		ExternalReference: "wallet-topup-999",
	})
	if err != nil {
		t.Fatalf("expected acknowledgement, got error %v", err)
	}
	if outcome != OutcomeUnmatched {
		t.Fatalf("expected unmatched, got %s", outcome)
	}
}

func TestApplyNotificationFallbackRecoversCredit(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})

	acct, err := store.CreateAccount(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	// No local transaction for pr-404; the external reference points at the
	// account, so the credit is recovered.
	n := Notification{
		ProviderReference: "pr-404",
		Status:            "COMPLETED",
		AmountMinorUnits:  1_000,
		ExternalReference: ExternalReference(acct.ID),
	}
	outcome, err := svc.ApplyNotification(ctx, n)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome != OutcomeRecovered {
		t.Fatalf("expected recovered, got %s", outcome)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 1_000 {
		t.Fatalf("expected balance 1000, got %d", balance)
	}

	tx, err := store.FindByProviderReference(ctx, "pr-404")
	if err != nil {
		t.Fatalf("recovered transaction not recorded: %v", err)
	}
	if tx.Status != ledger.StatusCompleted || tx.AccountID != acct.ID {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	// Redelivery: the unique provider reference suppresses a second credit.
	outcome, err = svc.ApplyNotification(ctx, n)
	if err != nil {
		t.Fatalf("apply duplicate: %v", err)
	}
	if outcome != OutcomeAlreadyApplied {
		t.Fatalf("expected already_applied, got %s", outcome)
	}
	balance, _ = svc.Balance(ctx, acct.ID)
	if balance != 1_000 {
		t.Fatalf("expected balance unchanged at 1000, got %d", balance)
	}
}

func TestApplyNotificationFallbackIgnoresNonCompletion(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	outcome, err := svc.ApplyNotification(ctx, Notification{
		Status:            "FAILED",
		AmountMinorUnits:  1_000,
		ExternalReference: ExternalReference(acct.ID),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome != OutcomeUnmatched {
		t.Fatalf("expected unmatched, got %s", outcome)
	}
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 0 {
		t.Fatalf("expected no credit, got %d", balance)
	}
}

func TestApplyNotificationConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := pendingDeposit(t, store, 5_000, "pr-race")

	n := Notification{ProviderReference: "pr-race", Status: "PAID"}

	const workers = 16
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.ApplyNotification(ctx, n)
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	var applied int
	for outcome := range outcomes {
		if outcome == OutcomeApplied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied outcome, got %d", applied)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 5_000 {
		t.Fatalf("expected exactly one credit of 5000, got %d", balance)
	}
}

func TestApplyNotificationStoreFailureIsAnError(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewInMemory()
	store := &brokenStore{Store: inner, failSettle: true}
	svc := newTestService(t, store, gateway.StaticGateway{})
	pendingDeposit(t, inner, 5_000, "pr-down")

	_, err := svc.ApplyNotification(ctx, Notification{ProviderReference: "pr-down", Status: "PAID"})
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
}

func TestApplyNotificationFallbackStoreFailureIsAnError(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewInMemory()
	store := &brokenStore{Store: inner, failCredit: true}
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := inner.CreateAccount(ctx, uuid.NewString())

	_, err := svc.ApplyNotification(ctx, Notification{
		Status:            "COMPLETED",
		AmountMinorUnits:  1_000,
		ExternalReference: ExternalReference(acct.ID),
	})
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
}

func TestInitiatePersistenceFailure(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewInMemory()
	store := &brokenStore{Store: inner, failCreatePending: true}
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := inner.CreateAccount(ctx, uuid.NewString())

	_, err := svc.Initiate(ctx, InitiateInput{AccountID: acct.ID, AmountMinorUnits: 5_000})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}
