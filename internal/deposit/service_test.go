package deposit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/pixa-pay/pixa_pay/internal/gateway"
	"github.com/pixa-pay/pixa_pay/internal/ledger"
)

// failingGateway rejects every charge with the given error.
type failingGateway struct {
	err error
}

func (g failingGateway) OpenCharge(context.Context, gateway.ChargeRequest) (gateway.Charge, error) {
	return gateway.Charge{}, g.err
}

// recordingGateway captures the last charge request.
type recordingGateway struct {
	last gateway.ChargeRequest
}

func (g *recordingGateway) OpenCharge(_ context.Context, req gateway.ChargeRequest) (gateway.Charge, error) {
	g.last = req
	return gateway.StaticGateway{}.OpenCharge(context.Background(), req)
}

func newTestService(t *testing.T, store ledger.Store, gw gateway.Gateway) *Service {
	t.Helper()
	svc, err := NewService(store, gw, Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestInitiateCreatesPendingTransaction(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	gw := &recordingGateway{}
	svc := newTestService(t, store, gw)

	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	res, err := svc.Initiate(ctx, InitiateInput{
		AccountID:        acct.ID,
		AmountMinorUnits: 5_000,
		Customer:         gateway.Customer{Name: "Ana", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if res.Status != ledger.StatusPending {
		t.Fatalf("expected PENDING, got %s", res.Status)
	}
	if res.ProviderReference == "" {
		t.Fatal("expected a provider reference")
	}
	if gw.last.ExternalReference != ExternalReference(acct.ID) {
		t.Fatalf("expected external reference %q, got %q", ExternalReference(acct.ID), gw.last.ExternalReference)
	}

	tx, err := store.FindByProviderReference(ctx, res.ProviderReference)
	if err != nil {
		t.Fatalf("pending transaction not recorded: %v", err)
	}
	if tx.Status != ledger.StatusPending || tx.AmountMinorUnits != 5_000 {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	// No credit before reconciliation.
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 0 {
		t.Fatalf("expected balance 0 before settlement, got %d", balance)
	}
}

func TestInitiateRejectsBelowMinimum(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	if _, err := svc.Initiate(ctx, InitiateInput{AccountID: acct.ID, AmountMinorUnits: 99}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestInitiateUnknownAccount(t *testing.T) {
	svc := newTestService(t, ledger.NewInMemory(), gateway.StaticGateway{})
	_, err := svc.Initiate(context.Background(), InitiateInput{AccountID: uuid.NewString(), AmountMinorUnits: 5_000})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestInitiateGatewayFailureCreatesNothing(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	gwErr := &gateway.Error{HTTPStatus: 503, Body: []byte(`{"error":"down"}`)}
	svc := newTestService(t, store, failingGateway{err: gwErr})
	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	_, err := svc.Initiate(ctx, InitiateInput{AccountID: acct.ID, AmountMinorUnits: 5_000})
	var gotErr *gateway.Error
	if !errors.As(err, &gotErr) || gotErr.HTTPStatus != 503 {
		t.Fatalf("expected gateway error to propagate, got %v", err)
	}

	txs, _ := store.ListTransactions(ctx, acct.ID, 10)
	if len(txs) != 0 {
		t.Fatalf("expected no local transaction on gateway failure, got %d", len(txs))
	}
}

func TestDirectCredit(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	tx, balance, err := svc.DirectCredit(ctx, acct.ID, 1_500, "Deposit (mock)")
	if err != nil {
		t.Fatalf("direct credit: %v", err)
	}
	if tx.Status != ledger.StatusCompleted || tx.Kind != ledger.KindDeposit {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if balance != 1_500 {
		t.Fatalf("expected balance 1500, got %d", balance)
	}

	if _, _, err := svc.DirectCredit(ctx, acct.ID, 0, "zero"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestGrantBonus(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	tx, balance, err := svc.GrantBonus(ctx, acct.ID, 2_000, "Welcome bonus")
	if err != nil {
		t.Fatalf("grant bonus: %v", err)
	}
	if tx.Kind != ledger.KindBonus || tx.Status != ledger.StatusCompleted {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if balance != 2_000 {
		t.Fatalf("expected balance 2000, got %d", balance)
	}
}

func TestBalanceAndHistory(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, gateway.StaticGateway{})
	acct, _ := store.CreateAccount(ctx, uuid.NewString())

	ledger.SeedBalance(store, acct.ID, 7_500)
	balance, err := svc.Balance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 7_500 {
		t.Fatalf("expected balance 7500, got %d", balance)
	}

	if _, err := svc.Balance(ctx, uuid.NewString()); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := svc.DirectCredit(ctx, acct.ID, 100, "Deposit (mock)"); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	txs, err := svc.History(ctx, acct.ID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions with limit 2, got %d", len(txs))
	}
}
