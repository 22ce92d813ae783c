package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/pkg/balances"
)

type stubLocker struct {
	held     map[string]bool
	released []string
	err      error
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: make(map[string]bool)}
}

func (s *stubLocker) Acquire(ctx context.Context, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.held[key] {
		return false, nil
	}
	s.held[key] = true
	return true, nil
}

func (s *stubLocker) Release(ctx context.Context, key string) error {
	delete(s.held, key)
	s.released = append(s.released, key)
	return nil
}

type stubBalances struct {
	credits int
	debits  int
	err     error
}

func (s *stubBalances) Credit(ctx context.Context, in *balances.MutationRequest) error {
	if s.err != nil {
		return s.err
	}
	s.credits++
	return nil
}

func (s *stubBalances) Debit(ctx context.Context, in *balances.MutationRequest) error {
	if s.err != nil {
		return s.err
	}
	s.debits++
	return nil
}

var amount = decimal.NewFromInt(100)

func TestCreditAppliedOncePerKey(t *testing.T) {
	client := &stubBalances{}
	a := New(newStubLocker(), client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := a.Credit(ctx, "user-1", amount, "BTC", "main", "tx-1", nil); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	if client.credits != 1 {
		t.Fatalf("remote credits = %d, want 1", client.credits)
	}
}

func TestCreditAndCompensationUseSeparateKeys(t *testing.T) {
	client := &stubBalances{}
	a := New(newStubLocker(), client)
	ctx := context.Background()

	if err := a.Debit(ctx, "user-1", amount, "USD", "main", "wd-1", nil); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := a.Compensate(ctx, "user-1", amount, "USD", "main", "wd-1", nil); err != nil {
		t.Fatalf("compensate: %v", err)
	}
	if err := a.Compensate(ctx, "user-1", amount, "USD", "main", "wd-1", nil); err != nil {
		t.Fatalf("duplicate compensate: %v", err)
	}

	if client.debits != 1 || client.credits != 1 {
		t.Fatalf("debits=%d credits=%d, want 1 and 1", client.debits, client.credits)
	}
}

func TestFailedMutationReleasesReservation(t *testing.T) {
	locks := newStubLocker()
	client := &stubBalances{err: errors.New("remote down")}
	a := New(locks, client)
	ctx := context.Background()

	if err := a.Credit(ctx, "user-1", amount, "BTC", "main", "tx-1", nil); err == nil {
		t.Fatal("expected error")
	}
	if len(locks.released) != 1 {
		t.Fatalf("released = %d, want 1", len(locks.released))
	}

	// Retry succeeds once the remote is back.
	client.err = nil
	if err := a.Credit(ctx, "user-1", amount, "BTC", "main", "tx-1", nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if client.credits != 1 {
		t.Fatalf("remote credits = %d, want 1", client.credits)
	}
}

func TestDebitMapsInsufficientFunds(t *testing.T) {
	client := &stubBalances{err: balances.ErrInsufficientFunds}
	a := New(newStubLocker(), client)

	err := a.Debit(context.Background(), "user-1", amount, "USD", "main", "wd-1", nil)
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestLockerFailureRefusesMutation(t *testing.T) {
	locks := newStubLocker()
	locks.err = errors.New("redis down")
	client := &stubBalances{}
	a := New(locks, client)

	if err := a.Credit(context.Background(), "user-1", amount, "BTC", "main", "tx-1", nil); err == nil {
		t.Fatal("expected error when reservation is impossible")
	}
	if client.credits != 0 {
		t.Fatalf("remote credits = %d, want 0", client.credits)
	}
}
