// Package ledger is the single choke point through which the pipeline touches
// user balances. Every mutation is reserved under an idempotency key before
// the remote call, so a replayed pipeline run is a no-op rather than a double
// credit.
package ledger

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/internal/app/logger"
	"settlement/pkg/balances"
)

const (
	opCredit       = "credit"
	opDebit        = "debit"
	opCompensation = "compensation"
)

// Locker reserves idempotency keys. Acquire returns false when the key is
// already held, meaning the mutation has been applied (or is being applied)
// before.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// BalanceClient is the remote balance-mutation surface.
type BalanceClient interface {
	Credit(ctx context.Context, in *balances.MutationRequest) error
	Debit(ctx context.Context, in *balances.MutationRequest) error
}

type Adapter struct {
	locks  Locker
	client BalanceClient
	logger logger.Logger
}

func (a *Adapter) LoggerComponent() string {
	return "Ledger.Adapter"
}

func New(locks Locker, client BalanceClient) *Adapter {
	a := &Adapter{
		locks:  locks,
		client: client,
	}
	a.logger = logger.Global().Component(a)
	return a
}

// Credit adds amount to the user's bucket, at most once per idempotencyKey.
func (a *Adapter) Credit(ctx context.Context, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error {
	return a.mutate(ctx, opCredit, userID, amount, asset, bucket, idempotencyKey, meta)
}

// Debit removes amount from the user's bucket, at most once per
// idempotencyKey. Returns apperr.ErrInsufficientFunds when the balance cannot
// cover the amount.
func (a *Adapter) Debit(ctx context.Context, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error {
	return a.mutate(ctx, opDebit, userID, amount, asset, bucket, idempotencyKey, meta)
}

// Compensate credits back a previously debited withdrawal. Guarded under its
// own key so cancelling an already-cancelled withdrawal never credits twice.
func (a *Adapter) Compensate(ctx context.Context, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error {
	return a.mutate(ctx, opCompensation, userID, amount, asset, bucket, idempotencyKey, meta)
}

func (a *Adapter) mutate(ctx context.Context, op, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error {
	l := a.logger.With().
		Str("op", op).
		Str("user_id", userID).
		Str("idempotency_key", idempotencyKey).
		Logger()

	key := fmt.Sprintf("ledger:%s:%s", idempotencyKey, op)

	ok, err := a.locks.Acquire(ctx, key)
	if err != nil {
		// Cannot guarantee at-most-once without the reservation; refuse the
		// mutation and let the error boundary handle it.
		return pkgerrors.Wrap(err, "idempotency reserve")
	}
	if !ok {
		l.Info().Msg("Mutation already applied, skipping")
		return nil
	}

	in := &balances.MutationRequest{
		UserID:         userID,
		Amount:         amount.String(),
		Asset:          asset,
		Bucket:         bucket,
		IdempotencyKey: idempotencyKey,
		Meta:           meta,
	}

	if op == opDebit {
		err = a.client.Debit(ctx, in)
	} else {
		err = a.client.Credit(ctx, in)
	}
	if err != nil {
		if relErr := a.locks.Release(ctx, key); relErr != nil {
			l.Error().Err(relErr).Msg("Idempotency key release failed")
		}
		if errors.Is(err, balances.ErrInsufficientFunds) {
			return apperr.ErrInsufficientFunds
		}
		return pkgerrors.Wrapf(err, "balance %s", op)
	}

	l.Debug().Str("amount", amount.String()).Msg("Mutation applied")

	return nil
}
