// Package pipeline drives a transaction from ingress to terminal state. Both
// ingress adapters (queue consumer and webhook handlers) run their events
// through the same orchestrator, so everything here must be safe under
// duplicate delivery and out-of-order confirmation updates.
package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/internal/app/hooks"
	"settlement/internal/app/logger"
	"settlement/internal/app/model"
	"settlement/internal/app/service/confirmgate"
	"settlement/internal/app/storage"
)

// bucketMain is the balance bucket funding events settle into.
const bucketMain = "main"

// Ledger is the balance-mutation choke point the pipeline writes through.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error
	Debit(ctx context.Context, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error
	Compensate(ctx context.Context, userID string, amount decimal.Decimal, asset, bucket, idempotencyKey string, meta map[string]string) error
}

type Pipeline struct {
	store    storage.TransactionRepository
	registry *hooks.Registry
	confirms *confirmgate.Gate
	ledger   Ledger
	logger   logger.Logger
}

func (p *Pipeline) LoggerComponent() string {
	return "Pipeline"
}

func New(store storage.TransactionRepository, registry *hooks.Registry, confirms *confirmgate.Gate, ledger Ledger) *Pipeline {
	p := &Pipeline{
		store:    store,
		registry: registry,
		confirms: confirms,
		ledger:   ledger,
	}
	p.logger = logger.Global().Component(p)
	return p
}

// RunDeposit runs one deposit event through the full sequence. Safe to call
// any number of times for the same event: repeated deliveries short-circuit
// on the stored record. Errors have already been routed to the hook's error
// boundary when this returns; the caller decides about redelivery.
func (p *Pipeline) RunDeposit(ctx context.Context, ev hooks.Event, forced bool) error {
	hook, err := p.registry.Resolve(ev.Network)
	if err != nil {
		return err
	}

	if err := p.runDeposit(ctx, hook, ev, forced); err != nil {
		hook.OnError(ctx, ev, err)
		return err
	}

	return nil
}

func (p *Pipeline) runDeposit(ctx context.Context, hook hooks.Hook, ev hooks.Event, forced bool) error {
	l := p.logger.With().
		Str("network", ev.Network).
		Str("external_id", ev.ExternalID).
		Logger()

	// 1. Admission.
	if err := hook.Validate(ctx, ev); err != nil {
		if errors.Is(err, apperr.ErrFeatureDisabled) || errors.Is(err, apperr.ErrMissingField) {
			l.Debug().Err(err).Msg("Deposit not admitted")
			return nil
		}
		return errors.Wrap(err, "validate")
	}

	// 2. Start. Duplicate delivery of a settled deposit stops here.
	tx, existed, err := p.store.Create(ctx, hook.Start(ev))
	if err != nil {
		return errors.Wrap(err, "create")
	}
	if existed && tx.Status == model.StatusCompleted && !forced {
		l.Debug().Msg("Duplicate delivery for settled transaction, skipping")
		return nil
	}
	if existed && tx.Status.Terminal() && tx.Status != model.StatusCompleted {
		l.Debug().Str("status", string(tx.Status)).Msg("Transaction already terminal, skipping")
		return nil
	}

	// 3. Confirmations.
	confirmations, err := hook.CheckConfirmations(ctx, ev, tx)
	if err != nil {
		return errors.Wrap(err, "check confirmations")
	}
	tx, err = p.store.UpdateConfirmations(ctx, tx.InternalID, confirmations)
	if err != nil {
		return errors.Wrap(err, "update confirmations")
	}
	if tx.Status == model.StatusInitiated {
		tx, err = p.store.UpdateStatus(ctx, tx.InternalID, model.StatusPending, "")
		if err != nil {
			return errors.Wrap(err, "mark pending")
		}
	}
	if !p.confirms.Met(tx) {
		l.Debug().
			Int("confirmations", tx.Confirmations).
			Int("required", p.confirms.Required(tx.Asset)).
			Msg("Awaiting confirmations")
		return nil
	}

	// 4. Risk. A forced reprocess still goes through the gate, but a settled
	// transaction cannot be unwound by a late decline; that mismatch is an
	// audit problem, not a state change.
	verdict := hook.Risk(ctx, tx)
	if !verdict.Approved {
		if tx.Status == model.StatusCompleted {
			l.Error().
				Str("reason", verdict.Reason).
				Msg("Risk declined an already settled transaction")
			return nil
		}
		if _, err := p.store.UpdateStatus(ctx, tx.InternalID, model.StatusDeclined, verdict.Reason); err != nil {
			return errors.Wrap(err, "mark declined")
		}
		l.Info().Str("reason", verdict.Reason).Msg("Deposit declined by risk")
		return nil
	}

	// 5. Complete, then credit at most once. The ledger guard makes a replay
	// of this step a no-op, which is what makes forced reprocess safe.
	if tx.Status != model.StatusCompleted {
		tx, err = p.store.UpdateStatus(ctx, tx.InternalID, model.StatusCompleted, "")
		if err != nil {
			return errors.Wrap(err, "mark completed")
		}
	}
	if err := hook.Complete(ctx, tx); err != nil {
		return errors.Wrap(err, "complete hook")
	}
	if err := p.ledger.Credit(ctx, tx.UserID, tx.Amount, tx.Asset, bucketMain, tx.InternalID.String(), creditMeta(tx)); err != nil {
		// The record stays completed. Recovery is the adapter's retry or an
		// operator reprocess, both safe under the ledger guard; re-running
		// the whole pipeline on redelivery would risk a double credit.
		return errors.Wrap(err, "credit")
	}

	// 6. Post-processing never unwinds a settled deposit.
	if err := hook.PostProcess(ctx, tx); err != nil {
		l.Warn().Err(err).Msg("Post-processing failed")
	}

	return nil
}

// Reprocess re-runs the deposit sequence for a stored transaction, bypassing
// the settled short-circuit. Operator recovery path: still risk-gated, still
// at most one ledger credit.
func (p *Pipeline) Reprocess(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	tx, err := p.store.FindByExternalID(ctx, provider, model.DirectionDeposit, externalID)
	if err != nil {
		return nil, err
	}

	ev := hooks.Event{
		Network:       tx.Provider,
		UserID:        tx.UserID,
		ExternalID:    tx.ExternalID,
		Direction:     model.DirectionDeposit,
		Amount:        tx.Amount,
		Asset:         tx.Asset,
		Confirmations: tx.Confirmations,
		Meta:          tx.Meta,
	}

	if err := p.RunDeposit(ctx, ev, true); err != nil {
		return nil, err
	}

	return p.store.FindByExternalID(ctx, provider, model.DirectionDeposit, externalID)
}

// CancelDeposit moves a not-yet-settled deposit to cancelled. A settled
// deposit cannot be cancelled (terminal immutability); a duplicate cancel is
// a no-op.
func (p *Pipeline) CancelDeposit(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	tx, err := p.store.FindByExternalID(ctx, provider, model.DirectionDeposit, externalID)
	if err != nil {
		return nil, err
	}
	if tx.Status == model.StatusCancelled || tx.Status == model.StatusDeclined {
		return tx, nil
	}
	return p.store.UpdateStatus(ctx, tx.InternalID, model.StatusCancelled, reasonProviderCancelled)
}

// Transaction looks up a stored transaction for inspection.
func (p *Pipeline) Transaction(ctx context.Context, provider string, direction model.Direction, externalID string) (*model.Transaction, error) {
	return p.store.FindByExternalID(ctx, provider, direction, externalID)
}

func creditMeta(tx *model.Transaction) map[string]string {
	return map[string]string{
		"provider":    tx.Provider,
		"external_id": tx.ExternalID,
		"direction":   string(tx.Direction),
	}
}
