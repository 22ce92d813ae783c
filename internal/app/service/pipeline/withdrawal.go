package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/internal/app/hooks"
	"settlement/internal/app/model"
)

const reasonProviderCancelled = "provider_cancelled"

// WithdrawalRequest is a provider webhook translated to pipeline terms.
type WithdrawalRequest struct {
	Provider   string
	UserID     string
	ExternalID string
	Amount     decimal.Decimal
	Asset      string
	Meta       map[string]string
}

// AuthorizeWithdrawal runs the webhook "authorize" sequence: admit, create,
// risk-gate, debit, mark pending. The risk gate runs before any debit; a
// decline never touches the ledger. The returned transaction's status tells
// the adapter what to answer (declined/failed are business outcomes, not
// errors).
func (p *Pipeline) AuthorizeWithdrawal(ctx context.Context, req WithdrawalRequest) (*model.Transaction, error) {
	hook, err := p.registry.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	l := p.logger.With().
		Str("provider", req.Provider).
		Str("external_id", req.ExternalID).
		Logger()

	ev := hooks.Event{
		Network:    req.Provider,
		UserID:     req.UserID,
		ExternalID: req.ExternalID,
		Direction:  model.DirectionWithdrawal,
		Amount:     req.Amount,
		Asset:      req.Asset,
		Meta:       req.Meta,
	}

	if err := hook.Validate(ctx, ev); err != nil {
		return nil, err
	}

	tx, existed, err := p.store.Create(ctx, hook.Start(ev))
	if err != nil {
		return nil, errors.Wrap(err, "create")
	}
	if existed && tx.Status != model.StatusInitiated {
		// Duplicate authorize call; the first run already advanced the record.
		l.Debug().Str("status", string(tx.Status)).Msg("Duplicate authorize, returning stored state")
		return tx, nil
	}

	verdict := hook.Risk(ctx, tx)
	if !verdict.Approved {
		tx, err = p.store.UpdateStatus(ctx, tx.InternalID, model.StatusDeclined, verdict.Reason)
		if err != nil {
			return nil, errors.Wrap(err, "mark declined")
		}
		l.Info().Str("reason", verdict.Reason).Msg("Withdrawal declined by risk")
		return tx, nil
	}

	if err := p.ledger.Debit(ctx, tx.UserID, tx.Amount, tx.Asset, bucketMain, tx.InternalID.String(), creditMeta(tx)); err != nil {
		reason := "ledger_error"
		if errors.Is(err, apperr.ErrInsufficientFunds) {
			reason = "insufficient_funds"
		}
		if _, ferr := p.store.UpdateStatus(ctx, tx.InternalID, model.StatusFailed, reason); ferr != nil {
			l.Error().Err(ferr).Msg("Failed to mark transaction failed after debit error")
		}
		hook.OnError(ctx, ev, err)
		return nil, err
	}

	tx, err = p.store.UpdateStatus(ctx, tx.InternalID, model.StatusPending, "")
	if err != nil {
		return nil, errors.Wrap(err, "mark pending")
	}

	if err := hook.PostProcess(ctx, tx); err != nil {
		l.Warn().Err(err).Msg("Post-processing failed")
	}

	return tx, nil
}

// CompleteWithdrawal handles the provider's "transfer" webhook. A duplicate
// call on an already-completed withdrawal is a detected no-op.
func (p *Pipeline) CompleteWithdrawal(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	hook, err := p.registry.Resolve(provider)
	if err != nil {
		return nil, err
	}

	tx, err := p.store.FindByExternalID(ctx, provider, model.DirectionWithdrawal, externalID)
	if err != nil {
		return nil, err
	}
	if tx.Status == model.StatusCompleted {
		p.logger.Debug().
			Str("external_id", externalID).
			Msg("Duplicate transfer for completed withdrawal, skipping")
		return tx, nil
	}

	tx, err = p.store.UpdateStatus(ctx, tx.InternalID, model.StatusCompleted, "")
	if err != nil {
		return nil, err
	}

	if err := hook.PostProcess(ctx, tx); err != nil {
		p.logger.Warn().Err(err).Msg("Post-processing failed")
	}

	return tx, nil
}

// CancelWithdrawal handles the provider's "cancel" webhook: the withdrawal
// moves to declined and the debited amount is credited back exactly once.
func (p *Pipeline) CancelWithdrawal(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	hook, err := p.registry.Resolve(provider)
	if err != nil {
		return nil, err
	}

	tx, err := p.store.FindByExternalID(ctx, provider, model.DirectionWithdrawal, externalID)
	if err != nil {
		return nil, err
	}
	if tx.Status == model.StatusDeclined || tx.Status == model.StatusCancelled {
		// A declined record only exists after its compensation (if any) was
		// applied, so there is nothing left to do.
		p.logger.Debug().
			Str("external_id", externalID).
			Msg("Duplicate cancel for terminal withdrawal, skipping")
		return tx, nil
	}

	// Compensate before the status moves. If the credit fails the record
	// stays pending and the provider's retry runs the whole sequence again;
	// the reservation key makes a replay of an applied compensation a no-op.
	// Only a withdrawal that got past the debit has anything to give back; a
	// cancel racing the authorize leaves the record declined and untouched.
	if tx.Status == model.StatusPending {
		if err := p.ledger.Compensate(ctx, tx.UserID, tx.Amount, tx.Asset, bucketMain, tx.InternalID.String(), creditMeta(tx)); err != nil {
			return nil, errors.Wrap(err, "compensate")
		}
	}

	tx, err = p.store.UpdateStatus(ctx, tx.InternalID, model.StatusDeclined, reasonProviderCancelled)
	if err != nil {
		return nil, err
	}

	if err := hook.PostProcess(ctx, tx); err != nil {
		p.logger.Warn().Err(err).Msg("Post-processing failed")
	}

	return tx, nil
}
