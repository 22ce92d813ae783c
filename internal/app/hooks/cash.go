package hooks

import (
	"context"

	"settlement/internal/app/apperr"
	"settlement/internal/app/logger"
	"settlement/internal/app/model"
	"settlement/internal/app/service/confirmgate"
	"settlement/internal/app/service/riskgate"
)

const (
	featureCashDeposits    = "cash_deposits"
	featureCashWithdrawals = "cash_withdrawals"
)

// Hook interface implementation
var _ Hook = (*CashHook)(nil)

// CashHook serves one cash provider. Cash events settle at authorization, so
// there is no confirmation wait; requiredFields lists the provider-specific
// meta the webhook must carry on withdrawals.
type CashHook struct {
	provider       string
	requiredFields []string

	features FeatureChecker
	risk     Assessor
	notifier Notifier
	confirms *confirmgate.Gate
	logger   logger.Logger
}

func NewCashHook(provider string, requiredFields []string, features FeatureChecker, risk Assessor, notifier Notifier, confirms *confirmgate.Gate) *CashHook {
	return &CashHook{
		provider:       provider,
		requiredFields: requiredFields,
		features:       features,
		risk:           risk,
		notifier:       notifier,
		confirms:       confirms,
		logger:         logger.Global().WithComponent("Hook." + provider),
	}
}

func (h *CashHook) Network() string {
	return h.provider
}

func (h *CashHook) Validate(ctx context.Context, ev Event) error {
	if ev.ExternalID == "" || ev.UserID == "" {
		return apperr.ErrMissingField
	}
	if ev.Amount.IsNegative() {
		return apperr.ErrInvalidInput
	}

	feature := featureCashDeposits
	if ev.Direction == model.DirectionWithdrawal {
		feature = featureCashWithdrawals

		for _, f := range h.requiredFields {
			if ev.Meta[f] == "" {
				h.logger.Debug().Str("field", f).Msg("Required provider field missing")
				return apperr.ErrMissingField
			}
		}
	}

	enabled, err := h.features.FeatureEnabled(ctx, ev.UserID, feature)
	if err != nil {
		return err
	}
	if !enabled {
		return apperr.ErrFeatureDisabled
	}

	return nil
}

func (h *CashHook) Start(ev Event) *model.Transaction {
	return &model.Transaction{
		ExternalID: ev.ExternalID,
		UserID:     ev.UserID,
		Direction:  ev.Direction,
		Provider:   h.provider,
		Amount:     ev.Amount,
		Asset:      ev.Asset,
		Meta:       ev.Meta,
	}
}

// CheckConfirmations reports the threshold as met: the provider has already
// settled the cash leg by the time the webhook arrives, so there is nothing
// to wait for.
func (h *CashHook) CheckConfirmations(ctx context.Context, ev Event, tx *model.Transaction) (int, error) {
	required := h.confirms.Required(tx.Asset)
	if tx.Confirmations > required {
		return tx.Confirmations, nil
	}
	return required, nil
}

func (h *CashHook) Risk(ctx context.Context, tx *model.Transaction) riskgate.Verdict {
	return h.risk.Assess(ctx, tx, map[string]string{
		"provider": h.provider,
	})
}

func (h *CashHook) Complete(ctx context.Context, tx *model.Transaction) error {
	return nil
}

func (h *CashHook) PostProcess(ctx context.Context, tx *model.Transaction) error {
	event := "deposit_completed"
	if tx.Direction == model.DirectionWithdrawal {
		switch tx.Status {
		case model.StatusPending:
			event = "withdrawal_accepted"
		case model.StatusCompleted:
			event = "withdrawal_completed"
		case model.StatusDeclined, model.StatusCancelled:
			event = "withdrawal_cancelled"
		default:
			event = "withdrawal_updated"
		}
	}
	return h.notifier.NotifyUser(ctx, tx.UserID, event, map[string]string{
		"external_id": tx.ExternalID,
		"amount":      tx.Amount.String(),
		"asset":       tx.Asset,
	})
}

func (h *CashHook) OnError(ctx context.Context, ev Event, err error) {
	h.logger.Error().Err(err).
		Str("external_id", ev.ExternalID).
		Str("user_id", ev.UserID).
		Str("direction", string(ev.Direction)).
		Msg("Webhook pipeline run failed")
}
