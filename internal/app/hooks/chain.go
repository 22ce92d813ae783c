package hooks

import (
	"context"

	"settlement/internal/app/apperr"
	"settlement/internal/app/logger"
	"settlement/internal/app/model"
	"settlement/internal/app/service/riskgate"
)

const featureCryptoDeposits = "crypto_deposits"

// chainHook carries the behavior shared by all crypto-network hooks; the
// per-network types only pin the network name and default asset.
type chainHook struct {
	network string
	asset   string

	features FeatureChecker
	risk     Assessor
	notifier Notifier
	logger   logger.Logger
}

func newChainHook(network, asset string, features FeatureChecker, risk Assessor, notifier Notifier) chainHook {
	return chainHook{
		network:  network,
		asset:    asset,
		features: features,
		risk:     risk,
		notifier: notifier,
		logger:   logger.Global().WithComponent("Hook." + network),
	}
}

func (h *chainHook) Network() string {
	return h.network
}

func (h *chainHook) Validate(ctx context.Context, ev Event) error {
	if ev.ExternalID == "" || ev.UserID == "" {
		return apperr.ErrMissingField
	}
	if ev.Amount.IsNegative() {
		return apperr.ErrInvalidInput
	}

	enabled, err := h.features.FeatureEnabled(ctx, ev.UserID, featureCryptoDeposits)
	if err != nil {
		return err
	}
	if !enabled {
		return apperr.ErrFeatureDisabled
	}

	return nil
}

func (h *chainHook) Start(ev Event) *model.Transaction {
	asset := ev.Asset
	if asset == "" {
		asset = h.asset
	}
	return &model.Transaction{
		ExternalID:    ev.ExternalID,
		UserID:        ev.UserID,
		Direction:     model.DirectionDeposit,
		Provider:      h.network,
		Amount:        ev.Amount,
		Asset:         asset,
		Confirmations: ev.Confirmations,
		Meta:          ev.Meta,
	}
}

// CheckConfirmations reports the count carried by the event. The on-chain
// monitor upstream re-emits the event as the count grows, so the freshest
// delivery wins; the store keeps the value monotonic.
func (h *chainHook) CheckConfirmations(ctx context.Context, ev Event, tx *model.Transaction) (int, error) {
	if ev.Confirmations > tx.Confirmations {
		return ev.Confirmations, nil
	}
	return tx.Confirmations, nil
}

func (h *chainHook) Risk(ctx context.Context, tx *model.Transaction) riskgate.Verdict {
	fields := map[string]string{
		"network": h.network,
	}
	if txHash, ok := tx.Meta["tx_hash"]; ok {
		fields["tx_hash"] = txHash
	}
	return h.risk.Assess(ctx, tx, fields)
}

func (h *chainHook) Complete(ctx context.Context, tx *model.Transaction) error {
	return nil
}

func (h *chainHook) PostProcess(ctx context.Context, tx *model.Transaction) error {
	return h.notifier.NotifyUser(ctx, tx.UserID, "deposit_completed", map[string]string{
		"external_id": tx.ExternalID,
		"amount":      tx.Amount.String(),
		"asset":       tx.Asset,
	})
}

func (h *chainHook) OnError(ctx context.Context, ev Event, err error) {
	h.logger.Error().Err(err).
		Str("external_id", ev.ExternalID).
		Str("user_id", ev.UserID).
		Msg("Deposit pipeline run failed")
}
