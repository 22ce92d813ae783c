// Package hooks is the extension point for provider-specific behavior: each
// supported crypto network or cash provider implements Hook, and the pipeline
// orchestrates a fixed sequence against it. Adding a network means adding an
// implementation and registering it, not touching the orchestrator.
package hooks

import (
	"context"

	"github.com/shopspring/decimal"

	"settlement/internal/app/model"
	"settlement/internal/app/service/riskgate"
)

// Event is one inbound funding event as seen by the pipeline, already
// translated from the ingress wire format.
type Event struct {
	Network       string
	UserID        string
	ExternalID    string
	Direction     model.Direction
	Amount        decimal.Decimal
	Asset         string
	Confirmations int
	Meta          map[string]string
}

// Hook is the capability set a network or provider supplies to the pipeline.
type Hook interface {
	// Network this hook serves; the registry key.
	Network() string
	// Validate is the admission check. A nil error admits the event;
	// apperr.ErrFeatureDisabled and apperr.ErrMissingField reject it as a
	// business condition rather than a failure.
	Validate(ctx context.Context, ev Event) error
	// Start builds the transaction record for the store.
	Start(ev Event) *model.Transaction
	// CheckConfirmations reports the current confirmation count for the
	// event's transaction.
	CheckConfirmations(ctx context.Context, ev Event, tx *model.Transaction) (int, error)
	// Risk assesses the transaction.
	Risk(ctx context.Context, tx *model.Transaction) riskgate.Verdict
	// Complete is called after the transaction is marked completed, before
	// the ledger credit, for provider-specific finalization.
	Complete(ctx context.Context, tx *model.Transaction) error
	// PostProcess runs fire-and-continue side effects (notifications,
	// analytics). Errors are logged by the pipeline and never unwind the
	// completed transaction.
	PostProcess(ctx context.Context, tx *model.Transaction) error
	// OnError is the error boundary for a failed pipeline run.
	OnError(ctx context.Context, ev Event, err error)
}

// FeatureChecker answers feature-flag lookups for admission checks.
type FeatureChecker interface {
	FeatureEnabled(ctx context.Context, userID, feature string) (bool, error)
}

// Notifier delivers user notifications from post-processing.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, event string, payload map[string]string) error
}

// Assessor is the shared risk gate the hooks delegate to.
type Assessor interface {
	Assess(ctx context.Context, tx *model.Transaction, fields map[string]string) riskgate.Verdict
}
