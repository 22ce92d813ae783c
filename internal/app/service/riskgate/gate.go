// Package riskgate maps the external risk engine's verdicts onto pipeline
// decisions.
package riskgate

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"settlement/internal/app/logger"
	"settlement/internal/app/model"
	"settlement/pkg/riskengine"
)

// Verdict is the outcome of a risk assessment. Declines are expected business
// outcomes, not errors; Reason carries the engine's reason code.
type Verdict struct {
	Approved bool
	Reason   string
}

func Approved() Verdict {
	return Verdict{Approved: true}
}

func Declined(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Assessor is the remote risk engine surface the gate needs.
type Assessor interface {
	Assess(ctx context.Context, in *riskengine.AssessRequest) (*riskengine.AssessResponse, error)
}

type Gate struct {
	client  Assessor
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  logger.Logger
}

func (g *Gate) LoggerComponent() string {
	return "RiskGate"
}

func New(client Assessor, timeout time.Duration) *Gate {
	g := &Gate{
		client:  client,
		timeout: timeout,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "risk-engine",
	})
	g.logger = logger.Global().Component(g)
	return g
}

// Assess runs the transaction through the risk engine. When the engine is
// unreachable, errors, or the breaker is open, the gate FAILS OPEN to
// Approved: availability of the funding path is prioritized over blocking on
// a risk-engine outage. Every fail-open is logged at error level with
// risk_fail_open=true so the audit trail can account for it.
func (g *Gate) Assess(ctx context.Context, tx *model.Transaction, fields map[string]string) Verdict {
	l := g.logger.With().
		Str("transaction_id", tx.InternalID.String()).
		Str("external_id", tx.ExternalID).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	in := &riskengine.AssessRequest{
		UserID:     tx.UserID,
		ExternalID: tx.ExternalID,
		Provider:   tx.Provider,
		Direction:  string(tx.Direction),
		Amount:     tx.Amount.String(),
		Asset:      tx.Asset,
		Fields:     fields,
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.client.Assess(ctx, in)
	})
	if err != nil {
		l.Error().Err(err).
			Bool("risk_fail_open", true).
			Msg("Risk engine unavailable, failing open to approved")
		return Approved()
	}

	out := res.(*riskengine.AssessResponse)
	if out.Decision == riskengine.DecisionDecline {
		l.Info().Str("reason_code", out.ReasonCode).Msg("Risk declined")
		return Declined(out.ReasonCode)
	}

	return Approved()
}
