package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/internal/app/hooks"
	"settlement/internal/app/logger"
	"settlement/internal/app/model"
	"settlement/internal/app/service/pipeline"
)

// Orchestrator is the pipeline surface the webhook adapter drives.
type Orchestrator interface {
	RunDeposit(ctx context.Context, ev hooks.Event, forced bool) error
	AuthorizeWithdrawal(ctx context.Context, req pipeline.WithdrawalRequest) (*model.Transaction, error)
	CompleteWithdrawal(ctx context.Context, provider, externalID string) (*model.Transaction, error)
	CancelWithdrawal(ctx context.Context, provider, externalID string) (*model.Transaction, error)
	CancelDeposit(ctx context.Context, provider, externalID string) (*model.Transaction, error)
	Transaction(ctx context.Context, provider string, direction model.Direction, externalID string) (*model.Transaction, error)
}

// webhookPayload is the provider wire format shared by the three operations.
// Method embeds the transaction kind, e.g. "CardDeposit" / "CardWithdrawal".
type webhookPayload struct {
	UserID     string            `json:"userId" validate:"required"`
	ExternalID string            `json:"externalTransactionId" validate:"required"`
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency" validate:"required"`
	Provider   string            `json:"providerName"`
	Method     string            `json:"method" validate:"required"`
	Meta       map[string]string `json:"meta,omitempty"`
}

func (p *webhookPayload) direction() model.Direction {
	if strings.Contains(strings.ToLower(p.Method), "withdrawal") {
		return model.DirectionWithdrawal
	}
	return model.DirectionDeposit
}

// webhookResponse is the structured reply every webhook caller gets, never a
// raw error.
type webhookResponse struct {
	Success       bool   `json:"success"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status,omitempty"`
}

const (
	codeInvalidPayload    = "invalid_payload"
	codeUnknownProvider   = "unknown_provider"
	codeFeatureDisabled   = "feature_disabled"
	codeMissingField      = "missing_field"
	codeRiskDeclined      = "risk_declined"
	codeCancelled         = "cancelled"
	codeInsufficientFunds = "insufficient_funds"
	codeNotFound          = "not_found"
	codeInvalidState      = "invalid_state"
	codeInternalError     = "internal_error"
)

type WebhookHandler struct {
	pipeline Orchestrator
}

func NewWebhookHandler(p Orchestrator) *WebhookHandler {
	return &WebhookHandler{pipeline: p}
}

// Authorize starts a transaction: a deposit runs the full deposit sequence,
// a withdrawal runs risk and debit up front.
func (h *WebhookHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Webhook.Authorize")

	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	if payload.direction() == model.DirectionWithdrawal {
		tx, err := h.pipeline.AuthorizeWithdrawal(ctx, pipeline.WithdrawalRequest{
			Provider:   payload.Provider,
			UserID:     payload.UserID,
			ExternalID: payload.ExternalID,
			Amount:     payload.Amount,
			Asset:      payload.Currency,
			Meta:       payload.Meta,
		})
		if err != nil {
			l.Debug().Err(err).Msg("Withdrawal authorize failed")
			writeFailure(w, err)
			return
		}
		writeTransaction(w, tx)
		return
	}

	ev := hooks.Event{
		Network:    payload.Provider,
		UserID:     payload.UserID,
		ExternalID: payload.ExternalID,
		Direction:  model.DirectionDeposit,
		Amount:     payload.Amount,
		Asset:      payload.Currency,
		Meta:       payload.Meta,
	}
	if err := h.pipeline.RunDeposit(ctx, ev, false); err != nil {
		l.Debug().Err(err).Msg("Deposit authorize failed")
		writeFailure(w, err)
		return
	}

	tx, err := h.pipeline.Transaction(ctx, payload.Provider, model.DirectionDeposit, payload.ExternalID)
	if err != nil {
		// Admission stopped the run before a record existed.
		WriteResponse(w, &webhookResponse{Success: false, ErrorCode: codeFeatureDisabled, ErrorMessage: "deposit not admitted"}, http.StatusOK)
		return
	}
	writeTransaction(w, tx)
}

// Transfer completes a previously authorized withdrawal.
func (h *WebhookHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Webhook.Transfer")

	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	if payload.direction() == model.DirectionDeposit {
		// Cash deposits settle at authorization; a transfer call is the
		// provider confirming what already happened.
		tx, err := h.pipeline.Transaction(ctx, payload.Provider, model.DirectionDeposit, payload.ExternalID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeTransaction(w, tx)
		return
	}

	tx, err := h.pipeline.CompleteWithdrawal(ctx, payload.Provider, payload.ExternalID)
	if err != nil {
		l.Debug().Err(err).Msg("Transfer failed")
		writeFailure(w, err)
		return
	}
	writeTransaction(w, tx)
}

// Cancel declines a withdrawal and compensates the debit.
func (h *WebhookHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Webhook.Cancel")

	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	cancel := h.pipeline.CancelWithdrawal
	if payload.direction() == model.DirectionDeposit {
		cancel = h.pipeline.CancelDeposit
	}

	tx, err := cancel(ctx, payload.Provider, payload.ExternalID)
	if err != nil {
		l.Debug().Err(err).Msg("Cancel failed")
		writeFailure(w, err)
		return
	}
	writeTransaction(w, tx)
}

func (h *WebhookHandler) readPayload(w http.ResponseWriter, r *http.Request) (*webhookPayload, bool) {
	payload := &webhookPayload{}
	if err := readBody(r, payload); err != nil {
		WriteResponse(w, &webhookResponse{Success: false, ErrorCode: codeInvalidPayload, ErrorMessage: err.Error()}, http.StatusBadRequest)
		return nil, false
	}

	if payload.Provider == "" {
		payload.Provider = chi.URLParam(r, "provider")
	}

	if msg := validatePayload(payload); msg != "" {
		WriteResponse(w, &webhookResponse{Success: false, ErrorCode: codeInvalidPayload, ErrorMessage: msg}, http.StatusBadRequest)
		return nil, false
	}

	return payload, true
}

func writeTransaction(w http.ResponseWriter, tx *model.Transaction) {
	res := &webhookResponse{
		TransactionID: tx.InternalID.String(),
		Status:        string(tx.Status),
	}
	switch tx.Status {
	case model.StatusDeclined:
		res.ErrorCode = codeRiskDeclined
		res.ErrorMessage = tx.Reason
	case model.StatusCancelled:
		res.ErrorCode = codeCancelled
		res.ErrorMessage = tx.Reason
	case model.StatusFailed:
		res.ErrorCode = codeInternalError
		if tx.Reason == codeInsufficientFunds {
			res.ErrorCode = codeInsufficientFunds
		}
		res.ErrorMessage = tx.Reason
	default:
		res.Success = true
	}
	WriteResponse(w, res, http.StatusOK)
}

func writeFailure(w http.ResponseWriter, err error) {
	res := &webhookResponse{Success: false, ErrorMessage: err.Error()}
	status := http.StatusOK

	switch {
	case errors.Is(err, apperr.ErrUnknownNetwork):
		res.ErrorCode = codeUnknownProvider
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrFeatureDisabled):
		res.ErrorCode = codeFeatureDisabled
	case errors.Is(err, apperr.ErrMissingField), errors.Is(err, apperr.ErrInvalidInput):
		res.ErrorCode = codeMissingField
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrInsufficientFunds):
		res.ErrorCode = codeInsufficientFunds
	case errors.Is(err, apperr.ErrNotFound):
		res.ErrorCode = codeNotFound
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidTransition):
		res.ErrorCode = codeInvalidState
		status = http.StatusConflict
	default:
		res.ErrorCode = codeInternalError
		status = http.StatusInternalServerError
	}

	WriteResponse(w, res, status)
}
