package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"settlement/internal/app/logger"
	"settlement/internal/app/model"
)

type TransactionHandler struct {
	pipeline Orchestrator
}

func NewTransactionHandler(p Orchestrator) *TransactionHandler {
	return &TransactionHandler{pipeline: p}
}

// Get returns the stored transaction for operator inspection; a pending
// record awaiting confirmations is a valid state, not a failure.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Transaction.Get")

	direction := model.Direction(chi.URLParam(r, "direction"))
	if direction != model.DirectionDeposit && direction != model.DirectionWithdrawal {
		WriteResponse(w, &webhookResponse{Success: false, ErrorCode: codeInvalidPayload, ErrorMessage: "direction must be deposit or withdrawal"}, http.StatusBadRequest)
		return
	}

	tx, err := h.pipeline.Transaction(ctx, chi.URLParam(r, "provider"), direction, chi.URLParam(r, "externalID"))
	if err != nil {
		l.Debug().Err(err).Msg("Lookup failed")
		writeFailure(w, err)
		return
	}

	WriteResponse(w, tx, http.StatusOK)
}

type reprocessRequest struct {
	Provider   string `json:"provider" validate:"required"`
	ExternalID string `json:"externalTransactionId" validate:"required"`
}

type AdminHandler struct {
	pipeline Reprocessor
}

// Reprocessor is the operator recovery surface.
type Reprocessor interface {
	Reprocess(ctx context.Context, provider, externalID string) (*model.Transaction, error)
}

func NewAdminHandler(p Reprocessor) *AdminHandler {
	return &AdminHandler{pipeline: p}
}

// Reprocess re-runs the deposit sequence for a stored transaction with the
// settled short-circuit bypassed. Risk and the ledger guard still apply.
func (h *AdminHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Admin.Reprocess")

	req := &reprocessRequest{}
	if err := readBody(r, req); err != nil {
		WriteResponse(w, &webhookResponse{Success: false, ErrorCode: codeInvalidPayload, ErrorMessage: err.Error()}, http.StatusBadRequest)
		return
	}
	if msg := validatePayload(req); msg != "" {
		WriteResponse(w, &webhookResponse{Success: false, ErrorCode: codeInvalidPayload, ErrorMessage: msg}, http.StatusBadRequest)
		return
	}

	l.Info().
		Str("provider", req.Provider).
		Str("external_id", req.ExternalID).
		Msg("Forced reprocess requested")

	tx, err := h.pipeline.Reprocess(ctx, req.Provider, req.ExternalID)
	if err != nil {
		l.Error().Err(err).Msg("Reprocess failed")
		writeFailure(w, err)
		return
	}

	writeTransaction(w, tx)
}
