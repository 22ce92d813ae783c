package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/internal/app/hooks"
	"settlement/internal/app/model"
	"settlement/internal/app/service/pipeline"
)

type stubOrchestrator struct {
	tx  *model.Transaction
	err error

	authorized []pipeline.WithdrawalRequest
	completed  []string
	cancelled  []string
	deposits   []hooks.Event
}

func (s *stubOrchestrator) RunDeposit(ctx context.Context, ev hooks.Event, forced bool) error {
	s.deposits = append(s.deposits, ev)
	return s.err
}

func (s *stubOrchestrator) AuthorizeWithdrawal(ctx context.Context, req pipeline.WithdrawalRequest) (*model.Transaction, error) {
	s.authorized = append(s.authorized, req)
	return s.tx, s.err
}

func (s *stubOrchestrator) CompleteWithdrawal(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	s.completed = append(s.completed, externalID)
	return s.tx, s.err
}

func (s *stubOrchestrator) CancelWithdrawal(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	s.cancelled = append(s.cancelled, externalID)
	return s.tx, s.err
}

func (s *stubOrchestrator) CancelDeposit(ctx context.Context, provider, externalID string) (*model.Transaction, error) {
	s.cancelled = append(s.cancelled, externalID)
	return s.tx, s.err
}

func (s *stubOrchestrator) Transaction(ctx context.Context, provider string, direction model.Direction, externalID string) (*model.Transaction, error) {
	return s.tx, s.err
}

func storedTransaction(status model.Status) *model.Transaction {
	return &model.Transaction{
		InternalID: uuid.New(),
		ExternalID: "wd-1",
		UserID:     "user-1",
		Direction:  model.DirectionWithdrawal,
		Provider:   "acme",
		Amount:     decimal.NewFromInt(50),
		Asset:      "USD",
		Status:     status,
	}
}

const authorizeBody = `{
	"userId": "user-1",
	"externalTransactionId": "wd-1",
	"amount": "50",
	"currency": "USD",
	"providerName": "acme",
	"method": "CardWithdrawal"
}`

func doRequest(t *testing.T, h http.HandlerFunc, body string) (*httptest.ResponseRecorder, webhookResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/acme/authorize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)

	var res webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("response decode: %v (%s)", err, rec.Body.String())
	}
	return rec, res
}

func TestAuthorizeWithdrawalSuccess(t *testing.T) {
	stub := &stubOrchestrator{tx: storedTransaction(model.StatusPending)}
	h := NewWebhookHandler(stub)

	rec, res := doRequest(t, h.Authorize, authorizeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !res.Success {
		t.Fatalf("success = false: %+v", res)
	}
	if res.Status != "pending" {
		t.Fatalf("status = %s", res.Status)
	}
	if len(stub.authorized) != 1 {
		t.Fatalf("authorize calls = %d", len(stub.authorized))
	}
	if got := stub.authorized[0]; got.Provider != "acme" || got.ExternalID != "wd-1" {
		t.Fatalf("request = %+v", got)
	}
}

func TestAuthorizeRoutesDepositsThroughDepositSequence(t *testing.T) {
	stub := &stubOrchestrator{tx: storedTransaction(model.StatusCompleted)}
	h := NewWebhookHandler(stub)

	body := strings.Replace(authorizeBody, "CardWithdrawal", "CardDeposit", 1)
	_, res := doRequest(t, h.Authorize, body)
	if !res.Success {
		t.Fatalf("success = false: %+v", res)
	}
	if len(stub.deposits) != 1 {
		t.Fatalf("deposit runs = %d, want 1", len(stub.deposits))
	}
	if len(stub.authorized) != 0 {
		t.Fatalf("withdrawal authorize calls = %d, want 0", len(stub.authorized))
	}
}

func TestAuthorizeDeclinedReturnsStructuredFailure(t *testing.T) {
	tx := storedTransaction(model.StatusDeclined)
	tx.Reason = "velocity_limit"
	stub := &stubOrchestrator{tx: tx}
	h := NewWebhookHandler(stub)

	rec, res := doRequest(t, h.Authorize, authorizeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("declines are structured responses, got status %d", rec.Code)
	}
	if res.Success {
		t.Fatal("success = true for a declined withdrawal")
	}
	if res.ErrorCode != codeRiskDeclined || res.ErrorMessage != "velocity_limit" {
		t.Fatalf("response = %+v", res)
	}
}

func TestAuthorizeInsufficientFunds(t *testing.T) {
	stub := &stubOrchestrator{err: apperr.ErrInsufficientFunds}
	h := NewWebhookHandler(stub)

	rec, res := doRequest(t, h.Authorize, authorizeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res.Success || res.ErrorCode != codeInsufficientFunds {
		t.Fatalf("response = %+v", res)
	}
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	stub := &stubOrchestrator{err: apperr.ErrUnknownNetwork}
	h := NewWebhookHandler(stub)

	rec, res := doRequest(t, h.Authorize, authorizeBody)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if res.ErrorCode != codeUnknownProvider {
		t.Fatalf("response = %+v", res)
	}
}

func TestAuthorizeRejectsInvalidPayload(t *testing.T) {
	stub := &stubOrchestrator{}
	h := NewWebhookHandler(stub)

	rec, res := doRequest(t, h.Authorize, `{"userId": "user-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if res.ErrorCode != codeInvalidPayload {
		t.Fatalf("response = %+v", res)
	}
	if len(stub.authorized)+len(stub.deposits) != 0 {
		t.Fatal("pipeline must not run on invalid payload")
	}
}

func TestTransferCompletesWithdrawal(t *testing.T) {
	stub := &stubOrchestrator{tx: storedTransaction(model.StatusCompleted)}
	h := NewWebhookHandler(stub)

	_, res := doRequest(t, h.Transfer, authorizeBody)
	if !res.Success || res.Status != "completed" {
		t.Fatalf("response = %+v", res)
	}
	if len(stub.completed) != 1 {
		t.Fatalf("complete calls = %d", len(stub.completed))
	}
}

func TestCancelRespondsWithDeclinedState(t *testing.T) {
	tx := storedTransaction(model.StatusDeclined)
	tx.Reason = "provider_cancelled"
	stub := &stubOrchestrator{tx: tx}
	h := NewWebhookHandler(stub)

	_, res := doRequest(t, h.Cancel, authorizeBody)
	if res.Success {
		t.Fatal("cancelled withdrawal must not report success")
	}
	if len(stub.cancelled) != 1 {
		t.Fatalf("cancel calls = %d", len(stub.cancelled))
	}
}

func TestTransferInvalidStateConflict(t *testing.T) {
	stub := &stubOrchestrator{err: apperr.ErrInvalidTransition}
	h := NewWebhookHandler(stub)

	rec, res := doRequest(t, h.Transfer, authorizeBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if res.ErrorCode != codeInvalidState {
		t.Fatalf("response = %+v", res)
	}
}
