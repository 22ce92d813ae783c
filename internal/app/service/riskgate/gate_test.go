package riskgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/app/model"
	"settlement/pkg/riskengine"
)

type stubAssessor struct {
	res *riskengine.AssessResponse
	err error

	gotReq *riskengine.AssessRequest
}

func (s *stubAssessor) Assess(ctx context.Context, in *riskengine.AssessRequest) (*riskengine.AssessResponse, error) {
	s.gotReq = in
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func testTransaction() *model.Transaction {
	return &model.Transaction{
		UserID:     "user-1",
		ExternalID: "tx-abc",
		Provider:   "bitcoin",
		Direction:  model.DirectionDeposit,
		Amount:     decimal.NewFromInt(100),
		Asset:      "BTC",
	}
}

func TestAssessApproved(t *testing.T) {
	client := &stubAssessor{res: &riskengine.AssessResponse{Decision: riskengine.DecisionApprove}}
	g := New(client, time.Second)

	v := g.Assess(context.Background(), testTransaction(), nil)
	if !v.Approved {
		t.Fatal("expected approved")
	}
	if client.gotReq.Amount != "100" {
		t.Errorf("amount sent = %q, want 100", client.gotReq.Amount)
	}
}

func TestAssessDeclined(t *testing.T) {
	client := &stubAssessor{res: &riskengine.AssessResponse{
		Decision:   riskengine.DecisionDecline,
		ReasonCode: "velocity_limit",
	}}
	g := New(client, time.Second)

	v := g.Assess(context.Background(), testTransaction(), nil)
	if v.Approved {
		t.Fatal("expected declined")
	}
	if v.Reason != "velocity_limit" {
		t.Errorf("reason = %q, want velocity_limit", v.Reason)
	}
}

func TestAssessFailsOpenOnEngineError(t *testing.T) {
	client := &stubAssessor{err: errors.New("connection refused")}
	g := New(client, time.Second)

	v := g.Assess(context.Background(), testTransaction(), nil)
	if !v.Approved {
		t.Fatal("engine failure must fail open to approved")
	}
}

func TestAssessFailsOpenWithOpenBreaker(t *testing.T) {
	client := &stubAssessor{err: errors.New("connection refused")}
	g := New(client, time.Second)
	ctx := context.Background()

	// Enough consecutive failures to trip the breaker.
	for i := 0; i < 10; i++ {
		if v := g.Assess(ctx, testTransaction(), nil); !v.Approved {
			t.Fatalf("call %d: expected fail-open approval", i)
		}
	}
}
