package consumer

import (
	"context"
	"errors"
	"testing"

	"settlement/internal/app/apperr"
	"settlement/internal/app/config"
	"settlement/internal/app/hooks"
)

type stubRunner struct {
	events []hooks.Event
	errFor map[string]error
}

func (s *stubRunner) RunDeposit(ctx context.Context, ev hooks.Event, forced bool) error {
	s.events = append(s.events, ev)
	if s.errFor != nil {
		return s.errFor[ev.ExternalID]
	}
	return nil
}

func newTestConsumer(runner *stubRunner) *Consumer {
	return New(config.QueueConfig{Queue: "deposit_events"}, runner)
}

const batchBody = `{
	"network": "bitcoin",
	"deposits": [
		{"deposit": {"user_id": "u1", "external_id": "tx-1", "amount": "1.5", "currency": "BTC", "confirmations": 2},
		 "transaction": {"tx_hash": "abc", "block_height": "100"}},
		{"deposit": {"user_id": "u2", "external_id": "tx-2", "amount": "0.3", "currency": "BTC", "confirmations": 1},
		 "transaction": {"tx_hash": "def"}}
	]
}`

func TestHandleMessageRunsEachDeposit(t *testing.T) {
	runner := &stubRunner{}
	c := newTestConsumer(runner)

	if err := c.HandleMessage(context.Background(), []byte(batchBody)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(runner.events) != 2 {
		t.Fatalf("events = %d, want 2", len(runner.events))
	}
	ev := runner.events[0]
	if ev.Network != "bitcoin" || ev.ExternalID != "tx-1" || ev.Confirmations != 2 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Amount.String() != "1.5" {
		t.Fatalf("amount = %s", ev.Amount)
	}
	if ev.Meta["tx_hash"] != "abc" {
		t.Fatalf("meta = %+v", ev.Meta)
	}
}

func TestHandleMessageDropsUnknownNetwork(t *testing.T) {
	runner := &stubRunner{errFor: map[string]error{
		"tx-1": apperr.ErrUnknownNetwork,
	}}
	c := newTestConsumer(runner)

	// Unknown network is dropped with a warning; the rest of the batch still
	// runs and the message is not requeued.
	if err := c.HandleMessage(context.Background(), []byte(batchBody)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(runner.events) != 2 {
		t.Fatalf("events = %d, want 2", len(runner.events))
	}
}

func TestHandleMessageDropsInvalidEvent(t *testing.T) {
	runner := &stubRunner{errFor: map[string]error{
		"tx-1": apperr.ErrInvalidInput,
	}}
	c := newTestConsumer(runner)

	// An event the pipeline rejects as invalid stays invalid on every
	// redelivery; drop it instead of requeueing the batch forever.
	if err := c.HandleMessage(context.Background(), []byte(batchBody)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(runner.events) != 2 {
		t.Fatalf("events = %d, want 2", len(runner.events))
	}
}

func TestHandleMessageFailsBatchOnProcessingError(t *testing.T) {
	runner := &stubRunner{errFor: map[string]error{
		"tx-2": errors.New("store down"),
	}}
	c := newTestConsumer(runner)

	if err := c.HandleMessage(context.Background(), []byte(batchBody)); err == nil {
		t.Fatal("expected error so the broker redelivers")
	}
}

func TestHandleMessageDropsMalformedPayload(t *testing.T) {
	runner := &stubRunner{}
	c := newTestConsumer(runner)

	if err := c.HandleMessage(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	if len(runner.events) != 0 {
		t.Fatalf("events = %d, want 0", len(runner.events))
	}
}
