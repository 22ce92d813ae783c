// Package balances is the client for the external balance service, the only
// collaborator allowed to mutate user balances.
package balances

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrInsufficientFunds is returned by Debit when the remote service refuses
// the mutation for lack of funds.
var ErrInsufficientFunds = errors.New("insufficient funds")

const errCodeInsufficientFunds = "insufficient_funds"

type MutationRequest struct {
	UserID         string            `json:"user_id"`
	Amount         string            `json:"amount"`
	Asset          string            `json:"asset"`
	Bucket         string            `json:"bucket"`
	IdempotencyKey string            `json:"idempotency_key"`
	Meta           map[string]string `json:"meta,omitempty"`
}

type MutationResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
}

type Service struct {
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func (s *Service) LoggerComponent() string {
	return "Balances.Service"
}

func NewService(apiURL string, opts ...ServiceOption) (*Service, error) {
	c := &Service{
		apiURL:     apiURL,
		httpClient: http.DefaultClient,
		logger:     log.Logger,
	}

	for _, o := range opts {
		o(c)
	}

	c.logger = c.logger.With().Str("component", c.LoggerComponent()).Logger()

	return c, nil
}

type ServiceOption func(*Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.httpClient = &http.Client{Timeout: d}
	}
}

// Credit adds funds to the user's bucket.
func (s *Service) Credit(ctx context.Context, in *MutationRequest) error {
	return s.mutate(ctx, "/api/balance/credit", in)
}

// Debit removes funds from the user's bucket.
func (s *Service) Debit(ctx context.Context, in *MutationRequest) error {
	return s.mutate(ctx, "/api/balance/debit", in)
}

func (s *Service) mutate(ctx context.Context, endpoint string, in *MutationRequest) error {
	l := s.logger.With().
		Str("endpoint", endpoint).
		Str("idempotency_key", in.IdempotencyKey).
		Logger()

	rawJSON, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+endpoint, bytes.NewReader(rawJSON))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		l.Error().Err(err).Msg("Service request failed")
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("body read: %w", err)
	}

	out := &MutationResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		if res.StatusCode >= 400 {
			l.Error().Str("http_body", string(body)).Msg("Service responded with error")
			return fmt.Errorf("remote error: status %d", res.StatusCode)
		}
		return fmt.Errorf("json decode: %w", err)
	}

	if !out.Success {
		if out.ErrorCode == errCodeInsufficientFunds {
			return ErrInsufficientFunds
		}
		l.Error().Str("error_code", out.ErrorCode).Msg("Mutation refused")
		return fmt.Errorf("mutation refused: %s", out.ErrorCode)
	}

	return nil
}
