package riskengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Service struct {
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func (s *Service) LoggerComponent() string {
	return "RiskEngine.Service"
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

// Assess sends the transaction to the remote risk engine and returns its
// verdict. Transport and remote failures are returned as errors; mapping an
// error to a pipeline decision is the caller's policy, not this client's.
func (s *Service) Assess(ctx context.Context, in *AssessRequest) (*AssessResponse, error) {
	l := s.logger.With().
		Str("method", "Assess").
		Str("external_id", in.ExternalID).
		Logger()
	ctx = l.WithContext(ctx)

	out := &AssessResponse{}
	if err := s.call(ctx, http.MethodPost, "/api/assess", in, out); err != nil {
		return nil, err
	}

	l.Debug().
		Str("decision", out.Decision).
		Str("reason_code", out.ReasonCode).
		Msg("Assess success")

	return out, nil
}

type RemoteError struct {
	ResponseBody string
	StatusCode   int
}

func NewRemoteError(responseBody string, statusCode int) *RemoteError {
	return &RemoteError{ResponseBody: responseBody, StatusCode: statusCode}
}

func (e *RemoteError) Error() string {
	return e.ResponseBody
}

func (s *Service) call(ctx context.Context, method, endpoint string, in interface{}, out interface{}) error {
	l := zerolog.Ctx(ctx).With().Str("http_method", method).Str("endpoint", endpoint).Logger()

	rawJSON, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+endpoint, bytes.NewReader(rawJSON))
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

	if res.StatusCode >= 400 {
		l.Error().
			Str("http_body", string(body)).
			Msg("Service responded with error")
		return NewRemoteError(string(body), res.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}
