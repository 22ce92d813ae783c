// Package platform is the client for the user-platform collaborator: feature
// flags and user notifications.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	return "Platform.Service"
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

type featureResponse struct {
	Enabled bool `json:"enabled"`
}

// FeatureEnabled asks whether the named feature is enabled for the user.
func (s *Service) FeatureEnabled(ctx context.Context, userID, feature string) (bool, error) {
	endpoint := fmt.Sprintf("/api/features/%s?user=%s", url.PathEscape(feature), url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Add("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return false, fmt.Errorf("body read: %w", err)
	}
	if res.StatusCode >= 400 {
		return false, fmt.Errorf("remote error: status %d", res.StatusCode)
	}

	out := &featureResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("json decode: %w", err)
	}

	return out.Enabled, nil
}

type notifyRequest struct {
	UserID  string            `json:"user_id"`
	Event   string            `json:"event"`
	Payload map[string]string `json:"payload,omitempty"`
}

// NotifyUser delivers a status-change notification. Best effort: callers are
// expected to log and move on when it fails.
func (s *Service) NotifyUser(ctx context.Context, userID, event string, payload map[string]string) error {
	rawJSON, err := json.Marshal(&notifyRequest{UserID: userID, Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/notify", bytes.NewReader(rawJSON))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("remote error: status %d", res.StatusCode)
	}

	return nil
}
