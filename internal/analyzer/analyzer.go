package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the analysis backend cannot be reached or
// answers with a server error.
var ErrUnavailable = errors.New("analysis service unavailable")

// Config holds analysis service configuration from environment variables.
type Config struct {
	BaseURL string
	APIKey  string
}

// Request is one article to analyze, by URL or pasted text.
type Request struct {
	SourceURL string `json:"source_url,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Result is the bias verdict for one article. BiasScore runs from -1 (left)
// to 1 (right); Verdict is the human-readable bucket.
type Result struct {
	Title     string  `json:"title"`
	BiasScore float64 `json:"bias_score"`
	Verdict   string  `json:"verdict"`
	Summary   string  `json:"summary,omitempty"`
}

// Service calls the media-bias analysis backend.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates an analysis client. An empty BaseURL leaves the service
// unconfigured; Analyze then fails fast with ErrUnavailable.
func NewService(cfg Config) *Service {
	return &Service{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Service) Configured() bool {
	return s.config.BaseURL != ""
}

// Analyze submits one article and blocks until the verdict comes back.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if !s.Configured() {
		return nil, ErrUnavailable
	}
	if req.SourceURL == "" && req.Text == "" {
		return nil, fmt.Errorf("analyze: empty request")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("analysis request: %w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("analysis request rejected: status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	return &result, nil
}
