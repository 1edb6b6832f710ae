// Package videogen is the RPC client for the remote video generation
// provider. It performs no retries beyond the transport and classifies
// nothing; raw provider errors travel upward for the orchestrator to map.
package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"videogen-server/internal/domain"
	"videogen-server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("videogen: api key is required")

// State is the gateway's view of a remote task.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Options configures the generation provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the generation provider.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// SubmitRequest carries the normalized job payload.
type SubmitRequest struct {
	Prompt    string
	Dialogue  []domain.DialogueFragment
	ImageURLs []string
	Seed      *int64
}

// PollResult is the normalized outcome of one status read.
type PollResult struct {
	State        State
	ResultURL    string
	ErrorCode    string
	ErrorMessage string
}

// APIError is a non-2xx provider response, kept raw for upstream
// classification.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("videogen: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("videogen: status %d: %s", e.StatusCode, e.Message)
}

type submitPayload struct {
	Model     string        `json:"model"`
	Prompt    string        `json:"prompt"`
	Dialogue  []dialogueCue `json:"dialogue,omitempty"`
	ImageURLs []string      `json:"image_urls,omitempty"`
	Seed      *int64        `json:"seed,omitempty"`
}

type dialogueCue struct {
	Text      string `json:"text"`
	Romanized string `json:"romanized"`
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status       string `json:"status"`
	VideoURL     string `json:"video_url"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("videogen: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "vgen-1.2"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// SubmitJob sends one generation task and returns the provider task id.
func (c *Client) SubmitJob(ctx context.Context, req SubmitRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	payload := submitPayload{
		Model:     c.model,
		Prompt:    req.Prompt,
		ImageURLs: req.ImageURLs,
		Seed:      req.Seed,
	}
	for _, frag := range req.Dialogue {
		payload.Dialogue = append(payload.Dialogue, dialogueCue{Text: frag.Text, Romanized: frag.Romanized})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("videogen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("videogen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("videogen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("videogen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", apiErrorFrom(resp.StatusCode, raw)
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("videogen: decode response: %w", err)
	}
	if decoded.TaskID == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Code: decoded.Code, Message: decoded.Message}
	}
	c.logger.Debug().Str("task_id", decoded.TaskID).Str("model", c.model).Msg("videogen: task accepted")
	return decoded.TaskID, nil
}

// Poll reads the current status of a task. Polling is an idempotent read;
// unknown provider states map to still-running so a vocabulary change never
// fabricates a terminal outcome.
func (c *Client) Poll(ctx context.Context, taskID string) (*PollResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/generations/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("videogen: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("videogen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("videogen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiErrorFrom(resp.StatusCode, raw)
	}

	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("videogen: decode response: %w", err)
	}
	return &PollResult{
		State:        mapProviderStatus(decoded.Status),
		ResultURL:    decoded.VideoURL,
		ErrorCode:    decoded.ErrorCode,
		ErrorMessage: decoded.ErrorMessage,
	}, nil
}

func apiErrorFrom(status int, raw []byte) *APIError {
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
		return &APIError{StatusCode: status, Code: detail.Code, Message: detail.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
}

func mapProviderStatus(status string) State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "pending", "submitted":
		return StateQueued
	case "running", "processing", "in_progress", "generating":
		return StateRunning
	case "succeeded", "completed", "success", "done":
		return StateSucceeded
	case "failed", "error", "cancelled", "canceled":
		return StateFailed
	default:
		return StateRunning
	}
}
