// Package translate is the RPC client for the remote translation provider.
package translate

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
)

// Options configures the translation provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	TargetLang     string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the translation provider.
type Client struct {
	apiKey     string
	baseURL    string
	targetLang string
	httpClient *http.Client
}

type translateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// NewClient constructs a translation client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("translate: base url is required")
	}
	target := strings.TrimSpace(opts.TargetLang)
	if target == "" {
		target = "en"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		targetLang: target,
		httpClient: httpClient,
	}, nil
}

// Translate sends one text and returns the translated form. Any failure is an
// error; there is deliberately no degraded fallback, since the caller must
// abort before reserving credits.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(translateRequest{Text: text, TargetLang: c.targetLang})
	if err != nil {
		return "", fmt.Errorf("translate: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("translate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("translate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("translate: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail translateResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return "", fmt.Errorf("translate: %s (%s)", detail.Message, detail.Code)
		}
		return "", fmt.Errorf("translate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded translateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	if decoded.TranslatedText == "" {
		return "", errors.New("translate: empty translation")
	}
	return decoded.TranslatedText, nil
}
