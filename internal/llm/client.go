// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

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
	"unicode/utf8"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/models"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single completion.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// ChatClient returns the raw text of a model reply. Implementations do not retry.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a ChatClient over HTTP.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient validates options and builds a client.
func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, apperrors.Configuration("model api key is not configured")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = models.DefaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{apiKey: key, model: model, baseURL: baseURL, http: httpClient}, nil
}

// Model returns the resolved model name.
func (c *Client) Model() string {
	return c.model
}

// Chat sends messages and returns the trimmed content of the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", apperrors.Generation("no messages to send", nil)
	}
	payload := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if payload.Temperature == 0 {
		payload.Temperature = defaultTemperature
	}
	if payload.MaxTokens == 0 {
		payload.MaxTokens = defaultMaxTokens
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Generation("encode chat request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", apperrors.Generation("build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", apperrors.Generation("model request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", apperrors.Generation("read model response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", apperrors.Configuration("model api key was rejected").WithDetail(truncate(string(body), 256))
	}
	if resp.StatusCode >= 300 {
		return "", apperrors.Generation(fmt.Sprintf("model returned status %d", resp.StatusCode), errors.New(truncate(string(body), 512)))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apperrors.Generation("decode model response", err)
	}
	if out.Error != nil {
		return "", apperrors.Generation("model returned an error", errors.New(out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", apperrors.Generation("model response has no choices", nil)
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", apperrors.Generation("model response is empty", nil)
	}
	return content, nil
}

var _ ChatClient = (*Client)(nil)

// Factory builds a job-scoped client from a user's credentials.
type Factory interface {
	New(creds models.Credentials) (ChatClient, error)
}

// HTTPFactory creates Clients sharing one transport.
type HTTPFactory struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPFactory returns a factory. A zero timeout leaves calls bounded only by their context.
func NewHTTPFactory(baseURL string, timeout time.Duration) *HTTPFactory {
	return &HTTPFactory{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: timeout}}
}

func (f *HTTPFactory) New(creds models.Credentials) (ChatClient, error) {
	return NewClient(Options{
		APIKey:     creds.APIKey,
		Model:      creds.Model,
		BaseURL:    f.BaseURL,
		HTTPClient: f.HTTPClient,
	})
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
