// Package agent – llm.go implements the LLM client for chat completions.
// Uses the OpenAI-compatible API format, which works with OpenAI and any
// compatible endpoint. Credentials resolve per tenant: tenants with
// their own key use it, the rest share the global one.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slimquality/bia/pkg/bia/session"
	"github.com/slimquality/bia/pkg/bia/tenant"
)

// LLMClient handles communication with the LLM provider API.
type LLMClient struct {
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration

	tenants *tenant.Store
	creds   *tenant.CredentialResolver

	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a new LLM client from config. tenants and creds
// may be nil, in which case every call uses the config API key.
func NewLLMClient(cfg *Config, tenants *tenant.Store, creds *tenant.CredentialResolver, logger *slog.Logger) *LLMClient {
	baseURL := strings.TrimRight(cfg.API.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.APITimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if creds == nil {
		creds = tenant.NewCredentialResolver(nil, cfg.API.APIKey, logger)
	}

	return &LLMClient{
		baseURL:     baseURL,
		model:       cfg.API.Model,
		temperature: cfg.API.Temperature,
		timeout:     timeout,
		tenants:     tenants,
		creds:       creds,
		httpClient: &http.Client{
			// Per-call timeouts come from context.WithTimeout; the
			// transport only bounds connection setup.
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 120 * time.Second,
			},
		},
		logger: logger.With("component", "llm"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a single-prompt completion and returns the text.
func (c *LLMClient) Complete(ctx context.Context, tenantID, prompt string) (string, error) {
	return c.complete(ctx, tenantID, []chatMessage{{Role: "user", Content: prompt}}, nil, c.temperature)
}

// CompleteJSON sends a single-prompt completion forcing a JSON object
// response (response_format json_object), at temperature zero.
func (c *LLMClient) CompleteJSON(ctx context.Context, tenantID, prompt string) (string, error) {
	return c.complete(ctx, tenantID, []chatMessage{{Role: "user", Content: prompt}},
		map[string]any{"type": "json_object"}, 0)
}

// CompleteChat sends a system prompt plus the conversation history and
// returns the assistant reply.
func (c *LLMClient) CompleteChat(ctx context.Context, tenantID, system string, history []session.Message, userMessage string) (string, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: system})
	for _, m := range history {
		role := m.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userMessage})
	return c.complete(ctx, tenantID, messages, nil, c.temperature)
}

func (c *LLMClient) complete(ctx context.Context, tenantID string, messages []chatMessage, responseFormat map[string]any, temperature float64) (string, error) {
	key := c.keyForTenant(ctx, tenantID)
	if key == "" {
		return "", fmt.Errorf("no API key configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    temperature,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call LLM API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("LLM API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("LLM API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// keyForTenant resolves the API key for the tenant, falling back to
// the global key when the tenant has no credential of its own.
func (c *LLMClient) keyForTenant(ctx context.Context, tenantID string) string {
	if c.tenants == nil || tenantID == "" {
		return c.creds.Resolve(nil)
	}
	t, err := c.tenants.Get(ctx, tenantID)
	if err != nil {
		c.logger.Debug("tenant lookup failed, using global credential",
			"tenant", tenantID, "error", err)
		return c.creds.Resolve(nil)
	}
	return c.creds.Resolve(t)
}
