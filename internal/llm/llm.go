// Package llm talks to a local Ollama server: the native generate API for free text
// and the OpenAI-compatible chat API for code generation.
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

	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/retry"
	"github.com/philjestin/studiomode/internal/usage"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Generator produces free text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chatter produces chat completions.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm server returned %d: %s", e.Code, e.Body)
}

// Client wraps the Ollama HTTP APIs.
type Client struct {
	// BaseURL is the server root, e.g. http://localhost:11434.
	BaseURL string

	// Model is used by Generate.
	Model string

	// CoderModel is used by Chat.
	CoderModel string

	// APIKey is sent as a bearer token to the chat API.
	APIKey string

	// Timeout overrides AdaptiveTimeout when non-zero.
	Timeout time.Duration

	// Agent labels usage records.
	Agent string

	HTTP  *http.Client
	Usage *usage.Tracker
	Retry retry.Config
}

// New creates a client with default models.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      "mistral",
		CoderModel: "deepseek-coder:6.7b",
		APIKey:     "ollama",
		HTTP:       &http.Client{},
		Retry:      retry.LLMConfig(),
	}
}

// ForAgent returns a copy whose usage is attributed to agent.
func (c *Client) ForAgent(agent string) *Client {
	cp := *c
	cp.Agent = agent
	return &cp
}

// AdaptiveTimeout scales the request timeout with prompt length.
func AdaptiveTimeout(prompt string) time.Duration {
	return timeoutForLength(len(prompt))
}

func timeoutForLength(n int) time.Duration {
	switch {
	case n <= 500:
		return 60 * time.Second
	case n <= 1500:
		return 120 * time.Second
	case n <= 3000:
		return 240 * time.Second
	default:
		return 360 * time.Second
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate runs a single non-streaming completion and returns the trimmed text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	err := c.post(ctx, "/api/generate", "", c.timeoutFor(len(prompt)),
		generateRequest{Model: c.Model, Prompt: prompt}, &out)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	c.Usage.Add(c.agentName(), out.PromptEvalCount, out.EvalCount)
	return strings.TrimSpace(out.Response), nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat runs an OpenAI-compatible chat completion and returns the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	var total int
	for _, m := range messages {
		total += len(m.Content)
	}

	var out chatResponse
	err := c.post(ctx, "/v1/chat/completions", c.APIKey, c.timeoutFor(total),
		chatRequest{Model: c.CoderModel, Messages: messages, Temperature: temperature}, &out)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat: empty choices")
	}
	c.Usage.Add(c.agentName(), out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out.Choices[0].Message.Content, nil
}

// Tags lists installed models. The health check calls it.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) post(ctx context.Context, path, token string, timeout time.Duration, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return retry.Do(ctx, c.Retry, "LLM "+path, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		resp, err := c.httpClient().Do(req)
		if err != nil {
			// Per-attempt timeouts are worth retrying; caller cancellation is not.
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		logger.Debug("llm request", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

		if resp.StatusCode/100 != 2 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func (c *Client) timeoutFor(promptLen int) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return timeoutForLength(promptLen)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) agentName() string {
	if c.Agent == "" {
		return "llm"
	}
	return c.Agent
}
