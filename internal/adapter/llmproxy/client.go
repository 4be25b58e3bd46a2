// Package llmproxy provides an HTTP client for the closed set of LLM
// provider variants. Each variant speaks its native wire format; the variant
// is chosen by the Kind on the provider config.
package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/port/llm"
	"github.com/ragmesh/ragmesh/internal/resilience"
)

const (
	openAIBaseURL    = "https://api.openai.com/v1"
	anthropicBaseURL = "https://api.anthropic.com/v1"

	anthropicVersion = "2023-06-01"
)

// Client implements llm.Client for one provider config.
type Client struct {
	cfg        *provider.Config
	secret     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ llm.Client = (*Client)(nil)

// NewClient creates a client for the given provider config. secret is the
// decrypted API credential; it may be empty for local providers.
func NewClient(cfg *provider.Config, secret string) *Client {
	return &Client{
		cfg:    cfg,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Generate produces a completion using the config's chat model.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	switch c.cfg.Kind {
	case provider.KindAnthropic:
		return c.generateAnthropic(ctx, system, prompt)
	case provider.KindOllama:
		return c.generateOllama(ctx, system, prompt)
	default:
		// openai and azure_openai share the chat completions format.
		return c.generateOpenAI(ctx, system, prompt)
	}
}

// Embed returns one vector per input text using the config's embed model.
// Ollama only embeds one input per request, so inputs are sent sequentially.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	switch c.cfg.Kind {
	case provider.KindOllama:
		return c.embedOllama(ctx, texts)
	case provider.KindAnthropic:
		return nil, fmt.Errorf("provider %s has no embedding endpoint", c.cfg.Kind)
	default:
		return c.embedOpenAI(ctx, texts)
	}
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return strings.TrimSuffix(c.cfg.BaseURL, "/")
	}
	switch c.cfg.Kind {
	case provider.KindAnthropic:
		return anthropicBaseURL
	default:
		return openAIBaseURL
	}
}

func (c *Client) generateOpenAI(ctx context.Context, system, prompt string) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	msgs := []message{}
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: prompt})

	body, err := json.Marshal(map[string]any{
		"model":       c.cfg.Model,
		"messages":    msgs,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL()+"/chat/completions", body)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) generateAnthropic(ctx context.Context, system, prompt string) (string, error) {
	payload := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if system != "" {
		payload["system"] = system
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal messages request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL()+"/messages", body)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("unmarshal messages response: %w", err)
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic messages: empty content")
	}
	return result.Content[0].Text, nil
}

func (c *Client) generateOllama(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":  c.cfg.Model,
		"system": system,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.cfg.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL()+"/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("unmarshal generate response: %w", err)
	}
	return result.Response, nil
}

func (c *Client) embedOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.cfg.EmbedModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL()+"/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}
	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (c *Client) embedOllama(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := json.Marshal(map[string]any{
			"model":  c.cfg.EmbedModel,
			"prompt": text,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal embed request: %w", err)
		}

		resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL()+"/api/embeddings", body)
		if err != nil {
			return nil, fmt.Errorf("ollama embeddings: %w", err)
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(resp, &result); err != nil {
			return nil, fmt.Errorf("unmarshal embed response: %w", err)
		}
		vecs = append(vecs, result.Embedding)
	}
	return vecs, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.secret == "" {
		return
	}
	switch c.cfg.Kind {
	case provider.KindAnthropic:
		req.Header.Set("x-api-key", c.secret)
		req.Header.Set("anthropic-version", anthropicVersion)
	case provider.KindAzureOpenAI:
		req.Header.Set("api-key", c.secret)
	default:
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
}

func (c *Client) doRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		c.setAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("provider API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
