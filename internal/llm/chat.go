package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	NVIDIABaseURL     = "https://integrate.api.nvidia.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	maxErrorBody = 512
)

// ChatConfig configures an OpenAI-compatible chat completions endpoint.
type ChatConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Headers     map[string]string
}

// ChatBackend talks to NVIDIA NIM, OpenRouter or any other endpoint that
// speaks the chat completions protocol.
type ChatBackend struct {
	cfg    ChatConfig
	client *http.Client
}

func NewChatBackend(cfg ChatConfig, client *http.Client) *ChatBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &ChatBackend{cfg: cfg, client: client}
}

func (b *ChatBackend) Name() string { return b.cfg.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (b *ChatBackend) Generate(ctx context.Context, prompt, system string) (string, error) {
	if b.cfg.APIKey == "" {
		return "", fmt.Errorf("%s: %w", b.cfg.Name, ErrNotConfigured)
	}

	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       b.cfg.Model,
		Messages:    messages,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}

	var resp chatResponse
	if err := doJSON(b.client, req, b.cfg.Name, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: response has no choices", b.cfg.Name)
	}
	return resp.Choices[0].Message.Content, nil
}

// doJSON executes req and decodes a 200 response into out.
func doJSON(client *http.Client, req *http.Request, provider string, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &StatusError{Provider: provider, Code: res.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}
