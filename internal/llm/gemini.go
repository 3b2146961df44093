package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GeminiConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GeminiBackend calls the Google Generative Language REST API.
type GeminiBackend struct {
	cfg    GeminiConfig
	client *http.Client
}

func NewGeminiBackend(cfg GeminiConfig, client *http.Client) *GeminiBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiBackend{cfg: cfg, client: client}
}

func (b *GeminiBackend) Name() string { return "google" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (b *GeminiBackend) Generate(ctx context.Context, prompt, system string) (string, error) {
	if b.cfg.APIKey == "" {
		return "", fmt.Errorf("google: %w", ErrNotConfigured)
	}

	var payload geminiRequest
	payload.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	if system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	payload.GenerationConfig.Temperature = b.cfg.Temperature
	payload.GenerationConfig.MaxOutputTokens = b.cfg.MaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", b.cfg.BaseURL, url.PathEscape(b.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.cfg.APIKey)

	var resp geminiResponse
	if err := doJSON(b.client, req, "google", &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("google: response has no candidates")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
