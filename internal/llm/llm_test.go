package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Generate(context.Context, string, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestManagerFallbackOrder(t *testing.T) {
	tests := []struct {
		name      string
		backends  []*fakeBackend
		want      string
		wantCalls []int
	}{
		{
			name: "first wins",
			backends: []*fakeBackend{
				{name: "a", text: "from a"},
				{name: "b", text: "from b"},
			},
			want:      "from a",
			wantCalls: []int{1, 0},
		},
		{
			name: "skips errors and empty text",
			backends: []*fakeBackend{
				{name: "a", err: errors.New("boom")},
				{name: "b", text: "   "},
				{name: "c", err: ErrNotConfigured},
				{name: "d", text: "from d"},
			},
			want:      "from d",
			wantCalls: []int{1, 1, 1, 1},
		},
		{
			name: "all fail",
			backends: []*fakeBackend{
				{name: "a", err: errors.New("boom")},
				{name: "b", text: ""},
			},
			want:      "",
			wantCalls: []int{1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []Backend
			for _, b := range tt.backends {
				backends = append(backends, b)
			}
			m := NewManager(discardLogger(), backends...)
			if got := m.Generate(context.Background(), "p", ""); got != tt.want {
				t.Errorf("Generate = %q, want %q", got, tt.want)
			}
			for i, b := range tt.backends {
				if b.calls != tt.wantCalls[i] {
					t.Errorf("backend %s calls = %d, want %d", b.name, b.calls, tt.wantCalls[i])
				}
			}
		})
	}
}

func TestManagerStopsOnCancelledContext(t *testing.T) {
	b := &fakeBackend{name: "a", text: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := NewManager(discardLogger(), b).Generate(ctx, "p", ""); got != "" || b.calls != 0 {
		t.Errorf("Generate = %q with %d calls after cancel", got, b.calls)
	}
}

func TestTestConnection(t *testing.T) {
	m := NewManager(discardLogger(),
		&fakeBackend{name: "nvidia", text: "hi"},
		&fakeBackend{name: "google", err: ErrNotConfigured},
		&fakeBackend{name: "openrouter", text: ""},
	)
	got := m.TestConnection(context.Background())
	want := map[string]bool{"nvidia": true, "google": false, "openrouter": false}
	if len(got) != len(want) {
		t.Fatalf("TestConnection = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if names := m.Providers(); strings.Join(names, ",") != "nvidia,google,openrouter" {
		t.Errorf("Providers = %v", names)
	}
}

func TestChatBackend(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-1" {
			t.Errorf("Authorization = %q", auth)
		}
		if title := r.Header.Get("X-Title"); title != "auto-commit" {
			t.Errorf("X-Title = %q", title)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"feat: hello"}}]}`)
	}))
	defer srv.Close()

	b := NewChatBackend(ChatConfig{
		Name:        "openrouter",
		BaseURL:     srv.URL + "/v1",
		APIKey:      "key-1",
		Model:       "m-1",
		MaxTokens:   100,
		Temperature: 0.5,
		Headers:     map[string]string{"X-Title": "auto-commit"},
	}, srv.Client())

	text, err := b.Generate(context.Background(), "prompt", "system")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "feat: hello" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "m-1" || got.MaxTokens != 100 || got.Temperature != 0.5 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "prompt" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestChatBackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewChatBackend(ChatConfig{Name: "nvidia", BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	_, err := b.Generate(context.Background(), "p", "")
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusTooManyRequests || serr.Body != "rate limited" {
		t.Errorf("err = %v, want 429 StatusError", err)
	}

	unconfigured := NewChatBackend(ChatConfig{Name: "nvidia", BaseURL: srv.URL}, srv.Client())
	if _, err := unconfigured.Generate(context.Background(), "p", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGeminiBackend(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "g-key" {
			t.Errorf("api key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"docs: "},{"text":"update"}]}}]}`)
	}))
	defer srv.Close()

	b := NewGeminiBackend(GeminiConfig{BaseURL: srv.URL, APIKey: "g-key", Model: "gemini-test", MaxTokens: 50}, srv.Client())
	text, err := b.Generate(context.Background(), "prompt", "be brief")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "docs: update" {
		t.Errorf("text = %q", text)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system instruction = %+v", got.SystemInstruction)
	}
	if got.GenerationConfig.MaxOutputTokens != 50 {
		t.Errorf("maxOutputTokens = %d", got.GenerationConfig.MaxOutputTokens)
	}
}

func TestParseClaudeOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{"json", `{"result":"fix: typo","is_error":false,"duration_ms":10}`, "fix: typo", false},
		{"json error", `{"result":"overloaded","is_error":true}`, "", true},
		{"plain text", "  chore: bump\n", "chore: bump", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClaudeOutput([]byte(tt.out))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClaudeBackendMissingBinary(t *testing.T) {
	b := NewClaudeBackend("definitely-not-a-real-claude-binary", "", discardLogger())
	if _, err := b.Generate(context.Background(), "p", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
