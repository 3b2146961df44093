package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ClaudeBackend runs the claude CLI non-interactively.
type ClaudeBackend struct {
	binary string
	model  string
	logger *slog.Logger
}

// NewClaudeBackend returns a backend that execs binary ("claude" when
// empty) with the given model.
func NewClaudeBackend(binary, model string, logger *slog.Logger) *ClaudeBackend {
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeBackend{binary: binary, model: model, logger: logger}
}

func (c *ClaudeBackend) Name() string { return "claude" }

type claudeResponse struct {
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	DurationMs   int     `json:"duration_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func (c *ClaudeBackend) Generate(ctx context.Context, prompt, system string) (string, error) {
	if _, err := exec.LookPath(c.binary); err != nil {
		return "", fmt.Errorf("claude: %w", ErrNotConfigured)
	}

	if system != "" {
		prompt = system + "\n\n" + prompt
	}
	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--no-session-persistence",
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	c.logger.Debug("spawning claude", "prompt_len", len(prompt))
	out, err := exec.CommandContext(ctx, c.binary, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("claude: %w\n%s", err, strings.TrimSpace(string(out)))
	}
	return parseClaudeOutput(out)
}

// parseClaudeOutput extracts the result from JSON output, treating output
// that is not JSON as plain text.
func parseClaudeOutput(out []byte) (string, error) {
	var resp claudeResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return strings.TrimSpace(string(out)), nil
	}
	if resp.IsError {
		return "", errors.New("claude: " + resp.Result)
	}
	return resp.Result, nil
}
