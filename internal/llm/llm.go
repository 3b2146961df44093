// Package llm generates text through an ordered list of provider backends,
// returning the first non-empty answer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const testPrompt = "Hello, are you working?"

// ErrNotConfigured is returned by a backend that lacks credentials.
var ErrNotConfigured = errors.New("provider not configured")

type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// StatusError is a non-200 response from an HTTP provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

type Manager struct {
	backends []Backend
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger, backends ...Backend) *Manager {
	return &Manager{backends: backends, logger: logger}
}

// Providers returns backend names in priority order.
func (m *Manager) Providers() []string {
	names := make([]string, len(m.backends))
	for i, b := range m.backends {
		names[i] = b.Name()
	}
	return names
}

// Generate tries each backend in order and returns the first non-empty
// result, or "" when all fail.
func (m *Manager) Generate(ctx context.Context, prompt, system string) string {
	for _, b := range m.backends {
		if ctx.Err() != nil {
			return ""
		}
		m.logger.Debug("trying provider", "provider", b.Name())

		text, err := b.Generate(ctx, prompt, system)
		switch {
		case errors.Is(err, ErrNotConfigured):
			m.logger.Debug("provider skipped", "provider", b.Name(), "err", err)
			continue
		case err != nil:
			m.logger.Warn("provider failed", "provider", b.Name(), "err", err)
			continue
		case strings.TrimSpace(text) == "":
			m.logger.Warn("provider returned empty text", "provider", b.Name())
			continue
		}

		m.logger.Info("generated text", "provider", b.Name(), "len", len(text))
		return text
	}

	m.logger.Error("all LLM providers failed")
	return ""
}

// TestConnection sends a short prompt to every backend concurrently and
// reports which ones answered.
func (m *Manager) TestConnection(ctx context.Context) map[string]bool {
	var (
		mu      sync.Mutex
		results = make(map[string]bool, len(m.backends))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range m.backends {
		g.Go(func() error {
			text, err := b.Generate(gctx, testPrompt, "")
			ok := err == nil && strings.TrimSpace(text) != ""

			mu.Lock()
			results[b.Name()] = ok
			mu.Unlock()

			if ok {
				m.logger.Info("provider check", "provider", b.Name(), "status", "OK")
			} else {
				m.logger.Warn("provider check", "provider", b.Name(), "status", "FAIL", "err", err)
			}
			// Failures are reported per provider; never cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()
	return results
}
