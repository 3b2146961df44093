package cmd

import (
	"cmp"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/marcin-skalski/auto-commit/internal/config"
	"github.com/marcin-skalski/auto-commit/internal/content"
	"github.com/marcin-skalski/auto-commit/internal/git"
	"github.com/marcin-skalski/auto-commit/internal/llm"
	"github.com/marcin-skalski/auto-commit/internal/pattern"
	"github.com/marcin-skalski/auto-commit/internal/repo"
	"github.com/marcin-skalski/auto-commit/internal/schedule"
)

const (
	projectURL  = "https://github.com/marcin-skalski/auto-commit"
	projectName = "auto-commit"
)

// agent bundles the collaborators shared by the subcommands.
type agent struct {
	git        *git.Client
	llm        *llm.Manager
	controller *repo.Controller
}

func newAgent(cfg *config.Config, logger *slog.Logger) *agent {
	g := git.NewClient(cfg.Repo.AuthorName, cfg.Repo.AuthorEmail, logger)
	text := newLLM(cfg.LLM, logger)

	var provider repo.ContentProvider
	if !cfg.Content.Disabled {
		provider = content.New(text, logger,
			content.WithDir(cfg.Content.Dir),
			content.WithTopics(cfg.Content.Topics))
	}

	ctrl := repo.New(repo.Options{
		URL:        cfg.Repo.AuthURL(),
		DisplayURL: cfg.Repo.URL,
		Path:       cfg.Repo.Path,
		Remote:     cfg.Repo.Remote,
	}, g, provider, text, logger)

	return &agent{git: g, llm: text, controller: ctrl}
}

// newLLM builds backends in the configured order. HTTP providers without an
// API key are left out.
func newLLM(cfg config.LLMConfig, logger *slog.Logger) *llm.Manager {
	client := &http.Client{Timeout: cfg.Timeout}
	temperature := *cfg.Temperature

	var backends []llm.Backend
	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderNVIDIA:
			if cfg.NVIDIA.APIKey == "" {
				logger.Debug("provider skipped, no API key", "provider", name)
				continue
			}
			backends = append(backends, llm.NewChatBackend(llm.ChatConfig{
				Name:        name,
				BaseURL:     cmp.Or(cfg.NVIDIA.BaseURL, llm.NVIDIABaseURL),
				APIKey:      cfg.NVIDIA.APIKey,
				Model:       cfg.NVIDIA.Model,
				MaxTokens:   cfg.MaxTokens,
				Temperature: temperature,
			}, client))

		case config.ProviderGoogle:
			if cfg.Google.APIKey == "" {
				logger.Debug("provider skipped, no API key", "provider", name)
				continue
			}
			backends = append(backends, llm.NewGeminiBackend(llm.GeminiConfig{
				BaseURL:     cfg.Google.BaseURL,
				APIKey:      cfg.Google.APIKey,
				Model:       cfg.Google.Model,
				MaxTokens:   cfg.MaxTokens,
				Temperature: temperature,
			}, client))

		case config.ProviderOpenRouter:
			if cfg.OpenRouter.APIKey == "" {
				logger.Debug("provider skipped, no API key", "provider", name)
				continue
			}
			backends = append(backends, llm.NewChatBackend(llm.ChatConfig{
				Name:        name,
				BaseURL:     cmp.Or(cfg.OpenRouter.BaseURL, llm.OpenRouterBaseURL),
				APIKey:      cfg.OpenRouter.APIKey,
				Model:       cfg.OpenRouter.Model,
				MaxTokens:   cfg.MaxTokens,
				Temperature: temperature,
				Headers: map[string]string{
					"HTTP-Referer": projectURL,
					"X-Title":      projectName,
				},
			}, client))

		case config.ProviderClaude:
			backends = append(backends, llm.NewClaudeBackend(cfg.Claude.Binary, cfg.Claude.Model, logger))
		}
	}

	if len(backends) == 0 {
		logger.Warn("no text generation backend configured, using fallback content and messages")
	}
	return llm.NewManager(logger, backends...)
}

func newGenerator(cfg config.ScheduleConfig) *pattern.Generator {
	pc := pattern.Config{
		MinCount:  cfg.MinCommits,
		MaxCount:  cfg.MaxCommits,
		Randomize: *cfg.Randomize,
	}
	if cfg.Seed != 0 {
		return pattern.NewWithRand(pc, rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)))
	}
	return pattern.New(pc)
}

func newTracker(cfg config.ScheduleConfig, logger *slog.Logger) *schedule.Tracker {
	return schedule.New(newGenerator(cfg), cfg.Window, logger)
}
