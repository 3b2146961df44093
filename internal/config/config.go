package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	ProviderNVIDIA     = "nvidia"
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"
	ProviderClaude     = "claude"
)

const (
	defaultMinCommits = 20
	defaultMaxCommits = 30
)

var knownProviders = []string{ProviderNVIDIA, ProviderGoogle, ProviderOpenRouter, ProviderClaude}

type Config struct {
	Workdir  string         `yaml:"workdir" toml:"workdir"`
	LogFile  string         `yaml:"log_file" toml:"log_file"`
	Repo     RepoConfig     `yaml:"repo" toml:"repo"`
	Schedule ScheduleConfig `yaml:"schedule" toml:"schedule"`
	LLM      LLMConfig      `yaml:"llm" toml:"llm"`
	Content  ContentConfig  `yaml:"content" toml:"content"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	TUI      TUIConfig      `yaml:"tui" toml:"tui"`
}

type RepoConfig struct {
	// URL of the remote. Owner and Name build a GitHub URL when it is empty.
	URL         string `yaml:"url" toml:"url"`
	Owner       string `yaml:"owner" toml:"owner"`
	Name        string `yaml:"name" toml:"name"`
	BasePath    string `yaml:"base_path" toml:"base_path"`
	Path        string `yaml:"path" toml:"path"`
	Remote      string `yaml:"remote" toml:"remote"`
	Username    string `yaml:"username" toml:"username"`
	Token       string `yaml:"-" toml:"-"`
	AuthorName  string `yaml:"author_name" toml:"author_name"`
	AuthorEmail string `yaml:"author_email" toml:"author_email"`
}

type ScheduleConfig struct {
	MinCommits      int           `yaml:"min_commits" toml:"min_commits"`
	MaxCommits      int           `yaml:"max_commits" toml:"max_commits"`
	Window          time.Duration `yaml:"-" toml:"-"`
	RawWindow       string        `yaml:"window" toml:"window"`
	Randomize       *bool         `yaml:"randomize,omitempty" toml:"randomize,omitempty"`
	ImmediateCommit *bool         `yaml:"immediate_commit,omitempty" toml:"immediate_commit,omitempty"`
	Continuous      bool          `yaml:"continuous" toml:"continuous"`
	StartDelay      time.Duration `yaml:"-" toml:"-"`
	RawStartDelay   string        `yaml:"start_delay" toml:"start_delay"`
	ErrorPause      time.Duration `yaml:"-" toml:"-"`
	RawErrorPause   string        `yaml:"error_pause" toml:"error_pause"`
	// Seed makes schedules reproducible; 0 picks a random seed.
	Seed uint64 `yaml:"seed" toml:"seed"`
}

type LLMConfig struct {
	Providers   []string       `yaml:"providers" toml:"providers"`
	Timeout     time.Duration  `yaml:"-" toml:"-"`
	RawTimeout  string         `yaml:"timeout" toml:"timeout"`
	MaxTokens   int            `yaml:"max_tokens" toml:"max_tokens"`
	Temperature *float64       `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	NVIDIA      ProviderConfig `yaml:"nvidia" toml:"nvidia"`
	Google      ProviderConfig `yaml:"google" toml:"google"`
	OpenRouter  ProviderConfig `yaml:"openrouter" toml:"openrouter"`
	Claude      ClaudeConfig   `yaml:"claude" toml:"claude"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

type ClaudeConfig struct {
	Binary string `yaml:"binary" toml:"binary"`
	Model  string `yaml:"model" toml:"model"`
}

type ContentConfig struct {
	Disabled bool     `yaml:"disabled" toml:"disabled"`
	Dir      string   `yaml:"dir" toml:"dir"`
	Topics   []string `yaml:"topics" toml:"topics"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type TUIConfig struct {
	RefreshInterval time.Duration `yaml:"-" toml:"-"`
	RawInterval     string        `yaml:"refresh_interval" toml:"refresh_interval"`
}

// Load reads path (YAML, or TOML for a .toml extension), applies
// environment overrides and defaults, and validates the result. An empty
// path configures from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			err = toml.Unmarshal(data, &cfg)
		} else {
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Repo.Token, "GITHUB_TOKEN")
	setString(&c.Repo.Username, "GITHUB_USERNAME")
	setString(&c.Repo.BasePath, "REPO_BASE_PATH")
	setString(&c.LLM.NVIDIA.APIKey, "NIM_API_KEY")
	setString(&c.LLM.NVIDIA.Model, "NIM_MODEL")
	setString(&c.LLM.Google.APIKey, "GOOGLE_API_KEY")
	setString(&c.LLM.Google.Model, "GOOGLE_MODEL")
	setString(&c.LLM.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&c.LLM.OpenRouter.Model, "OPENROUTER_MODEL")
	setString(&c.Log.Level, "LOG_LEVEL")

	for key, dst := range map[string]*int{
		"MIN_COMMITS_PER_DAY": &c.Schedule.MinCommits,
		"MAX_COMMITS_PER_DAY": &c.Schedule.MaxCommits,
		"MAX_TOKENS":          &c.LLM.MaxTokens,
	} {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", key, v, err)
		}
		*dst = n
	}

	if v := getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse TEMPERATURE %q: %w", v, err)
		}
		c.LLM.Temperature = &f
	}
	return nil
}

func parseDuration(raw *string, def, field string) (time.Duration, error) {
	if *raw == "" {
		*raw = def
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, *raw, err)
	}
	return d, nil
}

func (c *Config) setDefaults() error {
	var err error

	if c.Workdir == "" {
		c.Workdir = filepath.Join(os.TempDir(), "auto-commit")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.Workdir, "logs", "auto-commit.log")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)

	r := &c.Repo
	if r.Owner == "" {
		r.Owner = r.Username
	}
	if r.URL == "" && r.Owner != "" && r.Name != "" {
		r.URL = fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Name)
	}
	if r.BasePath == "" {
		r.BasePath = "./repos"
	}
	if r.Path == "" {
		r.Path = filepath.Join(r.BasePath, r.dirName())
	}
	if r.Remote == "" {
		r.Remote = "origin"
	}
	if r.AuthorName == "" {
		r.AuthorName = "auto-commit"
		if r.Username != "" {
			r.AuthorName = r.Username
		}
	}
	if r.AuthorEmail == "" {
		r.AuthorEmail = "auto-commit@localhost"
		if r.Username != "" {
			r.AuthorEmail = r.Username + "@users.noreply.github.com"
		}
	}

	s := &c.Schedule
	// Each bound defaults on its own; a default never contradicts the bound
	// that was set.
	if s.MaxCommits == 0 {
		s.MaxCommits = max(defaultMaxCommits, s.MinCommits)
	}
	if s.MinCommits == 0 {
		s.MinCommits = min(defaultMinCommits, s.MaxCommits)
	}
	if s.Window, err = parseDuration(&s.RawWindow, "8h", "schedule.window"); err != nil {
		return err
	}
	if s.StartDelay, err = parseDuration(&s.RawStartDelay, "10s", "schedule.start_delay"); err != nil {
		return err
	}
	if s.ErrorPause, err = parseDuration(&s.RawErrorPause, "5s", "schedule.error_pause"); err != nil {
		return err
	}
	if s.Randomize == nil {
		v := true
		s.Randomize = &v
	}
	if s.ImmediateCommit == nil {
		v := true
		s.ImmediateCommit = &v
	}

	l := &c.LLM
	if len(l.Providers) == 0 {
		l.Providers = []string{ProviderNVIDIA, ProviderGoogle, ProviderOpenRouter}
	}
	for i := range l.Providers {
		l.Providers[i] = strings.ToLower(strings.TrimSpace(l.Providers[i]))
	}
	if l.Timeout, err = parseDuration(&l.RawTimeout, "30s", "llm.timeout"); err != nil {
		return err
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 1000
	}
	if l.Temperature == nil {
		v := 0.7
		l.Temperature = &v
	}
	if l.NVIDIA.Model == "" {
		l.NVIDIA.Model = "microsoft/phi-4-mini-instruct"
	}
	if l.Google.Model == "" {
		l.Google.Model = "gemini-2.0-flash"
	}
	if l.OpenRouter.Model == "" {
		l.OpenRouter.Model = "meta-llama/llama-3.3-70b-instruct:free"
	}
	if l.Claude.Model == "" {
		l.Claude.Model = "haiku"
	}

	if c.Content.Dir == "" {
		c.Content.Dir = "articles"
	}

	if c.TUI.RefreshInterval, err = parseDuration(&c.TUI.RawInterval, "1s", "tui.refresh_interval"); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	s := c.Schedule
	if s.MinCommits < 0 {
		return fmt.Errorf("schedule.min_commits must not be negative, got %d", s.MinCommits)
	}
	if s.MaxCommits < 1 {
		return fmt.Errorf("schedule.max_commits must be at least 1, got %d", s.MaxCommits)
	}
	if s.MinCommits > s.MaxCommits {
		return fmt.Errorf("schedule.min_commits (%d) exceeds schedule.max_commits (%d)", s.MinCommits, s.MaxCommits)
	}
	if s.Window <= 0 {
		return fmt.Errorf("schedule.window must be positive, got %s", s.RawWindow)
	}
	if s.StartDelay < 0 {
		return fmt.Errorf("schedule.start_delay must not be negative, got %s", s.RawStartDelay)
	}
	if s.ErrorPause < 0 {
		return fmt.Errorf("schedule.error_pause must not be negative, got %s", s.RawErrorPause)
	}

	seen := make(map[string]bool)
	for i, p := range c.LLM.Providers {
		if !slices.Contains(knownProviders, p) {
			return fmt.Errorf("llm.providers[%d]: unknown provider %q (%s)", i, p, strings.Join(knownProviders, "|"))
		}
		if seen[p] {
			return fmt.Errorf("llm.providers[%d]: duplicate provider %q", i, p)
		}
		seen[p] = true
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.RawTimeout)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if t := *c.LLM.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %g", t)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: invalid level %q (debug|info|warn|error)", c.Log.Level)
	}

	if c.TUI.RefreshInterval <= 0 {
		return fmt.Errorf("tui.refresh_interval must be positive, got %s", c.TUI.RawInterval)
	}
	return nil
}

// dirName derives the working-copy directory name from the remote.
func (r RepoConfig) dirName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.URL == "" {
		return "local"
	}
	trimmed := strings.TrimSuffix(strings.TrimRight(r.URL, "/"), ".git")
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		trimmed = u.Path
	}
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" || trimmed == "." {
		return "local"
	}
	return path.Clean(trimmed)
}

// AuthURL returns URL with username and token embedded for https GitHub
// remotes when both are set. Never log the result.
func (r RepoConfig) AuthURL() string {
	if r.URL == "" || r.Username == "" || r.Token == "" {
		return r.URL
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme != "https" || u.Host != "github.com" {
		return r.URL
	}
	u.User = url.UserPassword(r.Username, r.Token)
	return u.String()
}
