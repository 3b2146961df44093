package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

const (
	placeholderDir   = "updates"
	maxMessageWidth  = 72
	readmeName       = "README.md"
	commitMessageSys = "You write git commit messages. Reply with the message only."
)

const readmeContent = `# Automated Content Repository

This repository is maintained by an automated agent that writes generated
content and commits it on an irregular schedule.

- Content is produced by language-model backends with ordered fallback.
- Commits are spread across a fixed window with human-like spacing.
- When generation is unavailable, timestamped update files are committed instead.
`

const commitPrompt = `Write a git commit message for the change below.

Context: files in this repository are produced by an automated content pipeline.
Change: %s

Rules:
- concise and professional
- present tense, imperative mood
- at most 72 characters
- conventional commit prefix when it fits

Message:`

// writeContent asks the content provider for a file, falling back to a
// timestamped placeholder, writes it, and returns a change summary.
func (c *Controller) writeContent(ctx context.Context) (string, error) {
	var content, rel string
	if c.content != nil {
		content, rel = c.content.Produce(ctx)
	}

	summary := "Added new article: " + rel
	if content == "" || rel == "" || !filepath.IsLocal(rel) {
		if rel != "" && !filepath.IsLocal(rel) {
			c.logger.Warn("content path escapes repository, using placeholder", "path", rel)
		}
		now := c.now()
		rel = filepath.Join(placeholderDir, "update_"+now.Format("20060102_150405")+".txt")
		content = "Automated update at " + now.Format(time.RFC3339Nano) + "\n"
		summary = "Added timestamp file: " + rel
	}

	full := filepath.Join(c.opts.Path, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	c.logger.Info("created file", "path", rel)
	return summary, nil
}

func (c *Controller) writeReadme() error {
	path := filepath.Join(c.opts.Path, readmeName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat readme: %w", err)
	}
	if err := os.WriteFile(path, []byte(readmeContent), 0o644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}

// CommitMessage asks the text generator for a message describing summary
// and sanitizes it; an empty response yields a timestamped default.
func (c *Controller) CommitMessage(ctx context.Context, summary string) string {
	if summary == "" {
		summary = "Added or modified content files"
	}
	var raw string
	if c.text != nil {
		raw = c.text.Generate(ctx, fmt.Sprintf(commitPrompt, summary), commitMessageSys)
	}
	return SanitizeMessage(raw, c.now())
}

// SanitizeMessage trims quotes and whitespace, keeps the first line and
// truncates to 72 cells with a trailing "...".
func SanitizeMessage(raw string, now time.Time) string {
	msg := strings.Trim(strings.TrimSpace(raw), `"'`)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.Trim(strings.TrimSpace(msg), `"'`)
	msg = strings.TrimSpace(msg)

	if runewidth.StringWidth(msg) > maxMessageWidth {
		msg = runewidth.Truncate(msg, maxMessageWidth, "...")
	}
	if msg == "" {
		return "Update: " + now.Format("2006-01-02 15:04")
	}
	return msg
}
