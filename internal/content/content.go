// Package content produces generated Markdown articles for the working copy.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	DefaultDir   = "articles"
	maxSlugLen   = 48
	systemPrompt = "You are a technical writer. Reply with the article in Markdown only."
)

const articlePrompt = `Write a short technical article in Markdown about: %s

Start with a single level-1 heading containing the title, then 3 to 5 short
sections with practical advice. Keep it under 600 words.`

// DefaultTopics are used when none are configured.
var DefaultTopics = []string{
	"writing readable Go error messages",
	"structuring configuration for small services",
	"testing code that shells out to external tools",
	"graceful shutdown with context cancellation",
	"designing small interfaces",
	"log levels and what belongs at each",
	"keeping git history easy to bisect",
	"retry strategies for flaky network calls",
	"table-driven tests",
	"documenting command-line tools",
}

type Generator interface {
	Generate(ctx context.Context, prompt, system string) string
}

type Provider struct {
	gen    Generator
	logger *slog.Logger
	topics []string
	dir    string
	rnd    *rand.Rand
	now    func() time.Time
}

type Option func(*Provider)

func WithTopics(topics []string) Option {
	return func(p *Provider) {
		if len(topics) > 0 {
			p.topics = topics
		}
	}
}

func WithDir(dir string) Option {
	return func(p *Provider) {
		if dir != "" {
			p.dir = dir
		}
	}
}

func WithRand(r *rand.Rand) Option { return func(p *Provider) { p.rnd = r } }

func WithClock(now func() time.Time) Option { return func(p *Provider) { p.now = now } }

func New(gen Generator, logger *slog.Logger, opts ...Option) *Provider {
	p := &Provider{
		gen:    gen,
		logger: logger,
		topics: DefaultTopics,
		dir:    DefaultDir,
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Produce generates an article on a random topic and returns its content
// and a path relative to the working copy. Both are empty when generation
// failed.
func (p *Provider) Produce(ctx context.Context) (string, string) {
	topic := p.topics[p.rnd.IntN(len(p.topics))]
	body := strings.TrimSpace(p.gen.Generate(ctx, fmt.Sprintf(articlePrompt, topic), systemPrompt))
	if body == "" {
		p.logger.Warn("article generation returned nothing", "topic", topic)
		return "", ""
	}

	title := Title(body)
	if title == "" {
		title = topic
	}
	name := fmt.Sprintf("%s-%s-%s.md", p.now().Format("20060102-150405"), Slug(title), uuid.NewString()[:8])
	p.logger.Info("article generated", "topic", topic, "title", title)
	return body + "\n", filepath.Join(p.dir, name)
}

// Title returns the text of the first heading in a Markdown document.
func Title(markdown string) string {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(string(h.Text(src)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// Slug lowercases s and joins its alphanumeric runs with single dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "article"
	}
	return slug
}
