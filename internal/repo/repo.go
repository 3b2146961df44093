// Package repo drives a working copy from an unknown, possibly empty state
// to one where ordinary pull, commit and push cycles succeed.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/marcin-skalski/auto-commit/internal/git"
)

// ErrNotSetUp is returned by RunCommitCycle before Setup has run.
var ErrNotSetUp = errors.New("repository not set up")

// VCS is the subset of the git client the controller drives.
type VCS interface {
	IsRepository(dir string) bool
	Clone(ctx context.Context, url, dir string) error
	Init(ctx context.Context, dir string) error
	CommitCount(ctx context.Context, dir string) (int, error)
	AddAll(ctx context.Context, dir string) error
	HasChanges(ctx context.Context, dir string) (bool, error)
	Commit(ctx context.Context, dir, message string) error
	HasUpstream(ctx context.Context, dir string) bool
	Pull(ctx context.Context, dir, remote string) error
	Push(ctx context.Context, dir, remote, branch string, setUpstream bool) error
	CurrentBranch(ctx context.Context, dir string) (string, error)
	Remotes(ctx context.Context, dir string) ([]string, error)
	AddRemote(ctx context.Context, dir, name, url string) error
	RemoveRemote(ctx context.Context, dir, name string) error
}

// ContentProvider returns new file content and its path relative to the
// working copy, or two empty strings when it has nothing.
type ContentProvider interface {
	Produce(ctx context.Context) (content, path string)
}

// TextGenerator returns generated text, or "" when every backend failed.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, system string) string
}

type Options struct {
	// URL is the remote used for clone and push. It may embed credentials.
	// Empty means the repository is local only.
	URL string
	// DisplayURL is logged instead of URL.
	DisplayURL string
	Path       string
	Remote     string
}

type Controller struct {
	opts    Options
	vcs     VCS
	content ContentProvider
	text    TextGenerator
	logger  *slog.Logger
	now     func() time.Time

	state     State
	hasRemote bool
	opened    bool
}

// New returns a controller in StateUninitialized. content and text may be
// nil; the controller then always uses its synthetic fallbacks.
func New(opts Options, vcs VCS, content ContentProvider, text TextGenerator, logger *slog.Logger) *Controller {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.DisplayURL == "" {
		opts.DisplayURL = opts.URL
	}
	return &Controller{
		opts:    opts,
		vcs:     vcs,
		content: content,
		text:    text,
		logger:  logger.With("repo", opts.Path),
		now:     time.Now,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// HasRemote reports whether the configured remote exists in the working copy.
func (c *Controller) HasRemote() bool { return c.hasRemote }

// Path returns the working-copy directory.
func (c *Controller) Path() string { return c.opts.Path }

// Setup opens, clones or initializes the working copy and determines
// whether it has history.
func (c *Controller) Setup(ctx context.Context) error {
	switch {
	case c.vcs.IsRepository(c.opts.Path):
		c.logger.Info("opening existing repository")

	case c.opts.URL != "":
		c.logger.Info("cloning repository", "url", c.opts.DisplayURL)
		if err := c.vcs.Clone(ctx, c.opts.URL, c.opts.Path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("clone failed, initializing new repository", "err", err)
			return c.initFresh(ctx)
		}

	default:
		return c.initFresh(ctx)
	}

	c.opened = true
	c.inspect(ctx)
	return nil
}

func (c *Controller) initFresh(ctx context.Context) error {
	c.logger.Info("initializing new repository")
	if err := c.vcs.Init(ctx, c.opts.Path); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	c.hasRemote = false
	if c.opts.URL != "" {
		if err := c.replaceRemote(ctx); err != nil {
			c.logger.Warn("could not add remote", "remote", c.opts.Remote, "err", err)
		} else {
			c.hasRemote = true
		}
	}

	c.opened = true
	c.state = StateClonedEmpty
	c.logger.Info("new repository initialized", "has_remote", c.hasRemote)
	return nil
}

func (c *Controller) replaceRemote(ctx context.Context) error {
	remotes, err := c.vcs.Remotes(ctx, c.opts.Path)
	if err != nil {
		return fmt.Errorf("list remotes: %w", err)
	}
	if slices.Contains(remotes, c.opts.Remote) {
		if err := c.vcs.RemoveRemote(ctx, c.opts.Path, c.opts.Remote); err != nil {
			return fmt.Errorf("remove remote: %w", err)
		}
	}
	return c.vcs.AddRemote(ctx, c.opts.Path, c.opts.Remote, c.opts.URL)
}

func (c *Controller) inspect(ctx context.Context) {
	remotes, err := c.vcs.Remotes(ctx, c.opts.Path)
	if err != nil {
		c.logger.Warn("list remotes failed", "err", err)
	}
	c.hasRemote = slices.Contains(remotes, c.opts.Remote)

	n, err := c.vcs.CommitCount(ctx, c.opts.Path)
	switch {
	case err != nil:
		c.logger.Error("inspect history failed, treating repository as empty", "err", err)
		c.state = StateClonedEmpty
	case n == 0:
		c.logger.Warn("repository has no commits")
		c.state = StateClonedEmpty
	default:
		c.logger.Info("repository has history", "commits", n)
		c.state = StateClonedNonEmpty
	}
}

// RunCommitCycle performs one commit cycle for the current state. Handled
// failures come back in the Outcome; the error is reserved for unexpected
// ones such as filesystem failures.
func (c *Controller) RunCommitCycle(ctx context.Context) (Outcome, error) {
	switch c.state {
	case StateUninitialized:
		return Outcome{}, ErrNotSetUp
	case StateClonedEmpty:
		return c.bootstrap(ctx)
	default:
		return c.normalCycle(ctx)
	}
}

// bootstrap creates the first commit together with a README and pushes it
// while establishing the upstream branch. It never recurses.
func (c *Controller) bootstrap(ctx context.Context) (Outcome, error) {
	c.logger.Info("repository is empty, creating initial commit")

	summary, err := c.writeContent(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return c.commitInitial(ctx, c.CommitMessage(ctx, summary))
}

// commitInitial stages the working tree with a README and creates the first
// commit with message. Recovery reuses it with the content already written.
func (c *Controller) commitInitial(ctx context.Context, message string) (Outcome, error) {
	if err := c.writeReadme(); err != nil {
		return Outcome{}, err
	}
	if err := c.vcs.AddAll(ctx, c.opts.Path); err != nil {
		return Outcome{Message: fmt.Sprintf("stage initial commit: %v", err)}, nil
	}
	if err := c.vcs.Commit(ctx, c.opts.Path, message); err != nil {
		return Outcome{Message: fmt.Sprintf("create initial commit: %v", err)}, nil
	}
	c.state = StateBootstrapped
	c.logger.Info("initial commit created", "message", message)

	if !c.hasRemote {
		c.logger.Warn("no remote configured, commit done locally only")
		return Outcome{Success: true, Message: message + " (local only)"}, nil
	}

	branch, err := c.vcs.CurrentBranch(ctx, c.opts.Path)
	if err == nil {
		err = c.vcs.Push(ctx, c.opts.Path, c.opts.Remote, branch, true)
	}
	if err != nil {
		c.logger.Error("push of initial commit failed", "err", err)
		return Outcome{Message: fmt.Sprintf("initial commit created but push failed: %v", err)}, nil
	}

	c.logger.Info("initial commit pushed", "branch", branch)
	return Outcome{Success: true, Message: message}, nil
}

func (c *Controller) normalCycle(ctx context.Context) (Outcome, error) {
	if c.hasRemote {
		c.pull(ctx)
	}

	summary, err := c.writeContent(ctx)
	if err != nil {
		return Outcome{}, err
	}
	message := c.CommitMessage(ctx, summary)

	out, err := c.commitAndPush(ctx, message)
	if err == nil {
		return out, nil
	}

	if git.IsUnresolvedHead(err) {
		c.logger.Warn("HEAD did not resolve, retrying through initial commit", "err", err)
		c.state = StateClonedEmpty
		return c.commitInitial(ctx, message)
	}

	c.logger.Error("commit/push failed", "err", err)
	return Outcome{Message: err.Error()}, nil
}

// pull is best effort: a missing upstream is expected before the first
// push, and any other failure is logged and ignored.
func (c *Controller) pull(ctx context.Context) {
	err := c.vcs.Pull(ctx, c.opts.Path, c.opts.Remote)
	switch {
	case err == nil:
		c.logger.Info("pulled latest changes")
	case git.IsNoUpstream(err):
		c.logger.Info("no upstream branch set yet, skipping pull")
	default:
		c.logger.Warn("pull failed, continuing", "err", err)
	}
}

func (c *Controller) commitAndPush(ctx context.Context, message string) (Outcome, error) {
	if err := c.vcs.AddAll(ctx, c.opts.Path); err != nil {
		return Outcome{}, fmt.Errorf("stage: %w", err)
	}
	changed, err := c.vcs.HasChanges(ctx, c.opts.Path)
	if err != nil {
		return Outcome{}, fmt.Errorf("status: %w", err)
	}
	if !changed {
		c.logger.Info("no changes to commit")
		return Outcome{NoChanges: true, Message: "no changes to commit"}, nil
	}

	if err := c.vcs.Commit(ctx, c.opts.Path, message); err != nil {
		return Outcome{}, fmt.Errorf("commit: %w", err)
	}
	c.logger.Info("committed", "message", message)

	if !c.hasRemote {
		c.logger.Warn("no remote configured, commit done locally only")
		return Outcome{Success: true, Message: message + " (local only)"}, nil
	}

	if err := c.push(ctx); err != nil {
		return Outcome{}, fmt.Errorf("push: %w", err)
	}
	c.logger.Info("pushed to remote", "remote", c.opts.Remote)
	return Outcome{Success: true, Message: message}, nil
}

func (c *Controller) push(ctx context.Context) error {
	branch, err := c.vcs.CurrentBranch(ctx, c.opts.Path)
	if err != nil {
		return err
	}

	upstream := c.vcs.HasUpstream(ctx, c.opts.Path)
	err = c.vcs.Push(ctx, c.opts.Path, c.opts.Remote, branch, !upstream)
	if err != nil && upstream && git.IsNoUpstream(err) {
		c.logger.Info("remote reports no upstream branch, pushing with upstream", "branch", branch)
		err = c.vcs.Push(ctx, c.opts.Path, c.opts.Remote, branch, true)
	}
	return err
}

// Health describes the working copy. Introspection failures land in Error.
type Health struct {
	Path         string `json:"path"`
	PathExists   bool   `json:"path_exists"`
	GitDirExists bool   `json:"git_dir_exists"`
	Open         bool   `json:"open"`
	State        string `json:"state"`
	HasRemote    bool   `json:"has_remote"`
	Branch       string `json:"branch,omitempty"`
	CommitCount  int    `json:"commit_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Health never fails; errors are reported in Health.Error.
func (c *Controller) Health(ctx context.Context) (h Health) {
	h = Health{
		Path:      c.opts.Path,
		Open:      c.opened,
		State:     c.state.String(),
		HasRemote: c.hasRemote,
	}
	defer func() {
		if r := recover(); r != nil {
			h.Error = fmt.Sprint(r)
		}
	}()

	if _, err := os.Stat(c.opts.Path); err == nil {
		h.PathExists = true
	} else if !errors.Is(err, os.ErrNotExist) {
		h.Error = err.Error()
		return h
	}
	if h.PathExists {
		_, err := os.Stat(filepath.Join(c.opts.Path, ".git"))
		h.GitDirExists = err == nil
	}

	if !c.opened || !c.state.HasHistory() {
		return h
	}

	branch, err := c.vcs.CurrentBranch(ctx, c.opts.Path)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.Branch = branch

	n, err := c.vcs.CommitCount(ctx, c.opts.Path)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.CommitCount = n
	return h
}
