package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoUpstream is returned by Pull when the current branch has no
// remote-tracking branch configured.
var ErrNoUpstream = errors.New("no upstream branch")

// Error is a failed git invocation with its combined output.
type Error struct {
	Args   []string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := "git " + strings.Join(redactArgs(e.Args), " ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(redact(e.Output)); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsNoUpstream reports whether err means the branch tracks no remote branch.
func IsNoUpstream(err error) bool {
	if errors.Is(err, ErrNoUpstream) {
		return true
	}
	var gerr *Error
	if !errors.As(err, &gerr) {
		return false
	}
	out := strings.ToLower(gerr.Output)
	return strings.Contains(out, "no upstream branch") ||
		strings.Contains(out, "no tracking information")
}

// IsUnresolvedHead reports whether err means HEAD could not be resolved,
// i.e. the repository has no commits on the current branch.
func IsUnresolvedHead(err error) bool {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return false
	}
	out := gerr.Output
	if !strings.Contains(out, "HEAD") {
		return false
	}
	for _, marker := range []string{
		"did not resolve",
		"not a valid object",
		"unknown revision",
		"ambiguous argument 'HEAD'",
		"does not have any commits",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

type Client struct {
	logger      *slog.Logger
	authorName  string
	authorEmail string
}

func NewClient(authorName, authorEmail string, logger *slog.Logger) *Client {
	return &Client{logger: logger, authorName: authorName, authorEmail: authorEmail}
}

// IsRepository reports whether dir contains version-control metadata.
func (c *Client) IsRepository(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Clone clones url into dir. dir must not exist or be empty.
func (c *Client) Clone(ctx context.Context, url, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	_, err := c.run(ctx, "", "clone", url, dir)
	return err
}

// Init creates an empty repository at dir.
func (c *Client) Init(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	_, err := c.run(ctx, dir, "init")
	return err
}

// CommitCount returns the number of commits reachable from HEAD, zero for
// a repository without history.
func (c *Client) CommitCount(ctx context.Context, dir string) (int, error) {
	if _, err := c.run(ctx, dir, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		return 0, nil
	}
	out, err := c.run(ctx, dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse commit count %q: %w", out, err)
	}
	return n, nil
}

// Log returns commit subjects from HEAD, newest first.
func (c *Client) Log(ctx context.Context, dir string, limit int) ([]string, error) {
	args := []string{"log", "--pretty=format:%s"}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	out, err := c.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Add stages a single path relative to dir.
func (c *Client) Add(ctx context.Context, dir, path string) error {
	_, err := c.run(ctx, dir, "add", "--", path)
	return err
}

// AddAll stages every change in the working tree.
func (c *Client) AddAll(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "add", "-A")
	return err
}

// HasChanges reports whether the working tree or index differ from HEAD.
func (c *Client) HasChanges(ctx context.Context, dir string) (bool, error) {
	out, err := c.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit records the index with message using the configured identity.
func (c *Client) Commit(ctx context.Context, dir, message string) error {
	args := []string{"-c", "commit.gpgsign=false"}
	if c.authorName != "" {
		args = append(args, "-c", "user.name="+c.authorName)
	}
	if c.authorEmail != "" {
		args = append(args, "-c", "user.email="+c.authorEmail)
	}
	args = append(args, "commit", "-m", message)
	_, err := c.run(ctx, dir, args...)
	return err
}

// HasUpstream reports whether the current branch tracks a remote branch.
func (c *Client) HasUpstream(ctx context.Context, dir string) bool {
	_, err := c.run(ctx, dir, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	return err == nil
}

// Pull merges the upstream of the current branch from remote. It returns
// ErrNoUpstream without contacting the remote when nothing is tracked.
func (c *Client) Pull(ctx context.Context, dir, remote string) error {
	if !c.HasUpstream(ctx, dir) {
		return ErrNoUpstream
	}
	_, err := c.run(ctx, dir, "pull", "--no-rebase", "--no-edit", remote)
	return err
}

// Push pushes branch to remote, optionally recording it as upstream.
func (c *Client) Push(ctx context.Context, dir, remote, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "--set-upstream")
	}
	args = append(args, remote)
	if branch != "" {
		args = append(args, branch)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// CurrentBranch returns the checked-out branch name, including an unborn
// branch in a repository without commits.
func (c *Client) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "" {
		return "", fmt.Errorf("detached HEAD in %s", dir)
	}
	return branch, nil
}

// Remotes lists configured remote names.
func (c *Client) Remotes(ctx context.Context, dir string) ([]string, error) {
	out, err := c.run(ctx, dir, "remote")
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

func (c *Client) AddRemote(ctx context.Context, dir, name, url string) error {
	_, err := c.run(ctx, dir, "remote", "add", name, url)
	return err
}

func (c *Client) RemoveRemote(ctx context.Context, dir, name string) error {
	_, err := c.run(ctx, dir, "remote", "remove", name)
	return err
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	c.logger.Debug("exec", "cmd", "git "+strings.Join(redactArgs(args), " "), "dir", dir)
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never block on a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), &Error{Args: args, Output: redact(string(out)), Err: err}
	}
	return string(out), nil
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = redact(a)
	}
	return out
}

// redact strips userinfo from any https URL in s.
func redact(s string) string {
	const scheme = "https://"
	var b strings.Builder
	for {
		i := strings.Index(s, scheme)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i+len(scheme)])
		s = s[i+len(scheme):]
		end := strings.IndexAny(s, "/ \n\t")
		host := s
		if end >= 0 {
			host = s[:end]
		}
		if at := strings.LastIndex(host, "@"); at >= 0 {
			b.WriteString("***@")
			s = s[at+1:]
		}
	}
}
