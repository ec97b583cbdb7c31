// Package git provides the exec-based git implementation of the local
// Adapter interface.
//
// All operations shell out to the git binary using plumbing commands
// (hash-object, mktree, commit-tree, rev-list, ls-tree) so that commits
// can be constructed with explicit trees, parents and authorship without
// touching the working directory or the index.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/steveyegge/ccbridge/internal/local"
)

// MinVersion is the minimum supported git version. Plumbing behavior the
// adapter relies on (commit-tree -m, update-ref old-value checks) is stable
// well before this, but versions this old are untested.
const MinVersion = "v2.20.0"

// Git implements local.Adapter for a git repository.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// gitDir is the .git directory path
	gitDir string
}

// New creates a Git adapter for the repository containing path.
func New(path string) (*Git, error) {
	g := &Git{}

	root, err := g.revParse(path, "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", local.ErrNotInRepo, path)
	}
	g.repoRoot = root

	dir, err := g.revParse(path, "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", local.ErrNotInRepo, path)
	}
	g.gitDir = dir

	if err := g.checkVersion(); err != nil {
		return nil, err
	}

	return g, nil
}

// RepoRoot returns the repository root directory path.
func (g *Git) RepoRoot() string {
	return g.repoRoot
}

// GitDir returns the .git directory path.
func (g *Git) GitDir() string {
	return g.gitDir
}

// Version returns the git binary version string, e.g. "2.39.0".
func (g *Git) Version() (string, error) {
	out, err := exec.Command("git", "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}
	return strings.TrimPrefix(strings.TrimSpace(string(out)), "git version "), nil
}

// checkVersion enforces MinVersion using semver comparison.
func (g *Git) checkVersion() error {
	version, err := g.Version()
	if err != nil {
		return err
	}
	// Strip platform suffixes like "2.39.0 (Apple Git-145)".
	if i := strings.IndexByte(version, ' '); i > 0 {
		version = version[:i]
	}
	v := "v" + version
	if !semver.IsValid(v) {
		// Unparseable version strings are let through rather than
		// blocking on exotic builds.
		return nil
	}
	if semver.Compare(v, MinVersion) < 0 {
		return fmt.Errorf("%w: have %s, need %s or newer",
			local.ErrGitTooOld, version, strings.TrimPrefix(MinVersion, "v"))
	}
	return nil
}

// revParse runs git rev-parse in dir without requiring an initialized Git.
func (g *Git) revParse(dir string, arg string) (string, error) {
	cmd := exec.Command("git", "rev-parse", arg)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// run executes a git command in the repository root and returns stdout.
// stderr is folded into the returned error.
func (g *Git) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	return g.runEnv(ctx, stdin, nil, args...)
}

// runEnv is run with additional environment variables (KEY=VALUE form).
func (g *Git) runEnv(ctx context.Context, stdin []byte, env []string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoRoot
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, stderr.String())
	}
	return out, nil
}
