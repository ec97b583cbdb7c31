// Package cleartool provides the exec-based ClearCase implementation of
// the remote Adapter interface.
//
// All operations shell out to the cleartool binary inside a snapshot view.
// Version history is read with lshistory using a pipe-delimited format
// string; content is fetched with get; modifications go through the
// reserved checkout / checkin cycle.
package cleartool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/steveyegge/ccbridge/internal/remote"
)

// Tool implements remote.Adapter against a ClearCase snapshot view.
type Tool struct {
	// view is the view root directory all commands run in.
	view string

	// branches are glob patterns matched against a version's branch;
	// versions on unmatched branches are invisible to the bridge.
	// Empty means every branch.
	branches []string

	// exe is the cleartool executable name, overridable for tests.
	exe string

	// backupPath, when set, receives the raw lshistory output of every
	// element queried, for debugging and later replay.
	backupPath string
	backupMu   sync.Mutex
	backupLive bool

	// replayPath, when set, serves element histories from a saved
	// backup file instead of running lshistory.
	replayPath      string
	replayOnce      sync.Once
	replayErr       error
	replayByElement map[string][]remote.Version
}

// Option configures a Tool.
type Option func(*Tool)

// WithBranches restricts the bridge to versions whose branch matches one
// of the given glob patterns (path.Match syntax).
func WithBranches(patterns []string) Option {
	return func(t *Tool) {
		t.branches = patterns
	}
}

// WithExecutable overrides the cleartool executable name.
func WithExecutable(exe string) Option {
	return func(t *Tool) {
		t.exe = exe
	}
}

// WithHistoryBackup saves the raw lshistory output of every queried
// element to path. The file is truncated on the first write of a Tool's
// lifetime and can be fed back through WithHistoryReplay.
func WithHistoryBackup(path string) Option {
	return func(t *Tool) {
		t.backupPath = path
	}
}

// WithHistoryReplay reads element histories from a file saved by
// WithHistoryBackup instead of running lshistory. Content fetches and
// directory diffs still go through cleartool.
func WithHistoryReplay(path string) Option {
	return func(t *Tool) {
		t.replayPath = path
	}
}

// New creates a Tool rooted at the given snapshot view directory.
func New(view string, opts ...Option) *Tool {
	t := &Tool{view: view, exe: "cleartool"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// View returns the view root directory.
func (t *Tool) View() string {
	return t.view
}

// Update refreshes the snapshot view. Errors from update are reported but
// frequently benign (hijacked files), so callers may choose to proceed.
func (t *Tool) Update(ctx context.Context) error {
	_, err := t.run(ctx, "update", ".")
	return err
}

// run executes a cleartool command in the view root and returns stdout.
func (t *Tool) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.exe, args...)
	cmd.Dir = t.view

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, t.classify(args, err, stderr.String())
	}
	return out, nil
}

// classify maps cleartool failures onto the package sentinel errors,
// keyed off the messages cleartool prints to stderr.
func (t *Tool) classify(args []string, err error, stderr string) error {
	wrap := func(sentinel error) error {
		return fmt.Errorf("cleartool %s: %w\n%s", strings.Join(args, " "), sentinel, stderr)
	}

	if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
		return fmt.Errorf("%w: %v", remote.ErrBackendUnavailable, err)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "already checked out"),
		strings.Contains(lower, "checked out reserved"):
		return wrap(remote.ErrAlreadyCheckedOut)
	case strings.Contains(lower, "not an element"),
		strings.Contains(lower, "unable to access"),
		strings.Contains(lower, "no such file"):
		return wrap(remote.ErrElementNotFound)
	case strings.Contains(lower, "version selector"),
		strings.Contains(lower, "not a version"):
		return wrap(remote.ErrVersionNotFound)
	case strings.Contains(lower, "lock on"),
		strings.Contains(lower, "newer version"):
		return wrap(remote.ErrStaleCheckout)
	}

	return fmt.Errorf("cleartool %s failed: %w\n%s", strings.Join(args, " "), err, stderr)
}

// extendedPath returns the version-extended pathname element@@version.
func extendedPath(element, version string) string {
	return element + "@@" + version
}
