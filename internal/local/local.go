// Package local defines the capability interface over the git side of the
// bridge.
//
// Mirroring internal/remote, the engine depends only on this interface;
// the exec-based git implementation lives in internal/local/git and tests
// use in-memory fakes.
//
// The interface is deliberately narrow: the bridge needs to create commits
// with explicit trees, parents and authorship, read trees back, walk
// commit ranges, and move refs and tags. Anything else git can do is out
// of scope.
package local

import (
	"context"
	"time"
)

// Signature identifies a commit author or committer.
type Signature struct {
	Name  string
	Email string
}

// Commit is one immutable snapshot of the full tree.
type Commit struct {
	// ID is the commit hash.
	ID string

	// Parents are the parent commit hashes, first parent first.
	Parents []string

	// Author is the commit author.
	Author Signature

	// Time is the author timestamp.
	Time time.Time

	// Message is the full commit message.
	Message string
}

// Tree maps repository-relative paths to file contents.
// A nil value for a path is not allowed; absent paths are absent files.
type Tree map[string][]byte

// Clone returns a shallow copy of the tree (contents are shared).
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for p, c := range t {
		out[p] = c
	}
	return out
}

// Adapter is the narrow capability set the bridge requires from git.
type Adapter interface {
	// CreateCommit writes tree as a commit object with the given parents,
	// authorship and message, and returns the resulting commit. The
	// committer matches the author. No ref is moved.
	CreateCommit(ctx context.Context, tree Tree, parents []string, author Signature, when time.Time, message string) (Commit, error)

	// ReadCommit returns the commit metadata for the given commit hash.
	ReadCommit(ctx context.Context, id string) (Commit, error)

	// ReadTree returns the full tree snapshot of the commit.
	ReadTree(ctx context.Context, id string) (Tree, error)

	// CommitsBetween returns the first-parent chain from ancestor
	// (exclusive) to descendant (inclusive), oldest first.
	CommitsBetween(ctx context.Context, ancestor, descendant string) ([]Commit, error)

	// IsAncestor reports whether a is an ancestor of (or equal to) b.
	IsAncestor(ctx context.Context, a, b string) (bool, error)

	// MergeBase returns the best common ancestor of a and b.
	MergeBase(ctx context.Context, a, b string) (string, error)

	// ResolveRef resolves a branch name or other ref to a commit hash.
	// Fails with ErrRefNotFound if the ref does not exist.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// UpdateRef points branch at newTip, creating it if absent. Unless
	// force is set, fails with ErrNonFastForward when the current tip is
	// not an ancestor of newTip. Force is used only by the divergence
	// resolver after it has justified a rewrite.
	UpdateRef(ctx context.Context, branch, newTip string, force bool) error

	// CreateTag creates (or moves) a lightweight tag pointing at the commit.
	CreateTag(ctx context.Context, name, commitID string) error

	// ResolveTag resolves a tag name to the commit it points at.
	// Fails with ErrRefNotFound if the tag does not exist.
	ResolveTag(ctx context.Context, name string) (string, error)
}
