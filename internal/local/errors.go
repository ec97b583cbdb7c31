package local

import "errors"

// Common errors returned by Adapter implementations, checked with errors.Is.
var (
	// ErrNotInRepo is returned when the path is not inside a git repository.
	ErrNotInRepo = errors.New("not in a git repository")

	// ErrRefNotFound is returned when a branch, tag or other ref does
	// not exist.
	ErrRefNotFound = errors.New("reference not found")

	// ErrCommitNotFound is returned when a commit hash does not resolve.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrNonFastForward is returned by UpdateRef when the move would
	// discard commits and force was not set.
	ErrNonFastForward = errors.New("non-fast-forward ref update")

	// ErrGitTooOld is returned when the installed git is older than the
	// minimum supported version.
	ErrGitTooOld = errors.New("git version too old")
)
