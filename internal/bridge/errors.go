package bridge

import (
	"errors"
	"fmt"
)

// Engine errors, checked with errors.Is. Each carries the remaining
// manual step in its message because every abort is user-facing.
var (
	// ErrDiverged is returned when the branch tip is not a descendant of
	// the sync point commit. Resolve with Rebase or Reset before retrying.
	ErrDiverged = errors.New("local branch has diverged from the sync point: rebase or reset first")

	// ErrConcurrentRemoteChange is returned when a checkin hit a remote
	// change that landed after the sync point. Re-run the importer to
	// absorb it, then retry.
	ErrConcurrentRemoteChange = errors.New("concurrent remote change: import the new remote history, then retry")

	// ErrUnsyncedCommit is returned by the tag bridge when the tag's
	// target commit has no correspondence. Check the commit in first.
	ErrUnsyncedCommit = errors.New("commit has not been checked in to the remote")

	// ErrUnimportedVersion is returned by the tag bridge when the labeled
	// remote state has no correspondence. Import it first.
	ErrUnimportedVersion = errors.New("labeled remote state has not been imported")

	// ErrNotConfirmed is returned by Reset when the destructive operation
	// was not explicitly confirmed.
	ErrNotConfirmed = errors.New("reset discards local commits and requires explicit confirmation")

	// ErrNothingImported is returned by operations that require at least
	// one prior import on the branch.
	ErrNothingImported = errors.New("branch has no sync point: run an import first")
)

// StaleCheckoutError reports which commit and element hit a concurrent
// remote change during checkin. Unwraps to ErrConcurrentRemoteChange.
type StaleCheckoutError struct {
	Commit  string
	Element string
	Err     error
}

func (e *StaleCheckoutError) Error() string {
	return fmt.Sprintf("checkin of commit %s aborted at element %s: %v", shortID(e.Commit), e.Element, e.Err)
}

func (e *StaleCheckoutError) Unwrap() error {
	return ErrConcurrentRemoteChange
}

// RebaseConflictError reports an element whose changes could not be
// replayed cleanly, with a rendered diff of the two sides.
type RebaseConflictError struct {
	Commit  string
	Element string
	Diff    string
}

func (e *RebaseConflictError) Error() string {
	return fmt.Sprintf("rebase conflict replaying commit %s: overlapping changes to %s (resolve manually, then retry)",
		shortID(e.Commit), e.Element)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
