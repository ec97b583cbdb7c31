package remote

import "errors"

// Common errors returned by Adapter implementations.
//
// These are checked with errors.Is; implementations wrap them with
// backend-specific context.
var (
	// ErrElementNotFound is returned when the named element does not
	// exist in the backend.
	ErrElementNotFound = errors.New("element not found")

	// ErrAlreadyCheckedOut is returned by Checkout when another actor
	// holds a reserved checkout on the element.
	ErrAlreadyCheckedOut = errors.New("element already checked out")

	// ErrStaleCheckout is returned by Checkin when the element tip
	// advanced past the checkout's base version. This is the defining
	// race of the bridge: another actor checked in between our checkout
	// and checkin. Never retried automatically; the conflicting change
	// must be imported first.
	ErrStaleCheckout = errors.New("checkout is stale: element tip advanced")

	// ErrVersionNotFound is returned when a version string does not
	// identify an existing version of the element.
	ErrVersionNotFound = errors.New("version not found")

	// ErrLabelNotFound is returned when the named label type does not exist.
	ErrLabelNotFound = errors.New("label not found")

	// ErrLabelExists is returned by CreateLabel when the label type
	// already exists; use MoveLabel instead.
	ErrLabelExists = errors.New("label already exists")

	// ErrBackendUnavailable is returned when the backend executable or
	// service cannot be reached at all. Transient; retry is the caller's
	// decision.
	ErrBackendUnavailable = errors.New("remote backend unavailable")
)
