// Package remote defines the capability interface over the ClearCase side
// of the bridge.
//
// The bridge never talks to ClearCase directly; every interaction goes
// through the Adapter interface defined here. The design follows a strategy
// pattern: the engine depends only on this package, and implementations
// live in subpackages (internal/remote/cleartool for the real backend,
// in-memory fakes in tests).
//
// # Vocabulary
//
// ClearCase versions individual elements (files and directories), each with
// its own version tree. A "version" here is one immutable state of one
// element, identified by the element path and a version string such as
// "/main/3". Exclusive modification is mediated by checkout/checkin:
// a reserved checkout locks the element until it is checked in or the
// checkout is cancelled.
package remote

import (
	"context"
	"time"
)

// Op describes what a version event did to its element.
type Op int

const (
	// OpCheckin is a regular content checkin of a file element.
	OpCheckin Op = iota

	// OpDirectory is a checkin of a directory element. Directory versions
	// carry catalog changes (files added or removed) rather than content.
	OpDirectory

	// OpRemove indicates the element was removed from its parent directory.
	// Synthesized by adapters from directory version diffs; never produced
	// by the backend as a first-class event.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (o Op) String() string {
	switch o {
	case OpCheckin:
		return "checkin"
	case OpDirectory:
		return "directory"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Version identifies one immutable state of one element.
//
// Versions are created only by the backend and never mutate. The bridge
// treats (Element, Version) as the durable identity; all other fields are
// metadata carried along for commit construction.
type Version struct {
	// Element is the element path relative to the view root.
	Element string

	// Version is the backend version string, e.g. "/main/12".
	Version string

	// Op is the kind of event this version represents.
	Op Op

	// Author is the backend username that created the version.
	Author string

	// Time is the checkin timestamp as reported by the backend.
	Time time.Time

	// Comment is the checkin comment. May be empty or span multiple lines.
	Comment string

	// Target is the path the event applies to when it differs from the
	// element itself: for OpRemove, Element is the directory whose version
	// recorded the removal and Target is the removed child path.
	Target string
}

// Branch returns the branch component of the version string, e.g. "main"
// for "/main/12". Returns the empty string if the version has no branch.
func (v Version) Branch() string {
	s := v.Version
	// Strip the trailing numeric component, keep the last path element.
	end := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' || s[i] == '\\' {
			end = i
			break
		}
	}
	if end <= 0 {
		return ""
	}
	start := 0
	for i := end - 1; i >= 0; i-- {
		if s[i] == '/' || s[i] == '\\' {
			start = i + 1
			break
		}
	}
	return s[start:end]
}

// Element is one versioned object in the backend's tree.
type Element struct {
	// Path is the element path relative to the view root.
	Path string

	// Dir marks directory elements. Directory versions carry catalog
	// changes rather than content.
	Dir bool
}

// Checkout is an exclusive hold on an element, acquired by Adapter.Checkout
// and released by exactly one of Adapter.Checkin or Adapter.CancelCheckout.
//
// A Checkout that is never released is a leaked lock on the backend; the
// engine guarantees release on every exit path, including cancellation.
type Checkout struct {
	// Element is the element path being held.
	Element string

	// FromVersion is the version the checkout was taken from. Empty for
	// a checkout that will create a new element on checkin.
	FromVersion string
}

// Adapter is the narrow capability set the bridge requires from the
// ClearCase backend. All operations are potentially slow process or
// network calls and honor context cancellation.
type Adapter interface {
	// ListElements returns all elements under the view root, filtered by
	// the include patterns (path.Match globs matched against the element
	// path; empty means everything). Directory elements are included:
	// their histories are where removals surface.
	ListElements(ctx context.Context, include []string) ([]Element, error)

	// ListVersionsSince returns the versions of element created after
	// sinceVersion, ordered oldest to newest. An empty sinceVersion
	// returns the element's full history. Returns an empty slice when
	// there is nothing new.
	ListVersionsSince(ctx context.Context, element, sinceVersion string) ([]Version, error)

	// FetchContent returns the content of the element at the given version.
	FetchContent(ctx context.Context, v Version) ([]byte, error)

	// CurrentVersion returns the version of element currently selected by
	// the view, i.e. the element tip on the bridged branch.
	CurrentVersion(ctx context.Context, element string) (Version, error)

	// Checkout acquires an exclusive reserved hold on element, based on
	// fromVersion. An empty fromVersion requests creation of a new element
	// on the subsequent Checkin. Fails with ErrAlreadyCheckedOut when
	// another actor holds the element and ErrElementNotFound when the
	// element does not exist.
	Checkout(ctx context.Context, element, fromVersion string) (Checkout, error)

	// Checkin writes content and releases the hold, producing a new
	// version with the given comment. Fails with ErrStaleCheckout when the
	// element tip advanced past co.FromVersion since checkout; the hold is
	// NOT released in that case and the caller must CancelCheckout.
	Checkin(ctx context.Context, co Checkout, content []byte, comment string) (Version, error)

	// CancelCheckout releases the hold without creating a version.
	// Safe to call on a hold in any state; used for cleanup.
	CancelCheckout(ctx context.Context, co Checkout) error

	// RemoveElement removes an element from its parent directory,
	// producing a new directory version with the given comment.
	RemoveElement(ctx context.Context, element, comment string) error

	// CreateLabel creates the label type if needed and attaches it to
	// every version in the set. Fails with ErrLabelExists if the label is
	// already attached elsewhere and cannot be created fresh.
	CreateLabel(ctx context.Context, name string, versions []Version) error

	// MoveLabel re-attaches an existing label to the given version set,
	// replacing prior attachments.
	MoveLabel(ctx context.Context, name string, versions []Version) error

	// ListLabel returns the version set a label is attached to.
	// Fails with ErrLabelNotFound if the label type does not exist.
	ListLabel(ctx context.Context, name string) ([]Version, error)
}
