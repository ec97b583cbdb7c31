// Package bridge implements the synchronization engine between ClearCase
// and git.
//
// The engine walks remote version history and builds equivalent local
// commits (the importer), maps local commits back into remote checkin
// operations (the checkin engine), and resolves divergence between the two
// histories (rebase/reset). The correspondence cache is the serialization
// point: every operation reads the branch's sync point before acting and
// advances it only after fully succeeding.
//
// The engine is single-actor per branch. A per-branch file lock guards
// against the importer and the checkin engine interleaving on the same
// branch; independent branches may run concurrently.
package bridge

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/local"
	"github.com/steveyegge/ccbridge/internal/lockfile"
	"github.com/steveyegge/ccbridge/internal/remote"
)

// TieBreak selects how remote versions sharing a timestamp are ordered.
type TieBreak string

const (
	// TieBreakBackend preserves the backend's own per-element ordering
	// (the default).
	TieBreakBackend TieBreak = "backend"

	// TieBreakPath orders equal-timestamp versions by element path.
	TieBreakPath TieBreak = "path"
)

// Options configures a Bridge. Remote, Local and Cache are required.
type Options struct {
	Remote remote.Adapter
	Local  local.Adapter
	Cache  *cache.Cache

	// Include restricts the bridged elements to those matching one of
	// the glob patterns; empty means everything under the view.
	Include []string

	// Exclude drops elements matching any of the glob patterns.
	Exclude []string

	// TieBreak is the equal-timestamp ordering rule. Defaults to
	// TieBreakBackend.
	TieBreak TieBreak

	// MapAuthor translates a remote username into a local signature.
	// Defaults to a synthesized name-only signature.
	MapAuthor func(user string) local.Signature

	// LockDir is the directory for per-branch locks. Empty disables
	// locking (tests).
	LockDir string

	// Logger receives engine activity. Defaults to a discarding logger.
	Logger *log.Logger

	// Events receives sync lifecycle events. Defaults to a no-op sink.
	Events EventSink
}

// Bridge is the synchronization engine. Create with New; all exported
// methods are safe to call from one goroutine per branch.
type Bridge struct {
	remote remote.Adapter
	local  local.Adapter
	cache  *cache.Cache

	include  []string
	exclude  []string
	tieBreak TieBreak

	mapAuthor func(string) local.Signature
	lockDir   string
	logger    *log.Logger
	events    EventSink
}

// New creates a Bridge from opts.
func New(opts Options) *Bridge {
	b := &Bridge{
		remote:    opts.Remote,
		local:     opts.Local,
		cache:     opts.Cache,
		include:   opts.Include,
		exclude:   opts.Exclude,
		tieBreak:  opts.TieBreak,
		mapAuthor: opts.MapAuthor,
		lockDir:   opts.LockDir,
		logger:    opts.Logger,
		events:    opts.Events,
	}
	if b.tieBreak == "" {
		b.tieBreak = TieBreakBackend
	}
	if b.mapAuthor == nil {
		b.mapAuthor = func(user string) local.Signature {
			return local.Signature{Name: user}
		}
	}
	if b.logger == nil {
		b.logger = log.New(io.Discard, "", 0)
	}
	if b.events == nil {
		b.events = nopSink{}
	}
	return b
}

// lockBranch serializes importer and checkin engine runs on a branch.
// The returned release function is a no-op when locking is disabled.
func (b *Bridge) lockBranch(branch string) (func(), error) {
	if b.lockDir == "" {
		return func() {}, nil
	}
	lock, err := lockfile.Acquire(b.lockDir, branch)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release() }, nil
}

// syncPoint returns the branch's sync point, or (nil, nil) when the branch
// has never been synchronized.
func (b *Bridge) syncPoint(ctx context.Context, branch string) (*cache.Correspondence, error) {
	sp, err := b.cache.SyncPoint(ctx, branch)
	if err != nil {
		if errors.Is(err, cache.ErrNoSyncPoint) {
			return nil, nil
		}
		return nil, err
	}
	return sp, nil
}
