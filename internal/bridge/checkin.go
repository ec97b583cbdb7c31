package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/local"
	"github.com/steveyegge/ccbridge/internal/remote"
)

// CheckinOptions configures a Checkin run.
type CheckinOptions struct {
	// Force overwrites remote changes that landed after the sync point
	// instead of aborting with ErrConcurrentRemoteChange. Content the
	// bridge has not imported is lost; use with care.
	Force bool

	// Label is an existing remote label type applied to every version
	// created by the run. Label failures are reported but do not abort.
	Label string
}

// CheckinResult reports what a Checkin run did.
type CheckinResult struct {
	Branch string

	// Commits are the local commits whose checkin fully succeeded, with
	// correspondence recorded, oldest first.
	Commits []local.Commit

	// Versions are the remote versions created, in checkin order.
	Versions []remote.Version
}

// Checkin maps local commits not yet reflected remotely into remote
// checkin operations, one commit at a time in ancestor order.
//
// Each commit's checkin is atomic with respect to sync point advancement:
// the correspondence is recorded and the sync point advanced only after
// every changed element of that commit is checked in, so a crash between
// commits leaves a valid, resumable sync point. Any staleness aborts the
// whole commit, cancels every checkout held for it, and surfaces
// ErrConcurrentRemoteChange. Cancellation via ctx likewise releases all
// holds before returning.
func (b *Bridge) Checkin(ctx context.Context, branch string, opts CheckinOptions) (*CheckinResult, error) {
	release, err := b.lockBranch(branch)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &CheckinResult{Branch: branch}

	sp, err := b.syncPoint(ctx, branch)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, ErrNothingImported
	}

	tip, err := b.local.ResolveRef(ctx, branch)
	if err != nil {
		return nil, err
	}
	if tip != sp.LocalCommit {
		ok, err := b.local.IsAncestor(ctx, sp.LocalCommit, tip)
		if err != nil {
			return nil, err
		}
		if !ok {
			b.emit(EventDiverged, branch, tip, "checkin refused")
			return nil, fmt.Errorf("branch %s: %w", branch, ErrDiverged)
		}
	}

	commits, err := b.local.CommitsBetween(ctx, sp.LocalCommit, tip)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return result, nil
	}

	state, err := b.cache.StateAt(ctx, sp.ID)
	if err != nil {
		return nil, err
	}
	prevTree, err := b.local.ReadTree(ctx, sp.LocalCommit)
	if err != nil {
		return nil, err
	}

	b.emit(EventCheckinStarted, branch, tip, fmt.Sprintf("%d commits pending", len(commits)))

	for _, c := range commits {
		tree, err := b.local.ReadTree(ctx, c.ID)
		if err != nil {
			return result, err
		}
		changes := diffTrees(prevTree, tree)
		changes = b.dropExcluded(changes)

		versions, delta, err := b.checkinCommit(ctx, c, changes, state, opts)
		if err != nil {
			return result, err
		}

		for _, d := range delta {
			if d.Removed {
				delete(state, d.Element)
			} else {
				state[d.Element] = d.Version
			}
		}
		corr := &cache.Correspondence{
			Branch:      branch,
			LocalCommit: c.ID,
			Fingerprint: cache.Fingerprint(state),
			Origin:      cache.OriginCheckin,
			Versions:    delta,
		}
		if err := b.cache.Record(ctx, corr, true); err != nil {
			return result, err
		}

		prevTree = tree
		result.Commits = append(result.Commits, c)
		result.Versions = append(result.Versions, versions...)
		b.logger.Printf("checked in %s: %s (%d elements)", shortID(c.ID), firstLine(c.Message), len(versions))
		b.emit(EventCommitCheckedIn, branch, c.ID, firstLine(c.Message))
	}

	b.emit(EventCheckinFinished, branch, tip, fmt.Sprintf("%d commits", len(result.Commits)))
	return result, nil
}

// changeKind classifies one path in a tree diff.
type changeKind int

const (
	changeAdd changeKind = iota
	changeModify
	changeDelete
)

type treeChange struct {
	Path    string
	Kind    changeKind
	Content []byte
}

// diffTrees compares two tree snapshots and returns the changes from old
// to new, sorted by path.
func diffTrees(old, new local.Tree) []treeChange {
	var changes []treeChange
	for p, content := range new {
		prior, ok := old[p]
		switch {
		case !ok:
			changes = append(changes, treeChange{Path: p, Kind: changeAdd, Content: content})
		case !bytes.Equal(prior, content):
			changes = append(changes, treeChange{Path: p, Kind: changeModify, Content: content})
		}
	}
	for p := range old {
		if _, ok := new[p]; !ok {
			changes = append(changes, treeChange{Path: p, Kind: changeDelete})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func (b *Bridge) dropExcluded(changes []treeChange) []treeChange {
	out := changes[:0:0]
	for _, ch := range changes {
		if !b.excluded(ch.Path) {
			out = append(out, ch)
		}
	}
	return out
}

// checkinCommit checks in all of one commit's changes as a transaction:
// every changed element is checked out first, then checked in; any
// failure cancels every hold still outstanding before returning.
func (b *Bridge) checkinCommit(ctx context.Context, c local.Commit, changes []treeChange, state map[string]string, opts CheckinOptions) ([]remote.Version, []cache.ElementVersion, error) {
	tx := &checkinTx{bridge: b}
	done := false
	defer func() {
		if !done {
			tx.rollback(ctx)
		}
	}()

	// Checkout phase: acquire every hold before writing anything.
	for _, ch := range changes {
		if ch.Kind == changeDelete {
			continue
		}
		base := state[ch.Path]
		if base != "" {
			cur, err := b.remote.CurrentVersion(ctx, ch.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("describing %s: %w", ch.Path, err)
			}
			if cur.Version != base {
				if !opts.Force {
					return nil, nil, &StaleCheckoutError{
						Commit:  c.ID,
						Element: ch.Path,
						Err:     fmt.Errorf("remote tip %s is past sync point version %s", cur.Version, base),
					}
				}
				b.logger.Printf("WARNING: overwriting remote change to %s (%s -> %s)", ch.Path, base, cur.Version)
				base = cur.Version
			}
		}
		co, err := b.remote.Checkout(ctx, ch.Path, base)
		if err != nil {
			if errors.Is(err, remote.ErrAlreadyCheckedOut) {
				return nil, nil, &StaleCheckoutError{Commit: c.ID, Element: ch.Path, Err: err}
			}
			return nil, nil, fmt.Errorf("checking out %s: %w", ch.Path, err)
		}
		tx.add(co, ch.Content)
	}

	// Checkin phase.
	versions := make([]remote.Version, 0, len(tx.pending))
	delta := make([]cache.ElementVersion, 0, len(changes))
	for i := range tx.pending {
		p := &tx.pending[i]
		v, err := b.remote.Checkin(ctx, p.co, p.content, c.Message)
		if err != nil {
			if errors.Is(err, remote.ErrStaleCheckout) {
				return nil, nil, &StaleCheckoutError{Commit: c.ID, Element: p.co.Element, Err: err}
			}
			return nil, nil, fmt.Errorf("checking in %s: %w", p.co.Element, err)
		}
		p.done = true
		versions = append(versions, v)
		delta = append(delta, cache.ElementVersion{Element: v.Element, Version: v.Version})
	}
	done = true

	// Removal phase, after every content checkin succeeded so staleness
	// can no longer abort the commit.
	for _, ch := range changes {
		if ch.Kind != changeDelete {
			continue
		}
		if err := b.remote.RemoveElement(ctx, ch.Path, c.Message); err != nil {
			return nil, nil, fmt.Errorf("removing %s: %w", ch.Path, err)
		}
		delta = append(delta, cache.ElementVersion{Element: ch.Path, Removed: true})
	}

	if opts.Label != "" && len(versions) > 0 {
		if err := b.remote.MoveLabel(ctx, opts.Label, versions); err != nil {
			// The versions exist either way; a label failure must not
			// desynchronize the cache.
			b.logger.Printf("WARNING: failed to apply label %s: %v", opts.Label, err)
		}
	}

	return versions, delta, nil
}

// checkinTx tracks the checkouts held for one commit so they can be
// released on every exit path. A hold that cannot be cancelled is a
// leaked remote lock and is loudly reported.
type checkinTx struct {
	bridge  *Bridge
	pending []pendingCheckout
}

type pendingCheckout struct {
	co      remote.Checkout
	content []byte
	done    bool
}

func (tx *checkinTx) add(co remote.Checkout, content []byte) {
	tx.pending = append(tx.pending, pendingCheckout{co: co, content: content})
}

// rollback cancels every hold not yet checked in. Cleanup proceeds even
// when ctx is cancelled: leaking reserved checkouts blocks every other
// actor on those elements.
func (tx *checkinTx) rollback(ctx context.Context) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, p := range tx.pending {
		if p.done {
			continue
		}
		if err := tx.bridge.remote.CancelCheckout(cleanupCtx, p.co); err != nil {
			tx.bridge.logger.Printf("ERROR: leaked checkout of %s: cancel failed: %v (release it with cleartool unco)",
				p.co.Element, err)
		}
	}
}
