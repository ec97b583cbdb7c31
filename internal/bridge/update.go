package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/local"
)

// Refresher is implemented by remote adapters whose view contents can go
// stale and need an explicit refresh before a snapshot is taken.
type Refresher interface {
	Update(ctx context.Context) error
}

// UpdateOptions configures an Update run.
type UpdateOptions struct {
	// Author signs the snapshot commit. Required.
	Author local.Signature

	// Message is the snapshot commit message. A default naming the
	// branch is used when empty.
	Message string
}

// UpdateResult reports what an Update run did.
type UpdateResult struct {
	Branch string

	// Commit is the snapshot commit, or empty when the remote state
	// already matches the sync point.
	Commit string

	Added    int
	Modified int
	Deleted  int
}

// Update imports the remote's current state as a single snapshot commit
// instead of replaying history. It covers views whose history is not
// enumerable (snapshot views, config specs selecting by label) where
// ImportHistory cannot run. The snapshot diff is applied on top of the
// sync point; an unchanged remote produces no commit.
func (b *Bridge) Update(ctx context.Context, branch string, opts UpdateOptions) (*UpdateResult, error) {
	release, err := b.lockBranch(branch)
	if err != nil {
		return nil, err
	}
	defer release()

	if r, ok := b.remote.(Refresher); ok {
		if err := r.Update(ctx); err != nil {
			return nil, err
		}
	}

	sp, err := b.syncPoint(ctx, branch)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{Branch: branch}
	var tree local.Tree
	var parents []string
	if sp != nil {
		if tree, err = b.local.ReadTree(ctx, sp.LocalCommit); err != nil {
			return nil, err
		}
		parents = []string{sp.LocalCommit}
	} else {
		tree = local.Tree{}
	}

	state := make(map[string]string)
	snapshot := local.Tree{}
	elements, err := b.remote.ListElements(ctx, b.include)
	if err != nil {
		return nil, err
	}
	for _, el := range elements {
		if el.Dir || b.excluded(el.Path) {
			continue
		}
		v, err := b.remote.CurrentVersion(ctx, el.Path)
		if err != nil {
			return nil, fmt.Errorf("describing %s: %w", el.Path, err)
		}
		content, err := b.remote.FetchContent(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", el.Path, err)
		}
		snapshot[el.Path] = content
		state[el.Path] = v.Version
	}

	changes := diffTrees(tree, snapshot)
	if len(changes) == 0 {
		b.logger.Printf("update %s: remote matches sync point, nothing to do", branch)
		return result, nil
	}
	delta := make([]cache.ElementVersion, 0, len(changes))
	for _, ch := range changes {
		switch ch.Kind {
		case changeAdd:
			result.Added++
		case changeModify:
			result.Modified++
		case changeDelete:
			result.Deleted++
			delta = append(delta, cache.ElementVersion{Element: ch.Path, Removed: true})
			continue
		}
		delta = append(delta, cache.ElementVersion{Element: ch.Path, Version: state[ch.Path]})
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Snapshot of %s", branch)
	}
	commit, err := b.local.CreateCommit(ctx, snapshot, parents, opts.Author, time.Now(), message)
	if err != nil {
		return nil, err
	}

	corr := &cache.Correspondence{
		Branch:      branch,
		LocalCommit: commit.ID,
		Fingerprint: cache.Fingerprint(state),
		Origin:      cache.OriginImport,
		Versions:    delta,
	}
	if err := b.cache.Record(ctx, corr, true); err != nil {
		return nil, err
	}

	force := sp == nil
	if !force {
		tipBefore, err := b.local.ResolveRef(ctx, branch)
		switch {
		case errors.Is(err, local.ErrRefNotFound):
			force = true
		case err != nil:
			return nil, err
		case tipBefore != sp.LocalCommit:
			b.emit(EventDiverged, branch, tipBefore, "update recorded but branch not moved")
			result.Commit = commit.ID
			return result, fmt.Errorf("branch %s: %w", branch, ErrDiverged)
		}
	}
	if err := b.local.UpdateRef(ctx, branch, commit.ID, force); err != nil {
		return nil, err
	}
	result.Commit = commit.ID
	b.logger.Printf("update %s: %s (+%d ~%d -%d)", branch, shortID(commit.ID), result.Added, result.Modified, result.Deleted)
	b.emit(EventCommitImported, branch, commit.ID, message)
	return result, nil
}
