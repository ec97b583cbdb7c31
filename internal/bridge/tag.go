package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/remote"
)

// PushTag attaches a remote label to the element versions corresponding
// to the local tag's target commit. The commit must already be synced;
// otherwise ErrUnsyncedCommit is returned. An existing label is moved.
func (b *Bridge) PushTag(ctx context.Context, tag, label string) error {
	commit, err := b.local.ResolveTag(ctx, tag)
	if err != nil {
		return err
	}
	corr, err := b.cache.ByCommit(ctx, commit)
	if errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("tag %s targets commit %s: %w", tag, shortID(commit), ErrUnsyncedCommit)
	}
	if err != nil {
		return err
	}

	state, err := b.cache.StateAt(ctx, corr.ID)
	if err != nil {
		return err
	}
	versions := make([]remote.Version, 0, len(state))
	for el, ver := range state {
		versions = append(versions, remote.Version{Element: el, Version: ver})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Element < versions[j].Element })

	err = b.remote.CreateLabel(ctx, label, versions)
	if errors.Is(err, remote.ErrLabelExists) {
		err = b.remote.MoveLabel(ctx, label, versions)
	}
	if err != nil {
		return err
	}
	b.logger.Printf("pushed tag %s as label %s (%d elements)", tag, label, len(versions))
	return nil
}

// PullTag creates a local tag on the commit corresponding to a remote
// label's version set. The labeled state must match some imported
// correspondence exactly; otherwise ErrUnimportedVersion is returned.
func (b *Bridge) PullTag(ctx context.Context, label, tag string) error {
	versions, err := b.remote.ListLabel(ctx, label)
	if err != nil {
		return err
	}
	state := make(map[string]string, len(versions))
	for _, v := range versions {
		if b.excluded(v.Element) {
			continue
		}
		state[v.Element] = v.Version
	}

	corr, err := b.cache.ByFingerprint(ctx, cache.Fingerprint(state))
	if errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("label %s: %w", label, ErrUnimportedVersion)
	}
	if err != nil {
		return err
	}

	if err := b.local.CreateTag(ctx, tag, corr.LocalCommit); err != nil {
		return err
	}
	b.logger.Printf("pulled label %s as tag %s on %s", label, tag, shortID(corr.LocalCommit))
	return nil
}
