package bridge

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/steveyegge/ccbridge/internal/local"
)

// Divergence classifies how a branch tip relates to its sync point.
type Divergence int

const (
	// Clean means the tip is the sync point commit.
	Clean Divergence = iota
	// Ahead means the tip descends from the sync point; local commits
	// are pending checkin.
	Ahead
	// Behind means the sync point descends from the tip; imported
	// history has not been fast-forwarded onto the branch.
	Behind
	// Diverged means neither side contains the other.
	Diverged
)

func (d Divergence) String() string {
	switch d {
	case Clean:
		return "clean"
	case Ahead:
		return "ahead"
	case Behind:
		return "behind"
	default:
		return "diverged"
	}
}

// Detect reports how branch relates to its sync point. Read-only.
func (b *Bridge) Detect(ctx context.Context, branch string) (Divergence, error) {
	sp, err := b.syncPoint(ctx, branch)
	if err != nil {
		return Clean, err
	}
	if sp == nil {
		return Clean, ErrNothingImported
	}
	tip, err := b.local.ResolveRef(ctx, branch)
	if err != nil {
		return Clean, err
	}
	if tip == sp.LocalCommit {
		return Clean, nil
	}
	if ok, err := b.local.IsAncestor(ctx, sp.LocalCommit, tip); err != nil {
		return Clean, err
	} else if ok {
		return Ahead, nil
	}
	if ok, err := b.local.IsAncestor(ctx, tip, sp.LocalCommit); err != nil {
		return Clean, err
	} else if ok {
		return Behind, nil
	}
	return Diverged, nil
}

// RebaseResult reports what a Rebase run did.
type RebaseResult struct {
	Branch string

	// Commits are the replayed commits, oldest first, with their new IDs.
	Commits []local.Commit

	// Tip is the branch tip after the rebase.
	Tip string
}

// Rebase replays the local commits that diverged from the sync point on
// top of it, preserving their author, timestamp and message, then moves
// the branch ref to the replayed tip.
//
// Each file change is replayed three-way against the fork point: a path
// changed on both sides with different results is a conflict, reported
// via RebaseConflictError without moving the ref. Changes identical on
// both sides replay as no-ops.
func (b *Bridge) Rebase(ctx context.Context, branch string) (*RebaseResult, error) {
	release, err := b.lockBranch(branch)
	if err != nil {
		return nil, err
	}
	defer release()

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
	result := &RebaseResult{Branch: branch, Tip: tip}
	if tip == sp.LocalCommit {
		return result, nil
	}
	if ok, err := b.local.IsAncestor(ctx, sp.LocalCommit, tip); err != nil {
		return nil, err
	} else if ok {
		// Already based on the sync point; nothing to replay.
		return result, nil
	}

	base, err := b.local.MergeBase(ctx, tip, sp.LocalCommit)
	if err != nil {
		return nil, err
	}
	commits, err := b.local.CommitsBetween(ctx, base, tip)
	if err != nil {
		return nil, err
	}

	origTree, err := b.local.ReadTree(ctx, base)
	if err != nil {
		return nil, err
	}
	newTree, err := b.local.ReadTree(ctx, sp.LocalCommit)
	if err != nil {
		return nil, err
	}

	newParent := sp.LocalCommit
	for _, c := range commits {
		tree, err := b.local.ReadTree(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, ch := range diffTrees(origTree, tree) {
			if err := replayChange(c.ID, ch, origTree, newTree); err != nil {
				return nil, err
			}
		}

		replayed, err := b.local.CreateCommit(ctx, newTree, []string{newParent}, c.Author, c.Time, c.Message)
		if err != nil {
			return nil, err
		}
		b.logger.Printf("rebased %s as %s: %s", shortID(c.ID), shortID(replayed.ID), firstLine(c.Message))

		result.Commits = append(result.Commits, replayed)
		newParent = replayed.ID
		origTree = tree
	}

	if err := b.local.UpdateRef(ctx, branch, newParent, true); err != nil {
		return nil, err
	}
	result.Tip = newParent
	b.emit(EventRebased, branch, newParent, fmt.Sprintf("%d commits replayed", len(result.Commits)))
	return result, nil
}

// replayChange applies one side's change to the rebased tree, detecting
// overlap with the other side's changes since the fork point.
func replayChange(commit string, ch treeChange, orig, tree local.Tree) error {
	current, exists := tree[ch.Path]
	forked, hadForked := orig[ch.Path]
	otherSideChanged := exists != hadForked || (exists && !bytes.Equal(current, forked))

	switch ch.Kind {
	case changeDelete:
		if otherSideChanged {
			return &RebaseConflictError{
				Commit:  commit,
				Element: ch.Path,
				Diff:    renderConflict(current, nil),
			}
		}
		delete(tree, ch.Path)
	default:
		if otherSideChanged && !bytes.Equal(current, ch.Content) {
			return &RebaseConflictError{
				Commit:  commit,
				Element: ch.Path,
				Diff:    renderConflict(current, ch.Content),
			}
		}
		tree[ch.Path] = ch.Content
	}
	return nil
}

// renderConflict produces a human-readable diff between the imported
// content and the local content that could not be replayed over it.
func renderConflict(imported, ours []byte) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(imported), string(ours), false)
	dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}

// Reset discards all local commits past the sync point by moving the
// branch ref back to it. Destructive; callers must pass confirmed=true
// after prompting the user.
func (b *Bridge) Reset(ctx context.Context, branch string, confirmed bool) (string, error) {
	if !confirmed {
		return "", ErrNotConfirmed
	}
	release, err := b.lockBranch(branch)
	if err != nil {
		return "", err
	}
	defer release()

	sp, err := b.syncPoint(ctx, branch)
	if err != nil {
		return "", err
	}
	if sp == nil {
		return "", ErrNothingImported
	}
	if err := b.local.UpdateRef(ctx, branch, sp.LocalCommit, true); err != nil {
		return "", err
	}
	b.logger.Printf("reset %s to sync point %s", branch, shortID(sp.LocalCommit))
	b.emit(EventReset, branch, sp.LocalCommit, "branch reset to sync point")
	return sp.LocalCommit, nil
}
