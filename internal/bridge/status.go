package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/ccbridge/internal/local"
)

// CommitStatus summarizes one local commit pending checkin.
type CommitStatus struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Time     time.Time `json:"time"`
	Subject  string    `json:"subject"`
	Added    []string  `json:"added,omitempty"`
	Modified []string  `json:"modified,omitempty"`
	Deleted  []string  `json:"deleted,omitempty"`
}

// BranchStatus reports a branch's position relative to its sync point.
type BranchStatus struct {
	Branch string `json:"branch"`

	// Synced is false when the branch has never been imported.
	Synced bool `json:"synced"`

	// SyncCommit is the local commit at the sync point.
	SyncCommit string `json:"sync_commit,omitempty"`

	// SyncedAt is when the sync point correspondence was recorded.
	SyncedAt time.Time `json:"synced_at,omitempty"`

	Tip        string     `json:"tip,omitempty"`
	Divergence Divergence `json:"-"`
	State      string     `json:"state"`

	// Pending are the commits past the sync point, oldest first. Empty
	// unless the branch is ahead.
	Pending []CommitStatus `json:"pending,omitempty"`
}

// Status reports the branch's sync state and the commits pending checkin.
// Read-only: it takes no branch lock and never contacts the remote.
func (b *Bridge) Status(ctx context.Context, branch string) (*BranchStatus, error) {
	st := &BranchStatus{Branch: branch, State: Clean.String()}

	sp, err := b.syncPoint(ctx, branch)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return st, nil
	}
	st.Synced = true
	st.SyncCommit = sp.LocalCommit
	st.SyncedAt = sp.CreatedAt

	tip, err := b.local.ResolveRef(ctx, branch)
	if errors.Is(err, local.ErrRefNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.Tip = tip

	st.Divergence, err = b.Detect(ctx, branch)
	if err != nil {
		return nil, err
	}
	st.State = st.Divergence.String()
	if st.Divergence != Ahead {
		return st, nil
	}

	commits, err := b.local.CommitsBetween(ctx, sp.LocalCommit, tip)
	if err != nil {
		return nil, err
	}
	prevTree, err := b.local.ReadTree(ctx, sp.LocalCommit)
	if err != nil {
		return nil, err
	}
	for _, c := range commits {
		tree, err := b.local.ReadTree(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		cs := CommitStatus{
			ID:      c.ID,
			Author:  c.Author.Name,
			Time:    c.Time,
			Subject: firstLine(c.Message),
		}
		for _, ch := range b.dropExcluded(diffTrees(prevTree, tree)) {
			switch ch.Kind {
			case changeAdd:
				cs.Added = append(cs.Added, ch.Path)
			case changeModify:
				cs.Modified = append(cs.Modified, ch.Path)
			case changeDelete:
				cs.Deleted = append(cs.Deleted, ch.Path)
			}
		}
		st.Pending = append(st.Pending, cs)
		prevTree = tree
	}
	return st, nil
}
