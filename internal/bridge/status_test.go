package bridge

import (
	"context"
	"testing"

	"github.com/steveyegge/ccbridge/internal/local"
)

func TestStatusUnsynced(t *testing.T) {
	tb := newTestBridge(t, nil)

	st, err := tb.Status(context.Background(), "main")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Synced {
		t.Error("unsynced branch reported as synced")
	}
}

func TestStatusPendingCommits(t *testing.T) {
	tb := newTestBridge(t, nil)
	ctx := context.Background()

	tb.remote.addVersion("keep.txt", "/main/1", "alice", ts(0), "initial", []byte("k"))
	tb.remote.addVersion("gone.txt", "/main/1", "alice", ts(0), "initial", []byte("g"))
	if _, err := tb.ImportHistory(ctx, "main", ImportOptions{}); err != nil {
		t.Fatal(err)
	}

	tb.local.commitOn(t, "main", func(tree local.Tree) {
		tree["keep.txt"] = []byte("k2")
		tree["new.txt"] = []byte("n")
		delete(tree, "gone.txt")
	}, "mixed change")

	st, err := tb.Status(ctx, "main")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Synced || st.State != "ahead" {
		t.Fatalf("state %q synced=%v, want ahead and synced", st.State, st.Synced)
	}
	if len(st.Pending) != 1 {
		t.Fatalf("got %d pending commits, want 1", len(st.Pending))
	}
	p := st.Pending[0]
	if p.Subject != "mixed change" {
		t.Errorf("subject: got %q", p.Subject)
	}
	if len(p.Added) != 1 || p.Added[0] != "new.txt" {
		t.Errorf("added: %v", p.Added)
	}
	if len(p.Modified) != 1 || p.Modified[0] != "keep.txt" {
		t.Errorf("modified: %v", p.Modified)
	}
	if len(p.Deleted) != 1 || p.Deleted[0] != "gone.txt" {
		t.Errorf("deleted: %v", p.Deleted)
	}
}

func TestStatusClean(t *testing.T) {
	tb := newTestBridge(t, nil)
	ctx := context.Background()

	tb.remote.addVersion("a.txt", "/main/1", "alice", ts(0), "add", []byte("a"))
	if _, err := tb.ImportHistory(ctx, "main", ImportOptions{}); err != nil {
		t.Fatal(err)
	}

	st, err := tb.Status(ctx, "main")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != "clean" || len(st.Pending) != 0 {
		t.Errorf("state %q with %d pending, want clean and none", st.State, len(st.Pending))
	}
	if st.SyncCommit != st.Tip {
		t.Error("clean branch tip differs from sync commit")
	}
}
