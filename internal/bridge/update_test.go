package bridge

import (
	"bytes"
	"context"
	"testing"

	"github.com/steveyegge/ccbridge/internal/local"
)

var snapshotAuthor = local.Signature{Name: "Build Bot", Email: "build@example.com"}

func TestUpdateFirstSnapshot(t *testing.T) {
	tb := newTestBridge(t, nil)
	ctx := context.Background()

	tb.remote.addVersion("a.txt", "/main/1", "alice", ts(0), "add a", []byte("a\n"))
	tb.remote.addVersion("b.txt", "/main/1", "bob", ts(1), "add b", []byte("b\n"))

	result, err := tb.Update(ctx, "main", UpdateOptions{Author: snapshotAuthor})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if result.Commit == "" {
		t.Fatal("no snapshot commit created")
	}
	if result.Added != 2 {
		t.Errorf("added %d, want 2", result.Added)
	}
	if tb.remote.updated != 1 {
		t.Error("remote view was not refreshed")
	}

	tree, err := tb.local.ReadTree(ctx, result.Commit)
	if err != nil {
		t.Fatalf("reading snapshot tree: %v", err)
	}
	if !bytes.Equal(tree["a.txt"], []byte("a\n")) || !bytes.Equal(tree["b.txt"], []byte("b\n")) {
		t.Error("snapshot tree does not match remote contents")
	}
	if tip, _ := tb.local.ResolveRef(ctx, "main"); tip != result.Commit {
		t.Error("branch ref not at the snapshot commit")
	}
}

func TestUpdateNoChangeIsNoOp(t *testing.T) {
	tb := newTestBridge(t, nil)
	ctx := context.Background()

	tb.remote.addVersion("a.txt", "/main/1", "alice", ts(0), "add a", []byte("a\n"))
	first, err := tb.Update(ctx, "main", UpdateOptions{Author: snapshotAuthor})
	if err != nil {
		t.Fatal(err)
	}

	second, err := tb.Update(ctx, "main", UpdateOptions{Author: snapshotAuthor})
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if second.Commit != "" {
		t.Error("unchanged remote produced a snapshot commit")
	}
	if tip, _ := tb.local.ResolveRef(ctx, "main"); tip != first.Commit {
		t.Error("no-op update moved the branch")
	}
}

func TestUpdateDiffsAgainstSyncPoint(t *testing.T) {
	tb := newTestBridge(t, nil)
	ctx := context.Background()

	tb.remote.addVersion("a.txt", "/main/1", "alice", ts(0), "add a", []byte("a1\n"))
	if _, err := tb.ImportHistory(ctx, "main", ImportOptions{}); err != nil {
		t.Fatal(err)
	}
	tb.remote.addVersion("a.txt", "/main/2", "alice", ts(5), "edit a", []byte("a2\n"))

	result, err := tb.Update(ctx, "main", UpdateOptions{Author: snapshotAuthor, Message: "nightly sync"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if result.Modified != 1 || result.Added != 0 {
		t.Errorf("modified=%d added=%d, want one modification", result.Modified, result.Added)
	}

	c, err := tb.local.ReadCommit(ctx, result.Commit)
	if err != nil {
		t.Fatal(err)
	}
	if c.Message != "nightly sync" {
		t.Errorf("message: got %q", c.Message)
	}

	// The round trip holds for snapshots too.
	again, err := tb.ImportHistory(ctx, "main", ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Commits) != 0 {
		t.Errorf("import after update created %d commits, want 0", len(again.Commits))
	}
}
