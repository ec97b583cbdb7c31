package git

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/steveyegge/ccbridge/internal/local"
)

func TestParseLog(t *testing.T) {
	raw := "aaa111" + fieldSep + "bbb222" + fieldSep + "Alice" + fieldSep + "alice@example.com" +
		fieldSep + "2024-01-15T10:30:00Z" + fieldSep + "fix overflow\n\nsecond paragraph\n" + recordSep +
		"\nbbb222" + fieldSep + "" + fieldSep + "Bob" + fieldSep + "bob@example.com" +
		fieldSep + "2024-01-14T09:00:00Z" + fieldSep + "initial\n" + recordSep + "\n"

	commits := parseLog(raw)
	if len(commits) != 2 {
		t.Fatalf("parseLog returned %d commits, want 2", len(commits))
	}

	c := commits[0]
	if c.ID != "aaa111" {
		t.Errorf("ID = %q, want aaa111", c.ID)
	}
	if len(c.Parents) != 1 || c.Parents[0] != "bbb222" {
		t.Errorf("Parents = %v, want [bbb222]", c.Parents)
	}
	if c.Author.Name != "Alice" || c.Author.Email != "alice@example.com" {
		t.Errorf("Author = %+v", c.Author)
	}
	if c.Message != "fix overflow\n\nsecond paragraph" {
		t.Errorf("Message = %q", c.Message)
	}
	if !c.Time.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("Time = %v", c.Time)
	}

	if len(commits[1].Parents) != 0 {
		t.Errorf("root commit Parents = %v, want none", commits[1].Parents)
	}
}

func TestParseLogMergeParents(t *testing.T) {
	raw := "ccc333" + fieldSep + "aaa111 bbb222" + fieldSep + "Alice" + fieldSep + "a@e.com" +
		fieldSep + "2024-01-15T10:30:00Z" + fieldSep + "merge\n" + recordSep

	commits := parseLog(raw)
	if len(commits) != 1 {
		t.Fatalf("parseLog returned %d commits, want 1", len(commits))
	}
	if len(commits[0].Parents) != 2 {
		t.Errorf("Parents = %v, want two", commits[0].Parents)
	}
}

func TestParseLogEmpty(t *testing.T) {
	if got := parseLog(""); len(got) != 0 {
		t.Errorf("parseLog(\"\") = %v, want empty", got)
	}
}

func TestParentDir(t *testing.T) {
	cases := []struct{ in, want string }{
		{"README.md", ""},
		{"src/main.c", "src"},
		{"a/b/c.txt", "a/b"},
	}
	for _, tc := range cases {
		if got := parentDir(tc.in); got != tc.want {
			t.Errorf("parentDir(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// initTestRepo creates a real repository in a temp dir. Tests that need
// the git binary skip when it is not installed.
func initTestRepo(t *testing.T) *Git {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available, skipping test")
	}

	dir := t.TempDir()
	cmd := exec.Command("git", "init", "--initial-branch=master", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init failed: %v\n%s", err, out)
	}

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestCreateAndReadCommit(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	author := local.Signature{Name: "Alice", Email: "alice@example.com"}
	when := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tree := local.Tree{
		"README.md":  []byte("hello\n"),
		"src/main.c": []byte("int main() { return 0; }\n"),
		"src/util.h": []byte("#pragma once\n"),
	}

	commit, err := g.CreateCommit(ctx, tree, nil, author, when, "initial import")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}
	if commit.ID == "" {
		t.Fatal("CreateCommit returned empty ID")
	}

	read, err := g.ReadCommit(ctx, commit.ID)
	if err != nil {
		t.Fatalf("ReadCommit failed: %v", err)
	}
	if read.Author.Name != "Alice" || read.Author.Email != "alice@example.com" {
		t.Errorf("Author = %+v", read.Author)
	}
	if read.Message != "initial import" {
		t.Errorf("Message = %q", read.Message)
	}
	if !read.Time.Equal(when) {
		t.Errorf("Time = %v, want %v", read.Time, when)
	}

	got, err := g.ReadTree(ctx, commit.ID)
	if err != nil {
		t.Fatalf("ReadTree failed: %v", err)
	}
	if len(got) != len(tree) {
		t.Fatalf("ReadTree returned %d paths, want %d", len(got), len(tree))
	}
	for p, want := range tree {
		if !bytes.Equal(got[p], want) {
			t.Errorf("tree[%q] = %q, want %q", p, got[p], want)
		}
	}
}

func TestCreateCommitDeterministic(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	author := local.Signature{Name: "Alice", Email: "alice@example.com"}
	when := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tree := local.Tree{"a.txt": []byte("a\n"), "dir/b.txt": []byte("b\n")}

	c1, err := g.CreateCommit(ctx, tree, nil, author, when, "same")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}
	c2, err := g.CreateCommit(ctx, tree, nil, author, when, "same")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}
	if c1.ID != c2.ID {
		t.Errorf("identical inputs produced different commits: %s vs %s", c1.ID, c2.ID)
	}
}

func TestCommitsBetweenAndAncestry(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	author := local.Signature{Name: "A", Email: "a@e.com"}
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	var ids []string
	parents := []string(nil)
	for i, msg := range []string{"one", "two", "three"} {
		tree := local.Tree{"f.txt": []byte(msg)}
		c, err := g.CreateCommit(ctx, tree, parents, author, base.Add(time.Duration(i)*time.Minute), msg)
		if err != nil {
			t.Fatalf("CreateCommit failed: %v", err)
		}
		ids = append(ids, c.ID)
		parents = []string{c.ID}
	}

	between, err := g.CommitsBetween(ctx, ids[0], ids[2])
	if err != nil {
		t.Fatalf("CommitsBetween failed: %v", err)
	}
	if len(between) != 2 {
		t.Fatalf("CommitsBetween returned %d commits, want 2", len(between))
	}
	if between[0].Message != "two" || between[1].Message != "three" {
		t.Errorf("wrong order: %q, %q", between[0].Message, between[1].Message)
	}

	ok, err := g.IsAncestor(ctx, ids[0], ids[2])
	if err != nil || !ok {
		t.Errorf("IsAncestor(one, three) = %v, %v, want true", ok, err)
	}
	ok, err = g.IsAncestor(ctx, ids[2], ids[0])
	if err != nil || ok {
		t.Errorf("IsAncestor(three, one) = %v, %v, want false", ok, err)
	}

	mb, err := g.MergeBase(ctx, ids[1], ids[2])
	if err != nil || mb != ids[1] {
		t.Errorf("MergeBase = %q, %v, want %q", mb, err, ids[1])
	}
}

func TestUpdateRefFastForwardGuard(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	author := local.Signature{Name: "A", Email: "a@e.com"}
	when := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	c1, err := g.CreateCommit(ctx, local.Tree{"f": []byte("1")}, nil, author, when, "one")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}
	c2, err := g.CreateCommit(ctx, local.Tree{"f": []byte("2")}, []string{c1.ID}, author, when, "two")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}
	// Unrelated root commit, not a descendant of c2.
	orphan, err := g.CreateCommit(ctx, local.Tree{"g": []byte("x")}, nil, author, when, "orphan")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}

	if err := g.UpdateRef(ctx, "master", c1.ID, false); err != nil {
		t.Fatalf("creating ref failed: %v", err)
	}
	if err := g.UpdateRef(ctx, "master", c2.ID, false); err != nil {
		t.Fatalf("fast-forward failed: %v", err)
	}

	err = g.UpdateRef(ctx, "master", orphan.ID, false)
	if err == nil {
		t.Fatal("non-fast-forward move succeeded without force")
	}

	if err := g.UpdateRef(ctx, "master", orphan.ID, true); err != nil {
		t.Fatalf("forced move failed: %v", err)
	}
	tip, err := g.ResolveRef(ctx, "master")
	if err != nil || tip != orphan.ID {
		t.Errorf("tip = %q, %v, want %q", tip, err, orphan.ID)
	}
}

func TestResolveRefNotFound(t *testing.T) {
	g := initTestRepo(t)

	_, err := g.ResolveRef(context.Background(), "no-such-branch")
	if err == nil {
		t.Fatal("expected error for missing ref")
	}
}

func TestTags(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	c, err := g.CreateCommit(ctx, local.Tree{"f": []byte("1")},
		nil, local.Signature{Name: "A", Email: "a@e.com"},
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), "one")
	if err != nil {
		t.Fatalf("CreateCommit failed: %v", err)
	}

	if err := g.CreateTag(ctx, "v1.0", c.ID); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	got, err := g.ResolveTag(ctx, "v1.0")
	if err != nil || got != c.ID {
		t.Errorf("ResolveTag = %q, %v, want %q", got, err, c.ID)
	}
}
