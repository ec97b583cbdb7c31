package git

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/ccbridge/internal/local"
)

// Field and record separators for log parsing. %x01/%x1e in the format
// string keep multi-line messages unambiguous.
const (
	fieldSep  = "\x01"
	recordSep = "\x1e"
	logFormat = "%H\x01%P\x01%an\x01%ae\x01%aI\x01%B\x1e"
)

// CreateCommit implements local.Adapter.CreateCommit.
//
// The tree is written object by object: blobs via hash-object, directory
// trees bottom-up via mktree, and finally commit-tree with authorship
// supplied through GIT_AUTHOR_*/GIT_COMMITTER_* environment variables.
func (g *Git) CreateCommit(ctx context.Context, tree local.Tree, parents []string, author local.Signature, when time.Time, message string) (local.Commit, error) {
	treeID, err := g.writeTree(ctx, tree)
	if err != nil {
		return local.Commit{}, err
	}

	if message == "" {
		message = "<empty message>"
	}

	args := []string{"commit-tree", treeID}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)

	date := when.Format(time.RFC3339)
	env := []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + date,
		"GIT_COMMITTER_NAME=" + author.Name,
		"GIT_COMMITTER_EMAIL=" + author.Email,
		"GIT_COMMITTER_DATE=" + date,
	}

	out, err := g.runEnv(ctx, nil, env, args...)
	if err != nil {
		return local.Commit{}, err
	}

	id := strings.TrimSpace(string(out))
	return local.Commit{
		ID:      id,
		Parents: parents,
		Author:  author,
		Time:    when,
		Message: message,
	}, nil
}

// writeTree writes the full tree snapshot as git tree objects and returns
// the root tree hash.
func (g *Git) writeTree(ctx context.Context, tree local.Tree) (string, error) {
	// blobs[dir][name] = entry line for mktree
	type entry struct {
		mode, typ, id string
	}
	dirs := map[string]map[string]entry{"": {}}

	ensureDir := func(d string) {
		for d != "" {
			if _, ok := dirs[d]; ok {
				return
			}
			dirs[d] = map[string]entry{}
			d = parentDir(d)
		}
	}

	for p, content := range tree {
		id, err := g.hashObject(ctx, content)
		if err != nil {
			return "", err
		}
		dir := parentDir(p)
		ensureDir(dir)
		dirs[dir][path.Base(p)] = entry{mode: "100644", typ: "blob", id: id}
	}

	// Deepest directories first so parents can reference child tree
	// hashes; the root ("") is always last.
	depth := func(d string) int {
		if d == "" {
			return -1
		}
		return strings.Count(d, "/")
	}
	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Slice(names, func(i, j int) bool {
		if depth(names[i]) != depth(names[j]) {
			return depth(names[i]) > depth(names[j])
		}
		return names[i] < names[j]
	})

	var rootID string
	for _, d := range names {
		entries := dirs[d]
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for _, k := range keys {
			e := entries[k]
			fmt.Fprintf(&b, "%s %s %s\t%s\n", e.mode, e.typ, e.id, k)
		}

		out, err := g.run(ctx, []byte(b.String()), "mktree")
		if err != nil {
			return "", err
		}
		id := strings.TrimSpace(string(out))

		if d == "" {
			rootID = id
			break
		}
		parent := parentDir(d)
		dirs[parent][path.Base(d)] = entry{mode: "040000", typ: "tree", id: id}
	}

	return rootID, nil
}

// parentDir returns the directory component of p, "" for top-level names.
func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

// hashObject writes content as a blob and returns its hash.
func (g *Git) hashObject(ctx context.Context, content []byte) (string, error) {
	out, err := g.run(ctx, content, "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ReadCommit implements local.Adapter.ReadCommit.
func (g *Git) ReadCommit(ctx context.Context, id string) (local.Commit, error) {
	out, err := g.run(ctx, nil, "show", "-s", "--format="+logFormat, id)
	if err != nil {
		return local.Commit{}, fmt.Errorf("%w: %s", local.ErrCommitNotFound, id)
	}
	commits := parseLog(string(out))
	if len(commits) != 1 {
		return local.Commit{}, fmt.Errorf("%w: %s", local.ErrCommitNotFound, id)
	}
	return commits[0], nil
}

// ReadTree implements local.Adapter.ReadTree.
func (g *Git) ReadTree(ctx context.Context, id string) (local.Tree, error) {
	out, err := g.run(ctx, nil, "ls-tree", "-r", "-z", id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", local.ErrCommitNotFound, id)
	}

	tree := local.Tree{}
	for _, rec := range strings.Split(string(out), "\x00") {
		if rec == "" {
			continue
		}
		// Format: <mode> SP <type> SP <hash> TAB <path>
		meta, pathName, ok := strings.Cut(rec, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		content, err := g.run(ctx, nil, "cat-file", "blob", fields[2])
		if err != nil {
			return nil, err
		}
		tree[pathName] = content
	}
	return tree, nil
}

// CommitsBetween implements local.Adapter.CommitsBetween.
//
// The walk follows first parents only, matching the linear chain the
// bridge maintains; merge side branches are the operator's business.
func (g *Git) CommitsBetween(ctx context.Context, ancestor, descendant string) ([]local.Commit, error) {
	rangeSpec := descendant
	if ancestor != "" {
		rangeSpec = ancestor + ".." + descendant
	}
	out, err := g.run(ctx, nil, "log", "--first-parent", "--reverse",
		"--format="+logFormat, rangeSpec)
	if err != nil {
		return nil, err
	}
	return parseLog(string(out)), nil
}

// parseLog parses records produced with logFormat.
func parseLog(raw string) []local.Commit {
	var commits []local.Commit
	for _, rec := range strings.Split(raw, recordSep) {
		rec = strings.TrimLeft(rec, "\n")
		if strings.TrimSpace(rec) == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 6)
		if len(fields) != 6 {
			continue
		}
		var parents []string
		if p := strings.TrimSpace(fields[1]); p != "" {
			parents = strings.Fields(p)
		}
		when, _ := time.Parse(time.RFC3339, fields[4])
		commits = append(commits, local.Commit{
			ID:      fields[0],
			Parents: parents,
			Author:  local.Signature{Name: fields[2], Email: fields[3]},
			Time:    when,
			Message: strings.TrimRight(fields[5], "\n"),
		})
	}
	return commits
}
