package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/local"
	"github.com/steveyegge/ccbridge/internal/remote"
)

// ImportOptions configures an ImportHistory run.
type ImportOptions struct {
	// Since bounds the first import: versions older than this are
	// skipped when the branch has no sync point yet. Ignored on
	// incremental runs.
	Since time.Time

	// DryRun lists the change groups that would be imported without
	// fetching content or creating commits.
	DryRun bool
}

// GroupSummary describes one change group for dry-run output.
type GroupSummary struct {
	Author   string
	Comment  string
	Time     time.Time
	Elements []string
}

// ImportResult reports what an ImportHistory run did.
type ImportResult struct {
	Branch string

	// Groups are the change groups considered, in import order.
	Groups []GroupSummary

	// Commits are the local commits created, oldest first.
	// Empty for dry runs and no-op runs.
	Commits []local.Commit

	// Diverged is set when new commits were imported but the branch tip
	// had moved past the old sync point, so the branch ref was left
	// alone. Resolve with Rebase before checking in.
	Diverged bool
}

// ImportHistory walks new remote versions since the branch's sync point
// and constructs equivalent local commits, one per change group, in
// remote chronological order.
//
// The operation is restart-safe: each commit's correspondence is recorded
// and the sync point advanced before the next group is touched, so a
// failure mid-walk resumes exactly after the last fully committed group.
// Running with no new remote versions is a no-op.
func (b *Bridge) ImportHistory(ctx context.Context, branch string, opts ImportOptions) (*ImportResult, error) {
	release, err := b.lockBranch(branch)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &ImportResult{Branch: branch}

	sp, err := b.syncPoint(ctx, branch)
	if err != nil {
		return nil, err
	}

	state := map[string]string{}
	prev := ""
	if sp != nil {
		prev = sp.LocalCommit
		state, err = b.cache.StateAt(ctx, sp.ID)
		if err != nil {
			return nil, err
		}
	}

	ordered, err := b.collectVersions(ctx, sp == nil, opts.Since, state)
	if err != nil {
		return nil, err
	}
	groups := groupVersions(ordered)
	for _, g := range groups {
		result.Groups = append(result.Groups, summarize(g))
	}
	if opts.DryRun || len(groups) == 0 {
		return result, nil
	}

	b.emit(EventImportStarted, branch, prev, fmt.Sprintf("%d change groups", len(groups)))

	tipBefore, tipErr := b.local.ResolveRef(ctx, branch)
	branchExists := tipErr == nil
	if tipErr != nil && !errors.Is(tipErr, local.ErrRefNotFound) {
		return nil, tipErr
	}

	tree := local.Tree{}
	if prev != "" {
		tree, err = b.local.ReadTree(ctx, prev)
		if err != nil {
			return nil, err
		}
	}

	for _, g := range groups {
		commit, delta, effective, err := b.importGroup(ctx, g, tree, state, prev)
		if err != nil {
			return result, fmt.Errorf("import stopped before %q by %s: %w (re-run to resume)",
				firstLine(g.Comment), g.Author, err)
		}
		if !effective {
			// Nothing this group did changes the tree (identical content,
			// removal of an untracked path). An empty commit here would
			// break idempotence, so the group is skipped.
			continue
		}

		corr := &cache.Correspondence{
			Branch:      branch,
			LocalCommit: commit.ID,
			Fingerprint: cache.Fingerprint(state),
			Origin:      cache.OriginImport,
			Versions:    delta,
		}
		if err := b.cache.Record(ctx, corr, true); err != nil {
			return result, err
		}

		prev = commit.ID
		result.Commits = append(result.Commits, commit)
		b.logger.Printf("imported %s: %s (%s)", shortID(commit.ID), firstLine(g.Comment), g.Author)
		b.emit(EventCommitImported, branch, commit.ID, firstLine(g.Comment))
	}

	if len(result.Commits) == 0 {
		b.emit(EventImportFinished, branch, prev, "no effective changes")
		return result, nil
	}

	// Fast-forward the branch when it was sitting at the old sync point;
	// a moved tip means local commits exist and the operator must rebase.
	switch {
	case !branchExists:
		if err := b.local.UpdateRef(ctx, branch, prev, false); err != nil {
			return result, err
		}
	case sp != nil && tipBefore == sp.LocalCommit:
		if err := b.local.UpdateRef(ctx, branch, prev, false); err != nil {
			return result, err
		}
	default:
		result.Diverged = true
		b.emit(EventDiverged, branch, tipBefore, "local commits present; rebase before checkin")
	}

	b.emit(EventImportFinished, branch, prev, fmt.Sprintf("%d commits", len(result.Commits)))
	return result, nil
}

// collectVersions gathers new versions for every tracked element and
// merges them into one chronologically ordered sequence.
func (b *Bridge) collectVersions(ctx context.Context, firstRun bool, since time.Time, state map[string]string) ([]remote.Version, error) {
	elements, err := b.remote.ListElements(ctx, b.include)
	if err != nil {
		return nil, err
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].Path < elements[j].Path })

	var perElement [][]remote.Version
	for _, el := range elements {
		if b.excluded(el.Path) {
			continue
		}
		versions, err := b.remote.ListVersionsSince(ctx, el.Path, state[el.Path])
		if err != nil {
			if errors.Is(err, remote.ErrVersionNotFound) {
				// The recorded version is invisible on the configured
				// branches (e.g. the branch filter changed); fall back
				// to full history for this element.
				versions, err = b.remote.ListVersionsSince(ctx, el.Path, "")
			}
			if err != nil {
				return nil, fmt.Errorf("listing versions of %s: %w", el.Path, err)
			}
		}
		if firstRun && !since.IsZero() {
			versions = versionsAfter(versions, since)
		}
		if len(versions) > 0 {
			perElement = append(perElement, versions)
		}
	}

	return orderVersions(perElement, b.tieBreak), nil
}

// importGroup applies one change group to the working tree and state and
// creates the corresponding local commit. tree and state are mutated only
// when the group actually changes the tree and all content fetches
// succeeded, so a failed or skipped group leaves the resumed run a clean
// starting point.
func (b *Bridge) importGroup(ctx context.Context, g *changeGroup, tree local.Tree, state map[string]string, prev string) (local.Commit, []cache.ElementVersion, bool, error) {
	// Fetch everything first so a failed fetch leaves tree and state
	// untouched for the resumed run.
	contents := make(map[string][]byte)
	effective := false
	for _, v := range g.Versions {
		switch v.Op {
		case remote.OpCheckin:
			content, err := b.remote.FetchContent(ctx, v)
			if err != nil {
				return local.Commit{}, nil, false, fmt.Errorf("fetching %s@@%s: %w", v.Element, v.Version, err)
			}
			contents[v.Element+"@@"+v.Version] = content
			if prior, ok := tree[v.Element]; !ok || !bytes.Equal(prior, content) {
				effective = true
			}
		case remote.OpRemove:
			if _, ok := tree[v.Target]; ok {
				effective = true
			}
		}
	}
	if !effective {
		return local.Commit{}, nil, false, nil
	}

	// The delta is keyed by element in the cache, so a group that touches
	// one element twice (checkin+checkin, remove+readd) must collapse to a
	// single row per element. Later versions supersede earlier ones, which
	// matches how state is folded back out of the deltas.
	var delta []cache.ElementVersion
	deltaIndex := map[string]int{}
	record := func(ev cache.ElementVersion) {
		if i, ok := deltaIndex[ev.Element]; ok {
			delta[i] = ev
			return
		}
		deltaIndex[ev.Element] = len(delta)
		delta = append(delta, ev)
	}
	for _, v := range g.Versions {
		switch v.Op {
		case remote.OpCheckin:
			tree[v.Element] = contents[v.Element+"@@"+v.Version]
			state[v.Element] = v.Version
			record(cache.ElementVersion{Element: v.Element, Version: v.Version})
		case remote.OpRemove:
			delete(tree, v.Target)
			delete(state, v.Target)
			state[v.Element] = v.Version
			record(cache.ElementVersion{Element: v.Target, Version: v.Version, Removed: true})
			record(cache.ElementVersion{Element: v.Element, Version: v.Version})
		}
	}

	var parents []string
	if prev != "" {
		parents = []string{prev}
	}
	commit, err := b.local.CreateCommit(ctx, tree, parents, b.mapAuthor(g.Author), g.Time, g.Comment)
	if err != nil {
		return local.Commit{}, nil, false, err
	}
	return commit, delta, true, nil
}

func (b *Bridge) excluded(element string) bool {
	for _, p := range b.exclude {
		if ok, _ := path.Match(p, element); ok {
			return true
		}
	}
	return false
}

func versionsAfter(versions []remote.Version, since time.Time) []remote.Version {
	out := versions[:0:0]
	for _, v := range versions {
		if !v.Time.Before(since) {
			out = append(out, v)
		}
	}
	return out
}

func summarize(g *changeGroup) GroupSummary {
	s := GroupSummary{Author: g.Author, Comment: g.Comment, Time: g.Time}
	for _, v := range g.Versions {
		p := v.Element
		if v.Op == remote.OpRemove {
			p = v.Target
		}
		s.Elements = append(s.Elements, p)
	}
	return s
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
