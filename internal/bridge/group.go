package bridge

import (
	"sort"
	"time"

	"github.com/steveyegge/ccbridge/internal/remote"
)

// changeGroup is one remote "transaction": a run of versions by the same
// author that the importer turns into a single local commit.
type changeGroup struct {
	Author   string
	Comment  string
	Time     time.Time
	Versions []remote.Version
}

func (g *changeGroup) append(v remote.Version) {
	// The group's timestamp tracks its newest member.
	g.Time = v.Time
	g.Versions = append(g.Versions, v)
}

// sameGroup reports whether v belongs in g: same author and either the
// same comment (one logical change checked in file by file) or the exact
// same timestamp (one backend transaction).
func (g *changeGroup) sameGroup(v remote.Version) bool {
	if v.Author != g.Author {
		return false
	}
	return v.Comment == g.Comment || v.Time.Equal(g.Time)
}

// orderVersions merges per-element version sequences into one global
// sequence ordered by timestamp. Each input slice is already oldest to
// newest; the merge is stable, so equal timestamps fall back to the
// backend's own ordering unless the path tie-break is selected.
func orderVersions(perElement [][]remote.Version, tieBreak TieBreak) []remote.Version {
	var all []remote.Version
	for _, vs := range perElement {
		all = append(all, vs...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Time.Equal(all[j].Time) {
			return all[i].Time.Before(all[j].Time)
		}
		if tieBreak == TieBreakPath {
			return all[i].Element < all[j].Element
		}
		return false
	})
	return all
}

// groupVersions coalesces an ordered version sequence into change groups.
func groupVersions(ordered []remote.Version) []*changeGroup {
	var groups []*changeGroup
	var last *changeGroup
	for _, v := range ordered {
		if last != nil && last.sameGroup(v) {
			last.append(v)
			continue
		}
		last = &changeGroup{
			Author:  v.Author,
			Comment: v.Comment,
			Time:    v.Time,
		}
		last.Versions = append(last.Versions, v)
		groups = append(groups, last)
	}
	return groups
}
