package cleartool

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/steveyegge/ccbridge/internal/remote"
)

// histFormat is the lshistory format string. Fields are pipe-delimited:
// opkind, date, user, element, version, comment. Comments may contain
// pipes and newlines; the parser copes by treating short lines as
// continuations of the previous comment.
const histFormat = "%o%m|%Nd|%u|%En|%Vn|%Nc\\n"

// histTimeLayout matches cleartool's %Nd output (20060102.150405).
const histTimeLayout = "20060102.150405"

const delim = "|"

// ListElements implements remote.Adapter.ListElements.
//
// File and directory elements are both returned: directory histories are
// where element removals surface.
func (t *Tool) ListElements(ctx context.Context, include []string) ([]remote.Element, error) {
	files, err := t.findElements(ctx, include, "-type", "f")
	if err != nil {
		return nil, err
	}
	dirs, err := t.findElements(ctx, include, "-type", "d")
	if err != nil {
		return nil, err
	}

	elements := make([]remote.Element, 0, len(files)+len(dirs))
	for _, p := range files {
		elements = append(elements, remote.Element{Path: p})
	}
	for _, p := range dirs {
		elements = append(elements, remote.Element{Path: p, Dir: true})
	}
	return elements, nil
}

func (t *Tool) findElements(ctx context.Context, include []string, typeArgs ...string) ([]string, error) {
	args := append([]string{"find", ".", "-cview", "-nxname"}, typeArgs...)
	args = append(args, "-print")
	out, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "./")
		if line == "" || line == "." {
			continue
		}
		if len(include) > 0 && !matchAny(include, line) {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

// ListVersionsSince implements remote.Adapter.ListVersionsSince.
//
// For file elements the result is the element's own checkin versions.
// For directory elements the catalog diffs of each new directory version
// are translated into OpRemove events for the removed children; additions
// are ignored here because added files carry their own checkin versions.
func (t *Tool) ListVersionsSince(ctx context.Context, element, sinceVersion string) ([]remote.Version, error) {
	all, err := t.elementHistory(ctx, element)
	if err != nil {
		return nil, err
	}

	// lshistory reports newest first; the bridge wants oldest first.
	reverse(all)

	versions := make([]remote.Version, 0, len(all))
	seen := sinceVersion == ""
	for _, v := range all {
		if !t.onBranch(v) {
			continue
		}
		if !seen {
			if v.Version == sinceVersion {
				seen = true
			}
			continue
		}
		switch v.Op {
		case remote.OpCheckin:
			versions = append(versions, v)
		case remote.OpDirectory:
			removed, err := t.removedIn(ctx, v)
			if err != nil {
				return nil, err
			}
			versions = append(versions, removed...)
		}
	}

	if !seen {
		return nil, fmt.Errorf("%w: %s@@%s", remote.ErrVersionNotFound, element, sinceVersion)
	}
	return versions, nil
}

// elementHistory returns the element's raw history records, newest first,
// from lshistory or from a replay file.
func (t *Tool) elementHistory(ctx context.Context, element string) ([]remote.Version, error) {
	if t.replayPath != "" {
		return t.replayHistory(element)
	}
	out, err := t.run(ctx, "lshistory", "-fmt", histFormat, element)
	if err != nil {
		return nil, err
	}
	if t.backupPath != "" {
		if err := t.appendBackup(out); err != nil {
			return nil, fmt.Errorf("saving history backup: %w", err)
		}
	}
	return parseHistory(string(out)), nil
}

// replayHistory serves one element's records from the replay file, which
// is parsed once and indexed by element.
func (t *Tool) replayHistory(element string) ([]remote.Version, error) {
	t.replayOnce.Do(func() {
		data, err := os.ReadFile(t.replayPath)
		if err != nil {
			t.replayErr = fmt.Errorf("reading history replay file: %w", err)
			return
		}
		t.replayByElement = make(map[string][]remote.Version)
		for _, v := range parseHistory(string(data)) {
			t.replayByElement[v.Element] = append(t.replayByElement[v.Element], v)
		}
	})
	if t.replayErr != nil {
		return nil, t.replayErr
	}
	return t.replayByElement[element], nil
}

// appendBackup appends raw lshistory output to the backup file,
// truncating it on the Tool's first write so each run starts fresh.
func (t *Tool) appendBackup(out []byte) error {
	t.backupMu.Lock()
	defer t.backupMu.Unlock()

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !t.backupLive {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		t.backupLive = true
	}
	f, err := os.OpenFile(t.backupPath, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// removedIn diffs a directory version against its predecessor and returns
// OpRemove events for children that disappeared from the catalog.
func (t *Tool) removedIn(ctx context.Context, dir remote.Version) ([]remote.Version, error) {
	out, err := t.run(ctx, "diff", "-diff_format", "-pred",
		extendedPath(dir.Element, dir.Version))
	if err != nil {
		// diff exits non-zero when there are differences; only treat it
		// as fatal when there is no output to parse.
		if len(out) == 0 {
			return nil, err
		}
	}

	var removed []remote.Version
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "<") {
			continue
		}
		name := catalogEntryName(line)
		if name == "" {
			continue
		}
		rm := dir
		rm.Op = remote.OpRemove
		rm.Target = path.Join(dir.Element, name)
		removed = append(removed, rm)
	}
	return removed, nil
}

// catalogEntryName extracts the child name from a directory diff line of
// the form "< name  --MM-DD-YY user" (double space before the metadata).
func catalogEntryName(line string) string {
	s := strings.TrimSpace(strings.TrimPrefix(line, "<"))
	if i := strings.Index(s, "  "); i >= 0 {
		s = s[:i]
	}
	// Symlink entries render as "name -> target"; the bridge does not
	// track symlink removals.
	if strings.Contains(s, " -> ") {
		return ""
	}
	return strings.TrimSpace(s)
}

// onBranch reports whether the version's branch matches the configured
// branch patterns.
func (t *Tool) onBranch(v remote.Version) bool {
	if len(t.branches) == 0 {
		return true
	}
	return matchAny(t.branches, v.Branch())
}

func matchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, s); ok {
			return true
		}
	}
	return false
}

// parseHistory parses lshistory output produced with histFormat.
//
// Lines with fewer than six fields are comment continuations belonging
// to the previous record (comments may contain both pipes and newlines).
func parseHistory(raw string) []remote.Version {
	var versions []remote.Version

	flush := func(fields []string, comment string) {
		if fields == nil {
			return
		}
		v, ok := parseRecord(fields, comment)
		if ok {
			versions = append(versions, v)
		}
	}

	var last []string
	var comment string
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Split(line, delim)
		if len(fields) < 6 {
			if last != nil {
				comment += "\n" + strings.Join(fields, delim)
			}
			continue
		}
		flush(last, comment)
		comment = strings.Join(fields[5:], delim)
		last = fields
	}
	flush(last, comment)

	return versions
}

// parseRecord converts one lshistory record into a Version. Records whose
// operation kind the bridge does not track are dropped.
func parseRecord(fields []string, comment string) (remote.Version, bool) {
	if len(fields) < 5 {
		return remote.Version{}, false
	}

	var op remote.Op
	switch fields[0] {
	case "checkinversion":
		op = remote.OpCheckin
	case "checkindirectory version":
		op = remote.OpDirectory
	default:
		return remote.Version{}, false
	}

	when, err := time.ParseInLocation(histTimeLayout, fields[1], time.Local)
	if err != nil {
		return remote.Version{}, false
	}

	return remote.Version{
		Element: strings.TrimPrefix(fields[3], "./"),
		Version: fields[4],
		Op:      op,
		Author:  fields[2],
		Time:    when,
		Comment: strings.TrimSpace(comment),
	}, true
}

func reverse(vs []remote.Version) {
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}
