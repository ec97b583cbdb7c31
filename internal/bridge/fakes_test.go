package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/local"
	"github.com/steveyegge/ccbridge/internal/remote"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ts(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

// fakeRemote is an in-memory remote.Adapter with reserved-checkout
// semantics: one hold per element, stale predecessors rejected.
type fakeRemote struct {
	mu        sync.Mutex
	elements  map[string]remote.Element
	history   map[string][]remote.Version
	content   map[string][]byte
	held      map[string]remote.Checkout
	labels    map[string][]remote.Version
	cancelled []string
	removed   []string
	updated   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		elements: map[string]remote.Element{},
		history:  map[string][]remote.Version{},
		content:  map[string][]byte{},
		held:     map[string]remote.Checkout{},
		labels:   map[string][]remote.Version{},
	}
}

// addVersion seeds one checkin event and its content.
func (r *fakeRemote) addVersion(element, version, author string, when time.Time, comment string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elements[element] = remote.Element{Path: element}
	v := remote.Version{
		Element: element,
		Version: version,
		Op:      remote.OpCheckin,
		Author:  author,
		Time:    when,
		Comment: comment,
	}
	r.history[element] = append(r.history[element], v)
	r.content[element+"@@"+version] = content
}

// addRemoval seeds a directory version recording the removal of target.
func (r *fakeRemote) addRemoval(dir, version, target, author string, when time.Time, comment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elements[dir] = remote.Element{Path: dir, Dir: true}
	r.history[dir] = append(r.history[dir], remote.Version{
		Element: dir,
		Version: version,
		Op:      remote.OpRemove,
		Author:  author,
		Time:    when,
		Comment: comment,
		Target:  target,
	})
}

func (r *fakeRemote) ListElements(ctx context.Context, include []string) ([]remote.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []remote.Element
	for _, el := range r.elements {
		if len(include) > 0 && !matchAny(include, el.Path) {
			continue
		}
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func matchAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	return false
}

func (r *fakeRemote) ListVersionsSince(ctx context.Context, element, sinceVersion string) ([]remote.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.history[element]
	if sinceVersion == "" {
		return append([]remote.Version(nil), versions...), nil
	}
	for i, v := range versions {
		if v.Version == sinceVersion {
			return append([]remote.Version(nil), versions[i+1:]...), nil
		}
	}
	return nil, fmt.Errorf("%s@@%s: %w", element, sinceVersion, remote.ErrVersionNotFound)
}

func (r *fakeRemote) FetchContent(ctx context.Context, v remote.Version) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.content[v.Element+"@@"+v.Version]
	if !ok {
		return nil, fmt.Errorf("%s@@%s: %w", v.Element, v.Version, remote.ErrVersionNotFound)
	}
	return content, nil
}

func (r *fakeRemote) CurrentVersion(ctx context.Context, element string) (remote.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.history[element]
	if len(versions) == 0 {
		return remote.Version{}, fmt.Errorf("%s: %w", element, remote.ErrElementNotFound)
	}
	return versions[len(versions)-1], nil
}

func (r *fakeRemote) Checkout(ctx context.Context, element, fromVersion string) (remote.Checkout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.held[element]; held {
		return remote.Checkout{}, fmt.Errorf("%s: %w", element, remote.ErrAlreadyCheckedOut)
	}
	co := remote.Checkout{Element: element, FromVersion: fromVersion}
	r.held[element] = co
	return co, nil
}

func (r *fakeRemote) Checkin(ctx context.Context, co remote.Checkout, content []byte, comment string) (remote.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.held[co.Element]; !held {
		return remote.Version{}, fmt.Errorf("%s is not checked out", co.Element)
	}
	versions := r.history[co.Element]
	if co.FromVersion != "" && len(versions) > 0 && versions[len(versions)-1].Version != co.FromVersion {
		return remote.Version{}, fmt.Errorf("%s: %w", co.Element, remote.ErrStaleCheckout)
	}
	v := remote.Version{
		Element: co.Element,
		Version: bumpVersion(co.FromVersion),
		Op:      remote.OpCheckin,
		Author:  "bridge",
		Time:    time.Now(),
		Comment: comment,
	}
	r.elements[co.Element] = remote.Element{Path: co.Element}
	r.history[co.Element] = append(versions, v)
	r.content[co.Element+"@@"+v.Version] = content
	delete(r.held, co.Element)
	return v, nil
}

// bumpVersion produces the next version on the branch, "/main/1" for new
// elements.
func bumpVersion(from string) string {
	if from == "" {
		return "/main/1"
	}
	i := strings.LastIndex(from, "/")
	n, err := strconv.Atoi(from[i+1:])
	if err != nil {
		return from + "/1"
	}
	return fmt.Sprintf("%s/%d", from[:i], n+1)
}

func (r *fakeRemote) CancelCheckout(ctx context.Context, co remote.Checkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.held[co.Element]; !held {
		return fmt.Errorf("%s is not checked out", co.Element)
	}
	delete(r.held, co.Element)
	r.cancelled = append(r.cancelled, co.Element)
	return nil
}

func (r *fakeRemote) RemoveElement(ctx context.Context, element, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.elements, element)
	r.removed = append(r.removed, element)
	return nil
}

func (r *fakeRemote) CreateLabel(ctx context.Context, name string, versions []remote.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.labels[name]; ok {
		return fmt.Errorf("%s: %w", name, remote.ErrLabelExists)
	}
	r.labels[name] = append([]remote.Version(nil), versions...)
	return nil
}

func (r *fakeRemote) MoveLabel(ctx context.Context, name string, versions []remote.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.labels[name]; !ok {
		return fmt.Errorf("%s: %w", name, remote.ErrLabelNotFound)
	}
	r.labels[name] = append([]remote.Version(nil), versions...)
	return nil
}

func (r *fakeRemote) ListLabel(ctx context.Context, name string) ([]remote.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.labels[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, remote.ErrLabelNotFound)
	}
	return append([]remote.Version(nil), versions...), nil
}

func (r *fakeRemote) Update(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated++
	return nil
}

// fakeLocal is an in-memory local.Adapter with content-addressed commit
// IDs and first-parent history walks.
type fakeLocal struct {
	mu      sync.Mutex
	commits map[string]local.Commit
	trees   map[string]local.Tree
	refs    map[string]string
	tags    map[string]string
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		commits: map[string]local.Commit{},
		trees:   map[string]local.Tree{},
		refs:    map[string]string{},
		tags:    map[string]string{},
	}
}

func (l *fakeLocal) CreateCommit(ctx context.Context, tree local.Tree, parents []string, author local.Signature, when time.Time, message string) (local.Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := sha256.New()
	fmt.Fprintf(h, "%v\n%s <%s>\n%s\n%s\n", parents, author.Name, author.Email, when.Format(time.RFC3339), message)
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(h, "%s\x00", p)
		h.Write(tree[p])
	}
	c := local.Commit{
		ID:      hex.EncodeToString(h.Sum(nil))[:40],
		Parents: append([]string(nil), parents...),
		Author:  author,
		Time:    when,
		Message: message,
	}
	l.commits[c.ID] = c
	l.trees[c.ID] = tree.Clone()
	return c, nil
}

func (l *fakeLocal) ReadCommit(ctx context.Context, id string) (local.Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.commits[id]
	if !ok {
		return local.Commit{}, fmt.Errorf("%s: %w", id, local.ErrCommitNotFound)
	}
	return c, nil
}

func (l *fakeLocal) ReadTree(ctx context.Context, id string) (local.Tree, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tree, ok := l.trees[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, local.ErrCommitNotFound)
	}
	return tree.Clone(), nil
}

func (l *fakeLocal) CommitsBetween(ctx context.Context, ancestor, descendant string) ([]local.Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var chain []local.Commit
	for id := descendant; id != "" && id != ancestor; {
		c, ok := l.commits[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, local.ErrCommitNotFound)
		}
		chain = append(chain, c)
		if len(c.Parents) == 0 {
			break
		}
		id = c.Parents[0]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (l *fakeLocal) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reachable(b, a), nil
}

func (l *fakeLocal) reachable(from, target string) bool {
	seen := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, l.commits[id].Parents...)
	}
	return false
}

func (l *fakeLocal) MergeBase(ctx context.Context, a, b string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ancestors := map[string]bool{}
	for id := a; id != ""; {
		ancestors[id] = true
		c := l.commits[id]
		if len(c.Parents) == 0 {
			break
		}
		id = c.Parents[0]
	}
	for id := b; id != ""; {
		if ancestors[id] {
			return id, nil
		}
		c := l.commits[id]
		if len(c.Parents) == 0 {
			break
		}
		id = c.Parents[0]
	}
	return "", fmt.Errorf("no common ancestor of %s and %s", a, b)
}

func (l *fakeLocal) ResolveRef(ctx context.Context, ref string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.refs[ref]
	if !ok {
		return "", fmt.Errorf("%s: %w", ref, local.ErrRefNotFound)
	}
	return id, nil
}

func (l *fakeLocal) UpdateRef(ctx context.Context, branch, newTip string, force bool) error {
	l.mu.Lock()
	old, exists := l.refs[branch]
	l.mu.Unlock()
	if exists && !force {
		ok, err := l.IsAncestor(ctx, old, newTip)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", branch, local.ErrNonFastForward)
		}
	}
	l.mu.Lock()
	l.refs[branch] = newTip
	l.mu.Unlock()
	return nil
}

func (l *fakeLocal) CreateTag(ctx context.Context, name, commitID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tags[name] = commitID
	return nil
}

func (l *fakeLocal) ResolveTag(ctx context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.tags[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, local.ErrRefNotFound)
	}
	return id, nil
}

// commitOn appends a commit to a branch, mimicking work done outside the
// bridge.
func (l *fakeLocal) commitOn(t *testing.T, branch string, mutate func(local.Tree), message string) local.Commit {
	t.Helper()
	ctx := context.Background()
	tip, err := l.ResolveRef(ctx, branch)
	if err != nil {
		t.Fatalf("resolving %s: %v", branch, err)
	}
	tree, err := l.ReadTree(ctx, tip)
	if err != nil {
		t.Fatalf("reading tree of %s: %v", tip, err)
	}
	mutate(tree)
	c, err := l.CreateCommit(ctx, tree, []string{tip}, local.Signature{Name: "Dev", Email: "dev@example.com"}, time.Now(), message)
	if err != nil {
		t.Fatalf("creating commit: %v", err)
	}
	if err := l.UpdateRef(ctx, branch, c.ID, false); err != nil {
		t.Fatalf("updating %s: %v", branch, err)
	}
	return c
}

// sinkEvents captures emitted events for assertions.
type sinkEvents struct {
	mu     sync.Mutex
	events []Event
}

func (s *sinkEvents) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *sinkEvents) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type testBridge struct {
	*Bridge
	remote *fakeRemote
	local  *fakeLocal
	cache  *cache.Cache
	events *sinkEvents
}

func newTestBridge(t *testing.T, mutate func(*Options)) *testBridge {
	t.Helper()
	c, err := cache.Open(":memory:")
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	fr := newFakeRemote()
	fl := newFakeLocal()
	sink := &sinkEvents{}
	opts := Options{
		Remote: fr,
		Local:  fl,
		Cache:  c,
		Logger: log.New(testWriter{t}, "", 0),
		Events: sink,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testBridge{Bridge: New(opts), remote: fr, local: fl, cache: c, events: sink}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
