// Package cache persists the correspondence between ClearCase version
// states and git commits.
//
// The cache is the bridge's single source of truth for what has been
// imported and what has been checked in. It is keyed both by local commit
// hash and by remote-state fingerprint, and keeps one sync point per
// branch: the most recent correspondence on that branch.
//
// Storage is SQLite (embedded, WAL mode) so the mapping survives process
// restarts and every record operation is atomic: a crash can never leave
// a partially written correspondence.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
)

// Errors returned by cache operations.
var (
	// ErrNotFound is returned by lookups with no matching correspondence.
	ErrNotFound = errors.New("correspondence not found")

	// ErrNoSyncPoint is returned when a branch has no sync point yet,
	// i.e. nothing has ever been imported or checked in on it.
	ErrNoSyncPoint = errors.New("no sync point for branch")

	// ErrDuplicateMapping is returned when a different correspondence
	// already exists for the same local commit. This indicates cache
	// corruption and halts further writes.
	ErrDuplicateMapping = errors.New("duplicate mapping for local commit")
)

// Origin records which direction created a correspondence.
type Origin string

const (
	// OriginImport marks correspondences created by the history importer.
	OriginImport Origin = "import"

	// OriginCheckin marks correspondences created by the checkin engine.
	OriginCheckin Origin = "checkin"
)

// ElementVersion is one element's version within a correspondence delta.
type ElementVersion struct {
	Element string
	Version string

	// Removed marks elements this correspondence removed from the state.
	Removed bool
}

// Correspondence pairs a consistent remote state with exactly one local
// commit. Versions holds only the delta this correspondence introduced;
// the full state is reconstructed by folding deltas in order.
//
// Correspondences are immutable: history advancement supersedes them with
// new rows, never edits.
type Correspondence struct {
	ID          int64
	Branch      string
	LocalCommit string

	// Fingerprint identifies the full remote state (one version per
	// element) after this correspondence. See Fingerprint.
	Fingerprint string

	Origin    Origin
	Versions  []ElementVersion
	CreatedAt time.Time
}

// Fingerprint computes the canonical fingerprint of a remote state:
// a SHA-256 over the sorted element@@version lines.
func Fingerprint(state map[string]string) string {
	lines := make([]string, 0, len(state))
	for el, ver := range state {
		lines = append(lines, el+"@@"+ver)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Cache is the persistent correspondence store.
type Cache struct {
	db   *sql.DB
	path string
}

func init() {
	// Persist the WASM compilation cache so the embedded SQLite engine
	// does not pay JIT compilation cost on every process start.
	if dir, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(dir, "ccbridge", "wasm")); err == nil {
			sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(c)
		}
	}
}

// Open opens (creating if needed) the cache database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral cache in tests.
//
// The caller MUST call Close when done.
func Open(path string) (*Cache, error) {
	var connStr string
	if path == ":memory:" {
		connStr = "file:ccbridge-mem?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if path == ":memory:" {
		// In-memory databases are per-connection; keep a single one.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	c := &Cache{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database, checkpointing the WAL first.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Cache) initSchema() error {
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// Record durably stores a correspondence and, when advance is set, moves
// the branch sync point to it. The insert and the sync point move happen
// in one transaction.
//
// Recording the same (commit, fingerprint) pair again is an idempotent
// no-op, so interrupted runs can safely replay their last step. A commit
// already mapped to a DIFFERENT state fails with ErrDuplicateMapping.
func (c *Cache) Record(ctx context.Context, corr *Correspondence, advance bool) error {
	existing, err := c.ByCommit(ctx, corr.LocalCommit)
	switch {
	case err == nil:
		if existing.Fingerprint != corr.Fingerprint || existing.Branch != corr.Branch {
			return fmt.Errorf("%w: commit %s maps to state %s, refusing %s",
				ErrDuplicateMapping, corr.LocalCommit, existing.Fingerprint, corr.Fingerprint)
		}
		corr.ID = existing.ID
		if advance {
			return c.setSyncPoint(ctx, corr.Branch, existing.ID)
		}
		return nil
	case !errors.Is(err, ErrNotFound):
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO correspondences (branch, local_commit, fingerprint, origin) VALUES (?, ?, ?, ?)`,
		corr.Branch, corr.LocalCommit, corr.Fingerprint, string(corr.Origin))
	if err != nil {
		return fmt.Errorf("failed to record correspondence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, v := range corr.Versions {
		removed := 0
		if v.Removed {
			removed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO correspondence_versions (correspondence_id, element, version, removed) VALUES (?, ?, ?, ?)`,
			id, v.Element, v.Version, removed); err != nil {
			return fmt.Errorf("failed to record version for %s: %w", v.Element, err)
		}
	}

	if advance {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_points (branch, correspondence_id) VALUES (?, ?)
			 ON CONFLICT(branch) DO UPDATE SET correspondence_id = excluded.correspondence_id`,
			corr.Branch, id); err != nil {
			return fmt.Errorf("failed to advance sync point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	corr.ID = id
	return nil
}

func (c *Cache) setSyncPoint(ctx context.Context, branch string, id int64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO sync_points (branch, correspondence_id) VALUES (?, ?)
		 ON CONFLICT(branch) DO UPDATE SET correspondence_id = excluded.correspondence_id`,
		branch, id)
	if err != nil {
		return fmt.Errorf("failed to advance sync point: %w", err)
	}
	return nil
}
