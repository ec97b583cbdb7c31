package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const corrColumns = `id, branch, local_commit, fingerprint, origin, created_at`

// ByCommit returns the correspondence for a local commit hash.
func (c *Cache) ByCommit(ctx context.Context, commitID string) (*Correspondence, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+corrColumns+` FROM correspondences WHERE local_commit = ?`, commitID)
	return c.scanCorrespondence(ctx, row)
}

// ByFingerprint returns the correspondence for a remote-state fingerprint.
// When replay (rebase) has transiently produced several commits for the
// same state, the most recent one wins.
func (c *Cache) ByFingerprint(ctx context.Context, fingerprint string) (*Correspondence, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+corrColumns+` FROM correspondences WHERE fingerprint = ? ORDER BY id DESC LIMIT 1`,
		fingerprint)
	return c.scanCorrespondence(ctx, row)
}

// SyncPoint returns the branch's current sync point: the most recent
// correspondence recorded with advancement on that branch. This is a
// primary-key read, not a history scan.
func (c *Cache) SyncPoint(ctx context.Context, branch string) (*Correspondence, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+corrColumns+` FROM correspondences
		 WHERE id = (SELECT correspondence_id FROM sync_points WHERE branch = ?)`, branch)
	corr, err := c.scanCorrespondence(ctx, row)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSyncPoint, branch)
	}
	return corr, err
}

// StateAt reconstructs the full remote state (element -> version) as of
// the given correspondence: deltas on its branch are folded in order up
// to and including it.
func (c *Cache) StateAt(ctx context.Context, corrID int64) (map[string]string, error) {
	var branch string
	if err := c.db.QueryRowContext(ctx,
		`SELECT branch FROM correspondences WHERE id = ?`, corrID).Scan(&branch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT cv.element, cv.version, cv.removed
		 FROM correspondence_versions cv
		 JOIN correspondences co ON co.id = cv.correspondence_id
		 WHERE co.branch = ? AND co.id <= ?
		 ORDER BY co.id`, branch, corrID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	state := make(map[string]string)
	for rows.Next() {
		var element, version string
		var removed int
		if err := rows.Scan(&element, &version, &removed); err != nil {
			return nil, err
		}
		if removed != 0 {
			delete(state, element)
		} else {
			state[element] = version
		}
	}
	return state, rows.Err()
}

// scanCorrespondence materializes one correspondence row plus its versions.
func (c *Cache) scanCorrespondence(ctx context.Context, row *sql.Row) (*Correspondence, error) {
	var corr Correspondence
	var origin, createdAt string
	err := row.Scan(&corr.ID, &corr.Branch, &corr.LocalCommit, &corr.Fingerprint, &origin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	corr.Origin = Origin(origin)
	if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		corr.CreatedAt = t
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT element, version, removed FROM correspondence_versions
		 WHERE correspondence_id = ? ORDER BY element`, corr.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ev ElementVersion
		var removed int
		if err := rows.Scan(&ev.Element, &ev.Version, &removed); err != nil {
			return nil, err
		}
		ev.Removed = removed != 0
		corr.Versions = append(corr.Versions, ev)
	}
	return &corr, rows.Err()
}
