package sqlite

import (
	"context"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

// ─── Commits ────────────────────────────────────────────────────────────────

// InsertCommit stores a commit. Returns false when (repo_id, sha) already
// exists; the existing row is left untouched.
func (q *Queries) InsertCommit(ctx context.Context, c domain.Commit) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO commits (id, user_id, repo_id, provider, sha, message, committed_at, branch, additions, deletions, xp_awarded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(repo_id, sha) DO NOTHING`,
		c.ID, c.UserID, c.RepoID, string(c.Provider), c.SHA, c.Message,
		c.CommittedAt.Unix(), c.Branch, c.Additions, c.Deletions, c.XPAwarded,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// MarkCommitXPAwarded flags a commit as having paid out its XP.
func (q *Queries) MarkCommitXPAwarded(ctx context.Context, id string) error {
	_, err := q.q.ExecContext(ctx, `UPDATE commits SET xp_awarded = 1 WHERE id = ?`, id)
	return err
}

// CommitTimes returns every commit instant for a user, oldest first.
func (q *Queries) CommitTimes(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT committed_at FROM commits WHERE user_id = ? ORDER BY committed_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		times = append(times, time.Unix(ts, 0))
	}
	return times, rows.Err()
}

// CommitsBetween returns a user's commits with from <= committed_at < to.
func (q *Queries) CommitsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Commit, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, user_id, repo_id, provider, sha, message, committed_at, branch, additions, deletions, xp_awarded
		 FROM commits
		 WHERE user_id = ? AND committed_at >= ? AND committed_at < ?
		 ORDER BY committed_at`,
		userID, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []domain.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, *c)
	}
	return commits, rows.Err()
}

// ListCommits returns one page of a user's commits with their repository
// names, newest first.
func (q *Queries) ListCommits(ctx context.Context, userID string, limit, offset int) ([]domain.CommitEntry, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.repo_id, c.provider, c.sha, c.message, c.committed_at, c.branch,
		        c.additions, c.deletions, c.xp_awarded, r.repo_name
		 FROM commits c JOIN tracked_repos r ON r.id = c.repo_id
		 WHERE c.user_id = ?
		 ORDER BY c.committed_at DESC, c.id
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CommitEntry
	for rows.Next() {
		var e domain.CommitEntry
		var provider string
		var ts int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.RepoID, &provider, &e.SHA, &e.Message,
			&ts, &e.Branch, &e.Additions, &e.Deletions, &e.XPAwarded, &e.RepoName); err != nil {
			return nil, err
		}
		e.Provider = domain.Provider(provider)
		e.CommittedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountCommits returns how many commits a user has stored.
func (q *Queries) CountCommits(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commits WHERE user_id = ?`, userID,
	).Scan(&n)
	return n, err
}

func scanCommit(s scanner) (*domain.Commit, error) {
	var c domain.Commit
	var provider string
	var ts int64
	if err := s.Scan(&c.ID, &c.UserID, &c.RepoID, &provider, &c.SHA, &c.Message,
		&ts, &c.Branch, &c.Additions, &c.Deletions, &c.XPAwarded); err != nil {
		return nil, err
	}
	c.Provider = domain.Provider(provider)
	c.CommittedAt = time.Unix(ts, 0)
	return &c, nil
}

// CountCommitsBetween counts a user's commits with from <= committed_at < to.
func (q *Queries) CountCommitsBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commits WHERE user_id = ? AND committed_at >= ? AND committed_at < ?`,
		userID, from.Unix(), to.Unix(),
	).Scan(&n)
	return n, err
}

// CodeTotals returns the summed additions and deletions over all of a
// user's commits.
func (q *Queries) CodeTotals(ctx context.Context, userID string) (additions, deletions int64, err error) {
	err = q.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(additions), 0), COALESCE(SUM(deletions), 0) FROM commits WHERE user_id = ?`,
		userID,
	).Scan(&additions, &deletions)
	return additions, deletions, err
}
