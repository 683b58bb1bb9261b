package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

// ─── User Stats ─────────────────────────────────────────────────────────────

// UpsertUserStats overwrites a user's rollup row.
func (q *Queries) UpsertUserStats(ctx context.Context, s domain.UserStats) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, current_streak, longest_streak, total_commits, last_commit_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   current_streak = excluded.current_streak,
		   longest_streak = excluded.longest_streak,
		   total_commits = excluded.total_commits,
		   last_commit_date = excluded.last_commit_date,
		   updated_at = excluded.updated_at`,
		s.UserID, s.CurrentStreak, s.LongestStreak, s.TotalCommits,
		nullableUnix(s.LastCommitDate), s.UpdatedAt.Unix(),
	)
	return err
}

// GetUserStats returns a user's rollup row, or nil if none was written yet.
func (q *Queries) GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var s domain.UserStats
	var last sql.NullInt64
	var updated int64
	err := q.q.QueryRowContext(ctx,
		`SELECT user_id, current_streak, longest_streak, total_commits, last_commit_date, updated_at
		 FROM user_stats WHERE user_id = ?`, userID,
	).Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &s.TotalCommits, &last, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		s.LastCommitDate = time.Unix(last.Int64, 0)
	}
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

// ─── User Levels ────────────────────────────────────────────────────────────

// GetUserLevel returns a user's level row, or nil if the user has no XP yet.
func (q *Queries) GetUserLevel(ctx context.Context, userID string) (*domain.UserLevel, error) {
	var l domain.UserLevel
	err := q.q.QueryRowContext(ctx,
		`SELECT user_id, level, xp, total_xp, title FROM user_levels WHERE user_id = ?`,
		userID,
	).Scan(&l.UserID, &l.Level, &l.XP, &l.TotalXP, &l.Title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertUserLevel writes all four progression fields of a user.
func (q *Queries) UpsertUserLevel(ctx context.Context, l domain.UserLevel) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO user_levels (user_id, level, xp, total_xp, title)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   level = excluded.level,
		   xp = excluded.xp,
		   total_xp = excluded.total_xp,
		   title = excluded.title`,
		l.UserID, l.Level, l.XP, l.TotalXP, l.Title,
	)
	return err
}

// ─── XP Events ──────────────────────────────────────────────────────────────

// InsertXPEvent appends an award to the ledger. Returns false when the
// (user_id, reason) pair was already recorded.
func (q *Queries) InsertXPEvent(ctx context.Context, e domain.XPEvent) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO xp_events (user_id, amount, reason, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, reason) DO NOTHING`,
		e.UserID, e.Amount, e.Reason, e.CreatedAt.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ListXPEvents returns a user's most recent XP awards.
func (q *Queries) ListXPEvents(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, created_at
		 FROM xp_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.XPEvent
	for rows.Next() {
		var e domain.XPEvent
		var ts int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(ts, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SumXPEvents returns the ledger total for a user. Matches total_xp when
// every award went through the ledger.
func (q *Queries) SumXPEvents(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_events WHERE user_id = ?`, userID,
	).Scan(&total)
	return total, err
}
