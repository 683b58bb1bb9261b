package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

// ─── Challenges ─────────────────────────────────────────────────────────────

// InsertChallenge stores a challenge instance.
func (q *Queries) InsertChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO challenges (id, template_key, title, description, icon, type, goal, reward_xp, start_date, end_date, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TemplateKey, c.Title, c.Description, c.Icon, string(c.Type),
		c.Goal, c.RewardXP, c.StartDate.Unix(), c.EndDate.Unix(), c.IsActive,
	)
	return err
}

// InsertUserChallenge assigns a challenge instance to a user.
func (q *Queries) InsertUserChallenge(ctx context.Context, uc domain.UserChallenge) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO user_challenges (id, user_id, challenge_id, progress, completed, completed_at, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uc.ID, uc.UserID, uc.ChallengeID, uc.Progress, uc.Completed,
		nullableUnixPtr(uc.CompletedAt), nullableUnixPtr(uc.ClaimedAt),
	)
	return err
}

// CountUserChallengesInWindow counts a user's challenges of one type whose
// start falls inside [from, to).
func (q *Queries) CountUserChallengesInWindow(ctx context.Context, userID string, typ domain.ChallengeType, from, to time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_challenges uc
		 JOIN challenges c ON c.id = uc.challenge_id
		 WHERE uc.user_id = ? AND c.type = ? AND c.start_date >= ? AND c.start_date < ?`,
		userID, string(typ), from.Unix(), to.Unix(),
	).Scan(&n)
	return n, err
}

const userChallengeColumns = `uc.id, uc.user_id, uc.challenge_id, uc.progress, uc.completed, uc.completed_at, uc.claimed_at,
	c.id, c.template_key, c.title, c.description, c.icon, c.type, c.goal, c.reward_xp, c.start_date, c.end_date, c.is_active`

// OpenUserChallenges returns a user's uncompleted challenges on active
// instances.
func (q *Queries) OpenUserChallenges(ctx context.Context, userID string) ([]domain.UserChallenge, error) {
	return q.queryUserChallenges(ctx,
		`SELECT `+userChallengeColumns+`
		 FROM user_challenges uc JOIN challenges c ON c.id = uc.challenge_id
		 WHERE uc.user_id = ? AND uc.completed = 0 AND c.is_active = 1
		 ORDER BY c.start_date DESC, c.title`,
		userID,
	)
}

// ListUserChallenges returns every challenge of a user on active instances,
// newest window first.
func (q *Queries) ListUserChallenges(ctx context.Context, userID string) ([]domain.UserChallenge, error) {
	return q.queryUserChallenges(ctx,
		`SELECT `+userChallengeColumns+`
		 FROM user_challenges uc JOIN challenges c ON c.id = uc.challenge_id
		 WHERE uc.user_id = ? AND c.is_active = 1
		 ORDER BY c.start_date DESC, c.title`,
		userID,
	)
}

// ClaimedUserChallenges returns a user's claimed challenges, most recent
// claim first.
func (q *Queries) ClaimedUserChallenges(ctx context.Context, userID string, limit int) ([]domain.UserChallenge, error) {
	return q.queryUserChallenges(ctx,
		`SELECT `+userChallengeColumns+`
		 FROM user_challenges uc JOIN challenges c ON c.id = uc.challenge_id
		 WHERE uc.user_id = ? AND uc.claimed_at IS NOT NULL
		 ORDER BY uc.claimed_at DESC, uc.id
		 LIMIT ?`,
		userID, limit,
	)
}

// GetUserChallenge returns a user challenge with its instance, or nil.
func (q *Queries) GetUserChallenge(ctx context.Context, id string) (*domain.UserChallenge, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+userChallengeColumns+`
		 FROM user_challenges uc JOIN challenges c ON c.id = uc.challenge_id
		 WHERE uc.id = ?`, id,
	)
	uc, err := scanUserChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return uc, err
}

// UpdateUserChallengeProgress writes recomputed progress. completed_at keeps
// its first value; claimed rows are never touched.
func (q *Queries) UpdateUserChallengeProgress(ctx context.Context, id string, progress int, completed bool, at time.Time) error {
	var completedAt sql.NullInt64
	if completed {
		completedAt = nullableUnix(at)
	}
	_, err := q.q.ExecContext(ctx,
		`UPDATE user_challenges
		 SET progress = MAX(progress, ?),
		     completed = (completed OR ?),
		     completed_at = COALESCE(completed_at, ?)
		 WHERE id = ? AND claimed_at IS NULL`,
		progress, completed, completedAt, id,
	)
	return err
}

// ClaimUserChallenge marks a completed challenge as claimed. Exactly one
// caller wins; the rest get false.
func (q *Queries) ClaimUserChallenge(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`UPDATE user_challenges SET claimed_at = ?
		 WHERE id = ? AND user_id = ? AND completed = 1 AND claimed_at IS NULL`,
		at.Unix(), id, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

func (q *Queries) queryUserChallenges(ctx context.Context, query string, args ...any) ([]domain.UserChallenge, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.UserChallenge
	for rows.Next() {
		uc, err := scanUserChallenge(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *uc)
	}
	return list, rows.Err()
}

func scanUserChallenge(s scanner) (*domain.UserChallenge, error) {
	var uc domain.UserChallenge
	var completedAt, claimedAt sql.NullInt64
	var typ string
	var start, end int64
	c := &uc.Challenge
	err := s.Scan(&uc.ID, &uc.UserID, &uc.ChallengeID, &uc.Progress, &uc.Completed, &completedAt, &claimedAt,
		&c.ID, &c.TemplateKey, &c.Title, &c.Description, &c.Icon, &typ, &c.Goal, &c.RewardXP,
		&start, &end, &c.IsActive)
	if err != nil {
		return nil, err
	}
	uc.CompletedAt = timePtr(completedAt)
	uc.ClaimedAt = timePtr(claimedAt)
	c.Type = domain.ChallengeType(typ)
	c.StartDate = time.Unix(start, 0)
	c.EndDate = time.Unix(end, 0)
	return &uc, nil
}
