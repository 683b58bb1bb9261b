package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

// ─── Achievement Catalog ────────────────────────────────────────────────────

// UpsertAchievement inserts or refreshes a catalog row keyed on slug. The id
// of an existing row is kept so prior unlocks stay attached.
func (q *Queries) UpsertAchievement(ctx context.Context, a domain.Achievement, position int) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO achievements (id, slug, name, description, icon, category, threshold, rarity, xp_reward, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   icon = excluded.icon,
		   category = excluded.category,
		   threshold = excluded.threshold,
		   rarity = excluded.rarity,
		   xp_reward = excluded.xp_reward,
		   position = excluded.position`,
		a.ID, a.Slug, a.Name, a.Description, a.Icon, string(a.Category),
		a.Threshold, string(a.Rarity), a.XPReward, position,
	)
	return err
}

// ListAchievements returns the catalog in display order.
func (q *Queries) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, slug, name, description, icon, category, threshold, rarity, xp_reward
		 FROM achievements ORDER BY position, slug`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// GetAchievementBySlug returns a catalog row, or nil if the slug is unknown.
func (q *Queries) GetAchievementBySlug(ctx context.Context, slug string) (*domain.Achievement, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT id, slug, name, description, icon, category, threshold, rarity, xp_reward
		 FROM achievements WHERE slug = ?`, slug,
	)
	a, err := scanAchievement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// CountAchievements returns the catalog size.
func (q *Queries) CountAchievements(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM achievements`).Scan(&n)
	return n, err
}

func scanAchievement(s scanner) (*domain.Achievement, error) {
	var a domain.Achievement
	var category, rarity string
	if err := s.Scan(&a.ID, &a.Slug, &a.Name, &a.Description, &a.Icon,
		&category, &a.Threshold, &rarity, &a.XPReward); err != nil {
		return nil, err
	}
	a.Category = domain.AchievementCategory(category)
	a.Rarity = domain.Rarity(rarity)
	return &a, nil
}

// ─── User Achievements ──────────────────────────────────────────────────────

// InsertUserAchievement records an unlock. Returns false if the user had
// already unlocked the achievement.
func (q *Queries) InsertUserAchievement(ctx context.Context, ua domain.UserAchievement) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, achievement_id) DO NOTHING`,
		ua.UserID, ua.AchievementID, ua.UnlockedAt.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// UnlockedAchievements maps achievement id to unlock time for a user.
func (q *Queries) UnlockedAchievements(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT achievement_id, unlocked_at FROM user_achievements WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	unlocked := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var ts int64
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		unlocked[id] = time.Unix(ts, 0)
	}
	return unlocked, rows.Err()
}
