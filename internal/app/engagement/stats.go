package engagement

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

// StatsService maintains the per-user rollup row. Every update is a full
// recompute from the stored commits.
type StatsService struct {
	db     *sqlite.DB
	levels *LevelService
	cal    Calendar
	now    func() time.Time
	log    logrus.FieldLogger
}

// NewStatsService creates a stats service. It shares the level service's
// per-user locks.
func NewStatsService(db *sqlite.DB, levels *LevelService, cfg Config) *StatsService {
	cfg = cfg.withDefaults()
	return &StatsService{
		db:     db,
		levels: levels,
		cal:    cfg.Calendar,
		now:    cfg.Clock,
		log:    cfg.Logger.WithField("component", "stats"),
	}
}

// UpdateUserStats recomputes streaks and totals for userID and stores them.
func (s *StatsService) UpdateUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	unlock := s.levels.locks.lock(userID)
	defer unlock()

	times, err := s.db.CommitTimes(ctx, userID)
	if err != nil {
		return domain.UserStats{}, storeErr("load commit times", err)
	}

	now := s.now()
	streak := CalculateStreak(times, now, s.cal)
	stats := domain.UserStats{
		UserID:        userID,
		CurrentStreak: streak.Current,
		LongestStreak: streak.Longest,
		TotalCommits:  len(times),
		UpdatedAt:     now,
	}
	for _, t := range times {
		if t.After(stats.LastCommitDate) {
			stats.LastCommitDate = t
		}
	}

	if err := s.db.UpsertUserStats(ctx, stats); err != nil {
		return domain.UserStats{}, storeErr("upsert user stats", err)
	}
	return stats, nil
}

// Overview refreshes the rollup and joins it with today's activity, level
// and achievement counts.
func (s *StatsService) Overview(ctx context.Context, userID string) (domain.StatsOverview, error) {
	stats, err := s.UpdateUserStats(ctx, userID)
	if err != nil {
		return domain.StatsOverview{}, err
	}

	from, to := s.cal.DailyWindow(s.now())
	today, err := s.db.CountCommitsBetween(ctx, userID, from, to)
	if err != nil {
		return domain.StatsOverview{}, storeErr("count today's commits", err)
	}

	level, err := s.levels.GetUserXP(ctx, userID)
	if err != nil {
		return domain.StatsOverview{}, err
	}

	unlocked, err := s.db.UnlockedAchievements(ctx, userID)
	if err != nil {
		return domain.StatsOverview{}, storeErr("load unlocked achievements", err)
	}
	total, err := s.db.CountAchievements(ctx)
	if err != nil {
		return domain.StatsOverview{}, storeErr("count achievements", err)
	}

	additions, deletions, err := s.db.CodeTotals(ctx, userID)
	if err != nil {
		return domain.StatsOverview{}, storeErr("sum code totals", err)
	}

	return domain.StatsOverview{
		UserStats:            stats,
		TodayCommits:         today,
		Level:                level,
		AchievementsUnlocked: len(unlocked),
		AchievementsTotal:    total,
		Additions:            additions,
		Deletions:            deletions,
	}, nil
}

// CommitCalendar returns per-day commit counts for the last days days,
// oldest first, including days without commits.
func (s *StatsService) CommitCalendar(ctx context.Context, userID string, days int) ([]domain.CalendarDay, error) {
	if days <= 0 {
		return nil, domain.ErrInvalidInput
	}
	_, end := s.cal.DailyWindow(s.now())
	start := end.AddDate(0, 0, -days)

	commits, err := s.db.CommitsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, storeErr("load commits", err)
	}

	counts := make(map[string]int, days)
	for _, c := range commits {
		counts[s.cal.DayKey(c.CommittedAt)]++
	}

	out := make([]domain.CalendarDay, 0, days)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := s.cal.DayKey(d)
		out = append(out, domain.CalendarDay{Date: key, Count: counts[key]})
	}
	return out, nil
}
