package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/metrics"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

// activity is everything an achievement predicate may look at.
type activity struct {
	stats     domain.UserStats
	providers []domain.Provider
	repoCount int
	commits   []time.Time
	cal       Calendar
}

// predicate reports whether a catalog entry is earned.
type predicate func(a domain.Achievement, act *activity) bool

// AchievementDef is one catalog entry plus its unlock rule.
type AchievementDef struct {
	domain.Achievement
	Predicate predicate
}

// AchievementService evaluates the catalog against a user's activity.
// Each unlock pays its reward once, through the XP ledger.
type AchievementService struct {
	db          *sqlite.DB
	levels      *LevelService
	definitions []AchievementDef
	bySlug      map[string]predicate
	cal         Calendar
	now         func() time.Time
	log         logrus.FieldLogger
}

// NewAchievementService creates an achievement service with all definitions.
func NewAchievementService(db *sqlite.DB, levels *LevelService, cfg Config) *AchievementService {
	cfg = cfg.withDefaults()
	defs := AllAchievements()
	bySlug := make(map[string]predicate, len(defs))
	for _, d := range defs {
		bySlug[d.Slug] = d.Predicate
	}
	return &AchievementService{
		db:          db,
		levels:      levels,
		definitions: defs,
		bySlug:      bySlug,
		cal:         cfg.Calendar,
		now:         cfg.Clock,
		log:         cfg.Logger.WithField("component", "achievements"),
	}
}

// Definitions returns all achievement definitions (for display).
func (a *AchievementService) Definitions() []AchievementDef {
	return a.definitions
}

// Seed upserts the catalog keyed on slug. Safe to run on every start.
func (a *AchievementService) Seed(ctx context.Context) error {
	for i, def := range a.definitions {
		if !slug.IsSlug(def.Slug) {
			return fmt.Errorf("seed achievement %q: %w: malformed slug", def.Slug, domain.ErrInvalidInput)
		}
		if !def.Category.Valid() {
			return fmt.Errorf("seed achievement %q: %w: unknown category %q", def.Slug, domain.ErrInvalidInput, def.Category)
		}
		row := def.Achievement
		row.ID = uuid.New().String()
		if err := a.db.UpsertAchievement(ctx, row, i); err != nil {
			return storeErr("upsert achievement "+def.Slug, err)
		}
	}
	a.log.WithField("count", len(a.definitions)).Debug("Achievement catalog seeded")
	return nil
}

// predicateFor picks the unlock rule for a stored catalog row. Streak and
// volume rows are plain thresholds; time and special rows need a rule
// registered under their slug.
func (a *AchievementService) predicateFor(row domain.Achievement) predicate {
	switch row.Category {
	case domain.CategoryStreak:
		return currentStreakAtLeast
	case domain.CategoryVolume:
		return totalCommitsAtLeast
	case domain.CategoryTime, domain.CategorySpecial:
		return a.bySlug[row.Slug]
	}
	return nil
}

// CheckAchievements evaluates every locked catalog entry and unlocks the
// ones whose predicate holds. A second call with no new activity returns
// nothing and awards nothing.
func (a *AchievementService) CheckAchievements(ctx context.Context, userID string) ([]domain.UnlockEvent, error) {
	events, _, err := a.check(ctx, userID)
	return events, err
}

// check evaluates the catalog and also reports the level movement the
// rewards caused: LeveledUp if any reward crossed a level, NewLevel as of
// the last paid reward (zero when nothing was paid).
func (a *AchievementService) check(ctx context.Context, userID string) ([]domain.UnlockEvent, domain.XPResult, error) {
	start := time.Now()
	defer func() { metrics.AchievementCheckLatency.Observe(time.Since(start).Seconds()) }()

	unlock := a.levels.locks.lock(userID)
	defer unlock()

	stats, err := a.db.GetUserStats(ctx, userID)
	if err != nil {
		return nil, domain.XPResult{}, storeErr("load user stats", err)
	}
	if stats == nil {
		return nil, domain.XPResult{}, nil
	}

	catalog, err := a.db.ListAchievements(ctx)
	if err != nil {
		return nil, domain.XPResult{}, storeErr("load achievements", err)
	}
	unlocked, err := a.db.UnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, domain.XPResult{}, storeErr("load unlocked achievements", err)
	}

	act := &activity{stats: *stats, cal: a.cal}
	if act.providers, err = a.db.AccountProviders(ctx, userID); err != nil {
		return nil, domain.XPResult{}, storeErr("load account providers", err)
	}
	if act.repoCount, err = a.db.CountTrackedRepos(ctx, userID); err != nil {
		return nil, domain.XPResult{}, storeErr("count tracked repos", err)
	}
	if act.commits, err = a.db.CommitTimes(ctx, userID); err != nil {
		return nil, domain.XPResult{}, storeErr("load commit times", err)
	}

	var (
		events []domain.UnlockEvent
		level  domain.XPResult
	)
	for _, row := range catalog {
		if _, ok := unlocked[row.ID]; ok {
			continue
		}
		pred := a.predicateFor(row)
		if pred == nil {
			a.log.WithField("slug", row.Slug).Warn("No unlock rule for achievement, skipping")
			continue
		}
		if !pred(row, act) {
			continue
		}

		ev, res, isNew, err := a.unlock(ctx, userID, row)
		if err != nil {
			return events, level, err
		}
		if !isNew {
			continue
		}
		events = append(events, ev)
		if res.NewLevel > 0 {
			level.LeveledUp = level.LeveledUp || res.LeveledUp
			level.NewLevel = res.NewLevel
			level.NewXP = res.NewXP
		}
	}
	return events, level, nil
}

// UnlockBySlug grants an achievement directly, regardless of its predicate.
func (a *AchievementService) UnlockBySlug(ctx context.Context, userID, achievementSlug string) (domain.UnlockEvent, error) {
	row, err := a.db.GetAchievementBySlug(ctx, achievementSlug)
	if err != nil {
		return domain.UnlockEvent{}, storeErr("get achievement", err)
	}
	if row == nil {
		return domain.UnlockEvent{}, fmt.Errorf("achievement %q: %w", achievementSlug, domain.ErrNotFound)
	}

	unlock := a.levels.locks.lock(userID)
	defer unlock()

	ev, _, isNew, err := a.unlock(ctx, userID, *row)
	if err != nil {
		return domain.UnlockEvent{}, err
	}
	if !isNew {
		return domain.UnlockEvent{}, fmt.Errorf("achievement %q: %w", achievementSlug, domain.ErrAlreadyUnlocked)
	}
	return ev, nil
}

// unlock inserts the unlock row and pays the reward in one transaction.
// The caller holds the user lock.
func (a *AchievementService) unlock(ctx context.Context, userID string, row domain.Achievement) (domain.UnlockEvent, domain.XPResult, bool, error) {
	var (
		isNew bool
		res   domain.XPResult
	)
	err := a.db.InTx(ctx, func(q *sqlite.Queries) error {
		var err error
		isNew, err = q.InsertUserAchievement(ctx, domain.UserAchievement{
			UserID:        userID,
			AchievementID: row.ID,
			UnlockedAt:    a.now(),
		})
		if err != nil {
			return storeErr("insert user achievement", err)
		}
		if !isNew || row.XPReward <= 0 {
			return nil
		}
		res, err = a.levels.award(ctx, q, userID, row.XPReward, "achievement:"+row.ID)
		return err
	})
	if err != nil {
		return domain.UnlockEvent{}, domain.XPResult{}, false, txErr("unlock achievement", err)
	}
	if !isNew {
		return domain.UnlockEvent{}, domain.XPResult{}, false, nil
	}

	if row.XPReward > 0 {
		a.levels.observe(userID, row.XPReward, "achievement:"+row.ID, res)
	}
	metrics.AchievementsUnlocked.WithLabelValues(row.Slug).Inc()
	a.log.WithFields(logrus.Fields{
		"user":        userID,
		"achievement": row.Slug,
		"xp":          row.XPReward,
	}).Info("Achievement unlocked")

	return domain.UnlockEvent{
		AchievementID: row.ID,
		Name:          row.Name,
		Icon:          row.Icon,
		Rarity:        row.Rarity,
		XPReward:      row.XPReward,
	}, res, true, nil
}

// ListWithStatus returns the catalog with the user's unlock state.
func (a *AchievementService) ListWithStatus(ctx context.Context, userID string) ([]domain.AchievementStatus, error) {
	catalog, err := a.db.ListAchievements(ctx)
	if err != nil {
		return nil, storeErr("load achievements", err)
	}
	unlocked, err := a.db.UnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, storeErr("load unlocked achievements", err)
	}

	out := make([]domain.AchievementStatus, 0, len(catalog))
	for _, row := range catalog {
		st := domain.AchievementStatus{Achievement: row}
		if at, ok := unlocked[row.ID]; ok {
			at := at
			st.IsUnlocked = true
			st.UnlockedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

// ─── Predicates ─────────────────────────────────────────────────────────────

func currentStreakAtLeast(a domain.Achievement, act *activity) bool {
	return act.stats.CurrentStreak >= a.Threshold
}

func totalCommitsAtLeast(a domain.Achievement, act *activity) bool {
	return act.stats.TotalCommits >= a.Threshold
}

// commitInHours matches any commit whose local hour is in [from, to).
func commitInHours(from, to int) predicate {
	return func(_ domain.Achievement, act *activity) bool {
		for _, t := range act.commits {
			if h := act.cal.Hour(t); h >= from && h < to {
				return true
			}
		}
		return false
	}
}

// bothWeekendDays needs a Saturday commit and a Sunday commit, not
// necessarily on the same weekend.
func bothWeekendDays(_ domain.Achievement, act *activity) bool {
	var sat, sun bool
	for _, t := range act.commits {
		switch act.cal.Weekday(t) {
		case time.Saturday:
			sat = true
		case time.Sunday:
			sun = true
		}
		if sat && sun {
			return true
		}
	}
	return false
}

func connectedBothProviders(_ domain.Achievement, act *activity) bool {
	var gh, gl bool
	for _, p := range act.providers {
		switch p {
		case domain.ProviderGitHub:
			gh = true
		case domain.ProviderGitLab:
			gl = true
		}
	}
	return gh && gl
}

func trackedReposAtLeast(a domain.Achievement, act *activity) bool {
	return act.repoCount >= a.Threshold
}

// ─── Achievement Definitions ────────────────────────────────────────────────

// AllAchievements returns the full achievement catalog in display order.
func AllAchievements() []AchievementDef {
	def := func(s, name, desc, icon string, cat domain.AchievementCategory, threshold int, rarity domain.Rarity, xp int64, p predicate) AchievementDef {
		return AchievementDef{
			Achievement: domain.Achievement{
				Slug: s, Name: name, Description: desc, Icon: icon,
				Category: cat, Threshold: threshold, Rarity: rarity, XPReward: xp,
			},
			Predicate: p,
		}
	}

	return []AchievementDef{
		// ── Streaks ────────────────────────────────────────────────────
		def("streak-7", "Week Warrior", "7-day commit streak", "🔥",
			domain.CategoryStreak, 7, domain.RarityCommon, 50, currentStreakAtLeast),
		def("streak-30", "Monthly Master", "30-day commit streak", "💪",
			domain.CategoryStreak, 30, domain.RarityRare, 200, currentStreakAtLeast),
		def("streak-100", "Centurion", "100-day commit streak", "👑",
			domain.CategoryStreak, 100, domain.RarityLegendary, 1000, currentStreakAtLeast),

		// ── Volume ─────────────────────────────────────────────────────
		def("commits-1", "First Blood", "Your first tracked commit", "🎯",
			domain.CategoryVolume, 1, domain.RarityCommon, 10, totalCommitsAtLeast),
		def("commits-100", "Century", "100 total commits", "💯",
			domain.CategoryVolume, 100, domain.RarityCommon, 100, totalCommitsAtLeast),
		def("commits-500", "Prolific", "500 total commits", "⚡",
			domain.CategoryVolume, 500, domain.RarityRare, 500, totalCommitsAtLeast),
		def("commits-1000", "Thousand Club", "1000 total commits", "🏆",
			domain.CategoryVolume, 1000, domain.RarityEpic, 1000, totalCommitsAtLeast),

		// ── Time of day ────────────────────────────────────────────────
		def("night-owl", "Night Owl", "Commit between midnight and 5am", "🦉",
			domain.CategoryTime, 1, domain.RarityRare, 50, commitInHours(0, 5)),
		def("early-bird", "Early Bird", "Commit between 5am and 7am", "🐦",
			domain.CategoryTime, 1, domain.RarityRare, 50, commitInHours(5, 7)),
		def("weekend-warrior", "Weekend Warrior", "Commit on Saturday and Sunday", "⚔️",
			domain.CategoryTime, 1, domain.RarityCommon, 30, bothWeekendDays),

		// ── Special ────────────────────────────────────────────────────
		def("multi-platform", "Multiverse", "Connect both GitHub and GitLab", "🌐",
			domain.CategorySpecial, 1, domain.RarityRare, 100, connectedBothProviders),
		def("first-repo", "Pioneer", "Track your first repository", "🚀",
			domain.CategorySpecial, 1, domain.RarityCommon, 20, trackedReposAtLeast),
	}
}
