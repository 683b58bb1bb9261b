// Package domain holds the gitquest engagement types.
// Commits feed streaks, XP, levels, achievements and time-boxed challenges.
package domain

import "time"

// ─── Commit Types ───────────────────────────────────────────────────────────

// Provider identifies a Git hosting provider.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// Commit is an ingested commit. Unique per (RepoID, SHA); never updated.
type Commit struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	RepoID      string    `json:"repo_id"`
	Provider    Provider  `json:"provider"`
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	CommittedAt time.Time `json:"committed_at"`
	Branch      string    `json:"branch"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	XPAwarded   bool      `json:"xp_awarded"`
}

// CommitInput is a newly observed commit handed to ingestion.
type CommitInput struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	CommittedAt time.Time `json:"committed_at"`
	Branch      string    `json:"branch"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
}

// Account is a connected provider account.
type Account struct {
	UserID            string    `json:"user_id"`
	Provider          Provider  `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	LinkedAt          time.Time `json:"linked_at"`
}

// TrackedRepo is a repository whose commits are counted for a user.
type TrackedRepo struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Provider       Provider  `json:"provider"`
	ExternalRepoID string    `json:"external_repo_id"`
	RepoName       string    `json:"repo_name"`
	WebhookSecret  string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// ─── Stats / Streak Types ───────────────────────────────────────────────────

// Streak is the derived streak pair for a set of commit days.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// UserStats is the rollup row. Fully recomputable from the commit set.
type UserStats struct {
	UserID         string    `json:"user_id"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	TotalCommits   int       `json:"total_commits"`
	LastCommitDate time.Time `json:"last_commit_date"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StatsOverview is the dashboard view of a user's activity.
type StatsOverview struct {
	UserStats
	TodayCommits         int       `json:"today_commits"`
	Level                XPSummary `json:"level"`
	AchievementsUnlocked int       `json:"achievements_unlocked"`
	AchievementsTotal    int       `json:"achievements_total"`
	Additions            int64     `json:"additions"`
	Deletions            int64     `json:"deletions"`
}

// CalendarDay is the commit count of one canonical-timezone day.
type CalendarDay struct {
	Date  string `json:"date"` // 2006-01-02
	Count int    `json:"count"`
}

// CommitEntry is a stored commit joined with its repository name.
type CommitEntry struct {
	Commit
	RepoName string `json:"repo_name"`
}

// CommitPage is one page of a user's commits, newest first.
type CommitPage struct {
	Commits    []CommitEntry `json:"commits"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// InsightPeriod selects how far back Insights looks.
type InsightPeriod string

const (
	PeriodWeek  InsightPeriod = "week"  // the last seven days
	PeriodMonth InsightPeriod = "month" // since the first of this month
	PeriodYear  InsightPeriod = "year"  // since January 1st
	PeriodAll   InsightPeriod = "all"
)

// RepoShare is one repository's part of a period's activity.
type RepoShare struct {
	Name      string `json:"name"`
	Commits   int    `json:"commits"`
	Additions int64  `json:"additions"`
	Deletions int64  `json:"deletions"`
}

// WordCount is a frequent word in commit messages.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Insights describes when and where a user commits over a period. Hours
// and weekdays are in the canonical timezone.
type Insights struct {
	Period         InsightPeriod `json:"period"`
	TotalCommits   int           `json:"total_commits"`
	Hours          [24]int       `json:"hours"`
	Weekdays       [7]int        `json:"weekdays"` // Sunday first
	Repos          []RepoShare   `json:"repos"`
	BestHour       int           `json:"best_hour"`
	BestDay        string        `json:"best_day"`
	AvgPerDay      float64       `json:"avg_commits_per_day"`
	LongestGapDays int           `json:"longest_gap_days"`
	DaysSpan       int           `json:"days_span"`
	Additions      int64         `json:"additions"`
	Deletions      int64         `json:"deletions"`
	TopWords       []WordCount   `json:"top_words"`
}

// ─── Level / XP Types ───────────────────────────────────────────────────────

// UserLevel is the per-user progression record.
// Level and Title are always derived from TotalXP.
type UserLevel struct {
	UserID  string `json:"user_id"`
	Level   int    `json:"level"`
	XP      int64  `json:"xp"` // XP inside the current level, display only
	TotalXP int64  `json:"total_xp"`
	Title   string `json:"title"`
}

// XPSummary is what the XP surface shows.
type XPSummary struct {
	Level         int    `json:"level"`
	XP            int64  `json:"xp"`
	TotalXP       int64  `json:"total_xp"`
	Title         string `json:"title"`
	XPToNextLevel int64  `json:"xp_to_next_level"`
}

// XPResult is the outcome of a single XP award.
type XPResult struct {
	LeveledUp bool  `json:"leveled_up"`
	NewLevel  int   `json:"new_level"`
	NewXP     int64 `json:"new_xp"`
	Duplicate bool  `json:"duplicate,omitempty"` // reason already awarded, nothing changed
}

// XPEvent is an audit row for one XP award. Unique per (UserID, Reason).
type XPEvent struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementCategory is the closed set of achievement kinds.
type AchievementCategory string

const (
	CategoryStreak  AchievementCategory = "streak"
	CategoryVolume  AchievementCategory = "volume"
	CategoryTime    AchievementCategory = "time"
	CategorySpecial AchievementCategory = "special"
)

// Valid reports whether c is one of the known categories.
func (c AchievementCategory) Valid() bool {
	switch c {
	case CategoryStreak, CategoryVolume, CategoryTime, CategorySpecial:
		return true
	}
	return false
}

// Rarity grades an achievement.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Achievement is a catalog row. Read-only at runtime.
type Achievement struct {
	ID          string              `json:"id"`
	Slug        string              `json:"slug"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Icon        string              `json:"icon"`
	Category    AchievementCategory `json:"category"`
	Threshold   int                 `json:"threshold"`
	Rarity      Rarity              `json:"rarity"`
	XPReward    int64               `json:"xp_reward"`
}

// UserAchievement records an unlock. Existence means unlocked.
type UserAchievement struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// AchievementStatus is a catalog entry joined with a user's unlock state.
type AchievementStatus struct {
	Achievement
	IsUnlocked bool       `json:"is_unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at"`
}

// UnlockEvent is emitted once per newly unlocked achievement.
type UnlockEvent struct {
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	Icon          string `json:"icon"`
	Rarity        Rarity `json:"rarity"`
	XPReward      int64  `json:"xp_reward"`
}

// ─── Challenge Types ────────────────────────────────────────────────────────

// ChallengeType is the challenge period.
type ChallengeType string

const (
	ChallengeDaily  ChallengeType = "daily"
	ChallengeWeekly ChallengeType = "weekly"
)

// ChallengeKind selects how progress is derived from activity.
type ChallengeKind string

const (
	KindCommitCount   ChallengeKind = "commit_count"
	KindDistinctRepos ChallengeKind = "distinct_repos"
	KindLinesAdded    ChallengeKind = "lines_added"
	KindEarlyCommit   ChallengeKind = "early_commit"
	KindLateCommit    ChallengeKind = "late_commit"
	KindDescriptive   ChallengeKind = "descriptive_messages"
	KindStreak        ChallengeKind = "streak"
)

// ChallengeTemplate is a static recipe for challenge instances.
type ChallengeTemplate struct {
	Key         string        `json:"key"`
	Type        ChallengeType `json:"type"`
	Kind        ChallengeKind `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"` // may contain {goal}
	Icon        string        `json:"icon"`
	RewardXP    int64         `json:"reward_xp"`
	GoalMin     int           `json:"goal_min"`
	GoalMax     int           `json:"goal_max"`
	GoalStep    int           `json:"goal_step"` // goal = rand[GoalMin,GoalMax] * GoalStep
}

// Challenge is an immutable challenge instance.
type Challenge struct {
	ID          string        `json:"id"`
	TemplateKey string        `json:"template_key"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Type        ChallengeType `json:"type"`
	Goal        int           `json:"goal"`
	RewardXP    int64         `json:"reward_xp"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	IsActive    bool          `json:"is_active"`
}

// UserChallenge is a user's progress on one challenge instance.
// State machine: pending -> completed -> claimed.
type UserChallenge struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ChallengeID string     `json:"challenge_id"`
	Progress    int        `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	Challenge   Challenge  `json:"challenge"`
}

// IsExpired reports whether the challenge window has closed at now.
func (uc UserChallenge) IsExpired(now time.Time) bool {
	return !now.Before(uc.Challenge.EndDate)
}

// ProgressPct returns completion percentage (0-100).
func (uc UserChallenge) ProgressPct() float64 {
	if uc.Challenge.Goal <= 0 {
		return 100.0
	}
	pct := float64(uc.Progress) / float64(uc.Challenge.Goal) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// ChallengeList partitions a user's challenges for display.
type ChallengeList struct {
	Active    []UserChallenge `json:"active"`
	Completed []UserChallenge `json:"completed"`
	Claimed   []UserChallenge `json:"claimed"`
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	XPAwarded int64 `json:"xp_awarded"`
	LeveledUp bool  `json:"leveled_up"`
	NewLevel  int   `json:"new_level"`
}

// ChallengeHistoryItem is one claimed challenge.
type ChallengeHistoryItem struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	RewardXP    int64         `json:"reward_xp"`
	Type        ChallengeType `json:"type"`
	CompletedAt *time.Time    `json:"completed_at"`
	ClaimedAt   *time.Time    `json:"claimed_at"`
}

// ─── Ingestion ──────────────────────────────────────────────────────────────

// IngestResult summarizes one batch of commits.
type IngestResult struct {
	Stored     int           `json:"stored"`
	Duplicates int           `json:"duplicates"`
	XPEarned   int64         `json:"xp_earned"`
	LeveledUp  bool          `json:"leveled_up"`
	NewLevel   int           `json:"new_level"`
	Unlocked   []UnlockEvent `json:"newly_unlocked"`
}
