package engagement

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/metrics"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

// Hour bounds for the presence challenges, canonical timezone.
const (
	earlyBeforeHour = 9
	lateFromHour    = 22

	// A commit message longer than this counts as descriptive.
	descriptiveMinLen = 10
)

// challengeTemplates is the static recipe pool. Keys are filled from titles.
var challengeTemplates = keyed([]domain.ChallengeTemplate{
	// Daily
	{Type: domain.ChallengeDaily, Kind: domain.KindCommitCount, Title: "Commit Streak",
		Description: "Make {goal} commits today", Icon: "🔥", RewardXP: 50, GoalMin: 3, GoalMax: 7},
	{Type: domain.ChallengeDaily, Kind: domain.KindEarlyCommit, Title: "Early Bird",
		Description: "Make a commit before 9 AM", Icon: "🌅", RewardXP: 30, GoalMin: 1, GoalMax: 1},
	{Type: domain.ChallengeDaily, Kind: domain.KindLateCommit, Title: "Night Owl",
		Description: "Make a commit after 10 PM", Icon: "🦉", RewardXP: 30, GoalMin: 1, GoalMax: 1},
	{Type: domain.ChallengeDaily, Kind: domain.KindLinesAdded, Title: "Code Warrior",
		Description: "Add {goal}+ lines of code", Icon: "⚔️", RewardXP: 40, GoalMin: 3, GoalMax: 7, GoalStep: 50},
	{Type: domain.ChallengeDaily, Kind: domain.KindDistinctRepos, Title: "Repo Explorer",
		Description: "Commit to at least {goal} different repos", Icon: "🗺️", RewardXP: 35, GoalMin: 2, GoalMax: 3},
	{Type: domain.ChallengeDaily, Kind: domain.KindDescriptive, Title: "Message Master",
		Description: "Make {goal} commits with descriptive messages", Icon: "✍️", RewardXP: 25, GoalMin: 3, GoalMax: 7},

	// Weekly
	{Type: domain.ChallengeWeekly, Kind: domain.KindCommitCount, Title: "Week Warrior",
		Description: "Make {goal} commits this week", Icon: "⚔️", RewardXP: 200, GoalMin: 10, GoalMax: 30},
	{Type: domain.ChallengeWeekly, Kind: domain.KindStreak, Title: "Streak Master",
		Description: "Maintain a {goal} day commit streak", Icon: "🔥", RewardXP: 150, GoalMin: 3, GoalMax: 7},
	{Type: domain.ChallengeWeekly, Kind: domain.KindDistinctRepos, Title: "Polyglot",
		Description: "Commit to at least {goal} different repositories", Icon: "🌐", RewardXP: 100, GoalMin: 2, GoalMax: 5},
})

func keyed(templates []domain.ChallengeTemplate) []domain.ChallengeTemplate {
	for i := range templates {
		templates[i].Key = slug.Make(templates[i].Title)
	}
	return templates
}

// Templates returns the templates of one challenge type.
func Templates(typ domain.ChallengeType) []domain.ChallengeTemplate {
	var out []domain.ChallengeTemplate
	for _, t := range challengeTemplates {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

func templateByKey(key string) (domain.ChallengeTemplate, bool) {
	for _, t := range challengeTemplates {
		if t.Key == key {
			return t, true
		}
	}
	return domain.ChallengeTemplate{}, false
}

// ─── Progress Rules ─────────────────────────────────────────────────────────

// progressInput is the activity inside one challenge window.
type progressInput struct {
	commits []domain.Commit
	streak  int
	cal     Calendar
}

type progressFunc func(in progressInput) int

var progressFuncs = map[domain.ChallengeKind]progressFunc{
	domain.KindCommitCount: func(in progressInput) int {
		return len(in.commits)
	},
	domain.KindDistinctRepos: func(in progressInput) int {
		repos := make(map[string]struct{})
		for _, c := range in.commits {
			repos[c.RepoID] = struct{}{}
		}
		return len(repos)
	},
	domain.KindLinesAdded: func(in progressInput) int {
		total := 0
		for _, c := range in.commits {
			total += c.Additions
		}
		return total
	},
	domain.KindEarlyCommit: func(in progressInput) int {
		for _, c := range in.commits {
			if in.cal.Hour(c.CommittedAt) < earlyBeforeHour {
				return 1
			}
		}
		return 0
	},
	domain.KindLateCommit: func(in progressInput) int {
		for _, c := range in.commits {
			if in.cal.Hour(c.CommittedAt) >= lateFromHour {
				return 1
			}
		}
		return 0
	},
	domain.KindDescriptive: func(in progressInput) int {
		n := 0
		for _, c := range in.commits {
			if utf8.RuneCountInString(c.Message) > descriptiveMinLen {
				n++
			}
		}
		return n
	},
	domain.KindStreak: func(in progressInput) int {
		return in.streak
	},
}

// ─── Challenge Service ──────────────────────────────────────────────────────

// ChallengeService generates, tracks and pays out daily and weekly
// challenges. State per user challenge: pending, completed, claimed.
type ChallengeService struct {
	db     *sqlite.DB
	levels *LevelService
	cal    Calendar
	now    func() time.Time
	log    logrus.FieldLogger

	daily        int
	weekly       int
	claimedLimit int
	historyLimit int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewChallengeService creates a challenge service.
func NewChallengeService(db *sqlite.DB, levels *LevelService, cfg Config) *ChallengeService {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Clock().UnixNano()
	}
	return &ChallengeService{
		db:           db,
		levels:       levels,
		cal:          cfg.Calendar,
		now:          cfg.Clock,
		log:          cfg.Logger.WithField("component", "challenges"),
		daily:        cfg.DailyChallenges,
		weekly:       cfg.WeeklyChallenges,
		claimedLimit: cfg.ClaimedLimit,
		historyLimit: cfg.HistoryLimit,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// GenerateDailyChallenges assigns today's challenges unless the user already
// has some. Returns the instances created by this call.
func (c *ChallengeService) GenerateDailyChallenges(ctx context.Context, userID string) ([]domain.UserChallenge, error) {
	from, to := c.cal.DailyWindow(c.now())
	return c.generate(ctx, userID, domain.ChallengeDaily, c.daily, from, to)
}

// GenerateWeeklyChallenges assigns this week's challenges unless the user
// already has some. Weeks start on Sunday.
func (c *ChallengeService) GenerateWeeklyChallenges(ctx context.Context, userID string) ([]domain.UserChallenge, error) {
	from, to := c.cal.WeeklyWindow(c.now())
	return c.generate(ctx, userID, domain.ChallengeWeekly, c.weekly, from, to)
}

func (c *ChallengeService) generate(ctx context.Context, userID string, typ domain.ChallengeType, n int, from, to time.Time) ([]domain.UserChallenge, error) {
	unlock := c.levels.locks.lock(userID)
	defer unlock()

	existing, err := c.db.CountUserChallengesInWindow(ctx, userID, typ, from, to)
	if err != nil {
		return nil, storeErr("count challenges", err)
	}
	if existing > 0 {
		return nil, nil
	}

	picks := c.pick(Templates(typ), n)
	created := make([]domain.UserChallenge, 0, len(picks))
	err = c.db.InTx(ctx, func(q *sqlite.Queries) error {
		for _, p := range picks {
			ch := domain.Challenge{
				ID:          uuid.New().String(),
				TemplateKey: p.tmpl.Key,
				Title:       p.tmpl.Title,
				Description: strings.ReplaceAll(p.tmpl.Description, "{goal}", strconv.Itoa(p.goal)),
				Icon:        p.tmpl.Icon,
				Type:        typ,
				Goal:        p.goal,
				RewardXP:    p.tmpl.RewardXP,
				StartDate:   from,
				EndDate:     to,
				IsActive:    true,
			}
			if err := q.InsertChallenge(ctx, ch); err != nil {
				return storeErr("insert challenge", err)
			}
			uc := domain.UserChallenge{
				ID:          uuid.New().String(),
				UserID:      userID,
				ChallengeID: ch.ID,
				Challenge:   ch,
			}
			if err := q.InsertUserChallenge(ctx, uc); err != nil {
				return storeErr("insert user challenge", err)
			}
			created = append(created, uc)
		}
		return nil
	})
	if err != nil {
		return nil, txErr("generate challenges", err)
	}

	metrics.ChallengesGenerated.WithLabelValues(string(typ)).Add(float64(len(created)))
	c.log.WithFields(logrus.Fields{
		"user":  userID,
		"type":  typ,
		"count": len(created),
	}).Debug("Challenges generated")
	return created, nil
}

type pickedTemplate struct {
	tmpl domain.ChallengeTemplate
	goal int
}

// pick selects n templates without replacement and rolls their goals.
func (c *ChallengeService) pick(pool []domain.ChallengeTemplate, n int) []pickedTemplate {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	shuffled := make([]domain.ChallengeTemplate, len(pool))
	copy(shuffled, pool)
	c.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}

	out := make([]pickedTemplate, 0, n)
	for _, t := range shuffled[:n] {
		goal := t.GoalMin
		if t.GoalMax > t.GoalMin {
			goal += c.rng.Intn(t.GoalMax - t.GoalMin + 1)
		}
		if t.GoalStep > 1 {
			goal *= t.GoalStep
		}
		out = append(out, pickedTemplate{tmpl: t, goal: goal})
	}
	return out
}

// UpdateChallengeProgress recomputes progress of every open challenge from
// the commits inside its window. Progress never goes down and completion
// is recorded once.
func (c *ChallengeService) UpdateChallengeProgress(ctx context.Context, userID string) error {
	unlock := c.levels.locks.lock(userID)
	defer unlock()

	open, err := c.db.OpenUserChallenges(ctx, userID)
	if err != nil {
		return storeErr("load open challenges", err)
	}
	if len(open) == 0 {
		return nil
	}

	now := c.now()
	times, err := c.db.CommitTimes(ctx, userID)
	if err != nil {
		return storeErr("load commit times", err)
	}
	streak := CalculateStreak(times, now, c.cal).Current

	for _, uc := range open {
		ch := uc.Challenge
		tmpl, ok := templateByKey(ch.TemplateKey)
		if !ok {
			c.log.WithField("template", ch.TemplateKey).Warn("Unknown challenge template, skipping")
			continue
		}
		fn, ok := progressFuncs[tmpl.Kind]
		if !ok {
			c.log.WithField("kind", tmpl.Kind).Warn("No progress rule for challenge kind, skipping")
			continue
		}

		commits, err := c.db.CommitsBetween(ctx, userID, ch.StartDate, ch.EndDate)
		if err != nil {
			return storeErr("load window commits", err)
		}

		progress := fn(progressInput{commits: commits, streak: streak, cal: c.cal})
		if progress > ch.Goal {
			progress = ch.Goal
		}
		completed := progress >= ch.Goal
		if progress <= uc.Progress && !completed {
			continue
		}

		if err := c.db.UpdateUserChallengeProgress(ctx, uc.ID, progress, completed, now); err != nil {
			return storeErr("update challenge progress", err)
		}
		if completed {
			metrics.ChallengesCompleted.WithLabelValues(string(ch.Type)).Inc()
			c.log.WithFields(logrus.Fields{
				"user":      userID,
				"challenge": ch.Title,
			}).Info("Challenge completed")
		}
	}
	return nil
}

// GetUserChallenges partitions the user's challenges into active (pending,
// window open), completed (not yet claimed) and claimed (latest first).
func (c *ChallengeService) GetUserChallenges(ctx context.Context, userID string) (domain.ChallengeList, error) {
	all, err := c.db.ListUserChallenges(ctx, userID)
	if err != nil {
		return domain.ChallengeList{}, storeErr("list challenges", err)
	}

	list := domain.ChallengeList{
		Active:    []domain.UserChallenge{},
		Completed: []domain.UserChallenge{},
	}
	now := c.now()
	for _, uc := range all {
		switch {
		case uc.ClaimedAt != nil:
		case uc.Completed:
			list.Completed = append(list.Completed, uc)
		case !uc.IsExpired(now):
			list.Active = append(list.Active, uc)
		}
	}

	claimed, err := c.db.ClaimedUserChallenges(ctx, userID, c.claimedLimit)
	if err != nil {
		return domain.ChallengeList{}, storeErr("list claimed challenges", err)
	}
	if claimed == nil {
		claimed = []domain.UserChallenge{}
	}
	list.Claimed = claimed
	return list, nil
}

// Refresh generates missing challenges, recomputes progress and lists.
func (c *ChallengeService) Refresh(ctx context.Context, userID string) (domain.ChallengeList, error) {
	if _, err := c.GenerateDailyChallenges(ctx, userID); err != nil {
		return domain.ChallengeList{}, err
	}
	if _, err := c.GenerateWeeklyChallenges(ctx, userID); err != nil {
		return domain.ChallengeList{}, err
	}
	if err := c.UpdateChallengeProgress(ctx, userID); err != nil {
		return domain.ChallengeList{}, err
	}
	return c.GetUserChallenges(ctx, userID)
}

// ClaimChallengeReward pays out a completed challenge exactly once.
func (c *ChallengeService) ClaimChallengeReward(ctx context.Context, userID, userChallengeID string) (domain.ClaimResult, error) {
	unlock := c.levels.locks.lock(userID)
	defer unlock()

	var (
		uc  *domain.UserChallenge
		res domain.XPResult
	)
	err := c.db.InTx(ctx, func(q *sqlite.Queries) error {
		won, err := q.ClaimUserChallenge(ctx, userChallengeID, userID, c.now())
		if err != nil {
			return storeErr("claim challenge", err)
		}

		uc, err = q.GetUserChallenge(ctx, userChallengeID)
		if err != nil {
			return storeErr("get user challenge", err)
		}
		if !won {
			return diagnoseClaim(uc, userID)
		}

		res, err = c.levels.award(ctx, q, userID, uc.Challenge.RewardXP, "challenge:"+uc.ID)
		return err
	})
	if err != nil {
		return domain.ClaimResult{}, txErr("claim challenge", err)
	}

	reason := "challenge:" + uc.ID
	c.levels.observe(userID, uc.Challenge.RewardXP, reason, res)
	metrics.ChallengesClaimed.WithLabelValues(string(uc.Challenge.Type)).Inc()

	return domain.ClaimResult{
		XPAwarded: uc.Challenge.RewardXP,
		LeveledUp: res.LeveledUp,
		NewLevel:  res.NewLevel,
	}, nil
}

// diagnoseClaim explains why the claim update matched no row.
func diagnoseClaim(uc *domain.UserChallenge, userID string) error {
	switch {
	case uc == nil || uc.UserID != userID:
		return fmt.Errorf("challenge: %w", domain.ErrNotFound)
	case uc.ClaimedAt != nil:
		return domain.ErrAlreadyClaimed
	default:
		return domain.ErrInvalidState
	}
}

// GetChallengeHistory returns the user's claimed challenges, latest first.
func (c *ChallengeService) GetChallengeHistory(ctx context.Context, userID string) ([]domain.ChallengeHistoryItem, error) {
	claimed, err := c.db.ClaimedUserChallenges(ctx, userID, c.historyLimit)
	if err != nil {
		return nil, storeErr("list claimed challenges", err)
	}
	items := make([]domain.ChallengeHistoryItem, 0, len(claimed))
	for _, uc := range claimed {
		items = append(items, domain.ChallengeHistoryItem{
			ID:          uc.ID,
			Title:       uc.Challenge.Title,
			Description: uc.Challenge.Description,
			Icon:        uc.Challenge.Icon,
			RewardXP:    uc.Challenge.RewardXP,
			Type:        uc.Challenge.Type,
			CompletedAt: uc.CompletedAt,
			ClaimedAt:   uc.ClaimedAt,
		})
	}
	return items, nil
}
