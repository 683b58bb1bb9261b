package engagement

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/metrics"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

// MaxLevel is the highest level reachable from total XP.
const MaxLevel = 100

// Commit XP: base award plus additive size-tier bonuses on changed lines.
const (
	commitBaseXP = 10
	tierSmallAt  = 100
	tierSmallXP  = 5
	tierMediumAt = 500
	tierMediumXP = 10
	tierLargeAt  = 1000
	tierLargeXP  = 15
)

type levelBreakpoint struct {
	Level      int
	RequiredXP int64
	Title      string
}

// levelTable is strictly increasing in both Level and RequiredXP.
var levelTable = []levelBreakpoint{
	{1, 0, "Code Novice"},
	{2, 100, "App Developer"},
	{3, 250, "Bug Hunter"},
	{4, 500, "Code Apprentice"},
	{5, 1000, "Merge Apprentice"},
	{6, 2000, "Committer"},
	{7, 3500, "Streak Keeper"},
	{8, 5000, "Code Warrior"},
	{9, 7500, "Git Apprentice"},
	{10, 10000, "Merge Master"},
	{11, 15000, "Git Knight"},
	{12, 20000, "Code Crusader"},
	{13, 30000, "Streak Legend"},
	{14, 40000, "Achievement Hunter"},
	{15, 50000, "Git Champion"},
	{16, 75000, "Code Warlord"},
	{17, 100000, "Streak God"},
	{18, 150000, "Git Legend"},
	{19, 200000, "Code Titan"},
	{20, 250000, "Master Coder"},
	{25, 500000, "Elite Developer"},
	{30, 1000000, "Git Grandmaster"},
	{50, 5000000, "Code Immortal"},
	{100, 10000000, "Commit God"},
}

// XPForCommit returns the XP a single commit is worth.
func XPForCommit(additions, deletions int) int64 {
	changed := additions + deletions
	xp := int64(commitBaseXP)
	if changed > tierSmallAt {
		xp += tierSmallXP
	}
	if changed > tierMediumAt {
		xp += tierMediumXP
	}
	if changed > tierLargeAt {
		xp += tierLargeXP
	}
	return xp
}

// LevelFromTotalXP returns the highest breakpoint level whose requirement
// is met. Never exceeds MaxLevel.
func LevelFromTotalXP(totalXP int64) int {
	level := 1
	for _, bp := range levelTable {
		if bp.RequiredXP > totalXP {
			break
		}
		level = bp.Level
	}
	return level
}

// TitleForLevel returns the title of the highest breakpoint at or below level.
func TitleForLevel(level int) string {
	title := levelTable[0].Title
	for _, bp := range levelTable {
		if bp.Level > level {
			break
		}
		title = bp.Title
	}
	return title
}

// RequiredXPForLevel returns the cumulative XP at which level is reached.
// A level between two breakpoints is reached together with the next
// breakpoint. Past the table the requirement grows as 100*1.5^(level-1).
func RequiredXPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	i := sort.Search(len(levelTable), func(i int) bool { return levelTable[i].Level >= level })
	if i < len(levelTable) {
		return levelTable[i].RequiredXP
	}
	v := 100 * math.Pow(1.5, float64(level-1))
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// XPToNextLevel returns the XP still needed for the next level, or 0 at
// MaxLevel.
func XPToNextLevel(totalXP int64) int64 {
	level := LevelFromTotalXP(totalXP)
	if level >= MaxLevel {
		return 0
	}
	remaining := RequiredXPForLevel(level+1) - totalXP
	if remaining < 0 {
		return 0
	}
	return remaining
}

// levelFor derives a full level row from a total.
func levelFor(userID string, totalXP int64) domain.UserLevel {
	level := LevelFromTotalXP(totalXP)
	return domain.UserLevel{
		UserID:  userID,
		Level:   level,
		XP:      totalXP - RequiredXPForLevel(level),
		TotalXP: totalXP,
		Title:   TitleForLevel(level),
	}
}

// ─── Progression Ledger ─────────────────────────────────────────────────────

// LevelService owns XP awards. Every award is keyed by (user, reason) in
// the xp_events ledger, so replaying a reason changes nothing.
type LevelService struct {
	db    *sqlite.DB
	locks *userLocks
	now   func() time.Time
	log   logrus.FieldLogger
}

// NewLevelService creates a level service.
func NewLevelService(db *sqlite.DB, cfg Config) *LevelService {
	cfg = cfg.withDefaults()
	return &LevelService{
		db:    db,
		locks: newUserLocks(),
		now:   cfg.Clock,
		log:   cfg.Logger.WithField("component", "levels"),
	}
}

// AddXP awards amount to userID. reason identifies the awarding fact;
// a reason already paid yields a Duplicate result and no change.
func (l *LevelService) AddXP(ctx context.Context, userID string, amount int64, reason string) (domain.XPResult, error) {
	if amount <= 0 {
		return domain.XPResult{}, domain.ErrInvalidAmount
	}
	if userID == "" || reason == "" {
		return domain.XPResult{}, domain.ErrInvalidInput
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	var res domain.XPResult
	err := l.db.InTx(ctx, func(q *sqlite.Queries) error {
		var err error
		res, err = l.award(ctx, q, userID, amount, reason)
		return err
	})
	if err != nil {
		return domain.XPResult{}, txErr("add xp", err)
	}
	l.observe(userID, amount, reason, res)
	return res, nil
}

// award runs inside a caller's transaction. The caller holds the user lock.
func (l *LevelService) award(ctx context.Context, q *sqlite.Queries, userID string, amount int64, reason string) (domain.XPResult, error) {
	current, err := q.GetUserLevel(ctx, userID)
	if err != nil {
		return domain.XPResult{}, storeErr("get user level", err)
	}
	if current == nil {
		fresh := levelFor(userID, 0)
		current = &fresh
	}

	inserted, err := q.InsertXPEvent(ctx, domain.XPEvent{
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: l.now(),
	})
	if err != nil {
		return domain.XPResult{}, storeErr("insert xp event", err)
	}
	if !inserted {
		return domain.XPResult{
			NewLevel:  current.Level,
			NewXP:     current.TotalXP,
			Duplicate: true,
		}, nil
	}

	if amount > math.MaxInt64-current.TotalXP {
		return domain.XPResult{}, domain.ErrInvalidAmount
	}
	next := levelFor(userID, current.TotalXP+amount)
	if err := q.UpsertUserLevel(ctx, next); err != nil {
		return domain.XPResult{}, storeErr("upsert user level", err)
	}

	return domain.XPResult{
		LeveledUp: next.Level > current.Level,
		NewLevel:  next.Level,
		NewXP:     next.TotalXP,
	}, nil
}

// observe records metrics and logs for a committed award.
func (l *LevelService) observe(userID string, amount int64, reason string, res domain.XPResult) {
	if res.Duplicate {
		metrics.XPDuplicates.Inc()
		return
	}
	source, _, _ := strings.Cut(reason, ":")
	metrics.XPAwarded.WithLabelValues(source).Add(float64(amount))
	if res.LeveledUp {
		metrics.LevelUps.WithLabelValues(strconv.Itoa(res.NewLevel)).Inc()
		l.log.WithFields(logrus.Fields{
			"user":  userID,
			"level": res.NewLevel,
		}).Info("Level up")
	}
}

// GetUserXP returns the user's progression summary. A user with no XP is
// reported at level 1.
func (l *LevelService) GetUserXP(ctx context.Context, userID string) (domain.XPSummary, error) {
	row, err := l.db.GetUserLevel(ctx, userID)
	if err != nil {
		return domain.XPSummary{}, storeErr("get user level", err)
	}
	var total int64
	if row != nil {
		total = row.TotalXP
	}
	lvl := levelFor(userID, total)
	return domain.XPSummary{
		Level:         lvl.Level,
		XP:            lvl.XP,
		TotalXP:       lvl.TotalXP,
		Title:         lvl.Title,
		XPToNextLevel: XPToNextLevel(total),
	}, nil
}

// RecentXP returns the latest ledger entries for a user.
func (l *LevelService) RecentXP(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	events, err := l.db.ListXPEvents(ctx, userID, limit)
	if err != nil {
		return nil, storeErr("list xp events", err)
	}
	return events, nil
}
