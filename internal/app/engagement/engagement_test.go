package engagement_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gitquest/gitquest/internal/app/engagement"
	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

var (
	cal = engagement.NewCalendar(7 * time.Hour)
	// Wednesday noon in the canonical timezone.
	testNow = time.Date(2025, 7, 9, 12, 0, 0, 0, cal.Location())
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// clock is a settable time source shared with the engine.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// testEngine returns a seeded engine over a fresh database.
func testEngine(t *testing.T, now time.Time) (*engagement.Engine, *sqlite.DB, *clock) {
	t.Helper()
	db := testDB(t)
	clk := &clock{t: now}
	e := engagement.New(db, engagement.Config{
		Calendar: cal,
		Clock:    clk.Now,
		Seed:     42,
	})
	if err := e.Achievements.Seed(context.Background()); err != nil {
		t.Fatalf("seed achievements: %v", err)
	}
	return e, db, clk
}

func trackRepo(t *testing.T, e *engagement.Engine, userID, externalID string) domain.TrackedRepo {
	t.Helper()
	repo, _, err := e.Repos.TrackRepo(context.Background(), userID, domain.ProviderGitHub, externalID, "repo-"+externalID)
	if err != nil {
		t.Fatalf("track repo: %v", err)
	}
	return repo
}

func commitAt(sha string, at time.Time, additions, deletions int, msg string) domain.CommitInput {
	return domain.CommitInput{
		SHA:         sha,
		Message:     msg,
		CommittedAt: at,
		Branch:      "main",
		Additions:   additions,
		Deletions:   deletions,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func daysAgo(n int, hour int) time.Time {
	d := testNow.AddDate(0, 0, -n)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, cal.Location())
}

func TestStreak_Empty(t *testing.T) {
	s := engagement.CalculateStreak(nil, testNow, cal)
	if s.Current != 0 || s.Longest != 0 {
		t.Errorf("expected {0,0}, got {%d,%d}", s.Current, s.Longest)
	}
}

func TestStreak_OnlyThreeDaysAgo(t *testing.T) {
	s := engagement.CalculateStreak([]time.Time{daysAgo(3, 10)}, testNow, cal)
	if s.Current != 0 {
		t.Errorf("expected current 0, got %d", s.Current)
	}
	if s.Longest != 1 {
		t.Errorf("expected longest 1, got %d", s.Longest)
	}
}

func TestStreak_SingleDay(t *testing.T) {
	tests := []struct {
		ago     int
		current int
	}{
		{0, 1},
		{1, 1},
		{2, 0},
	}
	for _, tt := range tests {
		s := engagement.CalculateStreak([]time.Time{daysAgo(tt.ago, 10)}, testNow, cal)
		if s.Current != tt.current || s.Longest != 1 {
			t.Errorf("%d days ago: expected {%d,1}, got {%d,%d}", tt.ago, tt.current, s.Current, s.Longest)
		}
	}
}

func TestStreak_ThreeConsecutiveEndingToday(t *testing.T) {
	instants := []time.Time{daysAgo(0, 9), daysAgo(1, 9), daysAgo(2, 9)}
	s := engagement.CalculateStreak(instants, testNow, cal)
	if s.Current != 3 || s.Longest != 3 {
		t.Errorf("expected {3,3}, got {%d,%d}", s.Current, s.Longest)
	}
}

func TestStreak_EndingYesterday(t *testing.T) {
	instants := []time.Time{daysAgo(1, 9), daysAgo(2, 9), daysAgo(3, 9), daysAgo(4, 9)}
	s := engagement.CalculateStreak(instants, testNow, cal)
	if s.Current != 4 || s.Longest != 4 {
		t.Errorf("expected {4,4}, got {%d,%d}", s.Current, s.Longest)
	}
}

func TestStreak_GapBreaksRun(t *testing.T) {
	instants := []time.Time{daysAgo(0, 9), daysAgo(1, 9), daysAgo(5, 9), daysAgo(6, 9)}
	s := engagement.CalculateStreak(instants, testNow, cal)
	if s.Current != 2 || s.Longest != 2 {
		t.Errorf("expected {2,2}, got {%d,%d}", s.Current, s.Longest)
	}
}

func TestStreak_LongestInPast(t *testing.T) {
	var instants []time.Time
	for i := 10; i < 15; i++ {
		instants = append(instants, daysAgo(i, 12))
	}
	instants = append(instants, daysAgo(0, 12))
	s := engagement.CalculateStreak(instants, testNow, cal)
	if s.Current != 1 || s.Longest != 5 {
		t.Errorf("expected {1,5}, got {%d,%d}", s.Current, s.Longest)
	}
}

func TestStreak_DuplicatesAndOrderIgnored(t *testing.T) {
	base := []time.Time{daysAgo(0, 9), daysAgo(1, 9), daysAgo(2, 9), daysAgo(7, 9)}
	want := engagement.CalculateStreak(base, testNow, cal)

	noisy := append([]time.Time{}, base...)
	noisy = append(noisy, daysAgo(0, 20), daysAgo(1, 1), daysAgo(2, 23), daysAgo(7, 0))
	r := rand.New(rand.NewSource(7))
	r.Shuffle(len(noisy), func(i, j int) { noisy[i], noisy[j] = noisy[j], noisy[i] })

	got := engagement.CalculateStreak(noisy, testNow, cal)
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestStreak_CanonicalTimezoneBoundary(t *testing.T) {
	// 18:30 UTC on the 8th is 01:30 on the 9th at UTC+7.
	late := time.Date(2025, 7, 8, 18, 30, 0, 0, time.UTC)
	s := engagement.CalculateStreak([]time.Time{late, daysAgo(1, 12)}, testNow, cal)
	if s.Current != 2 {
		t.Errorf("expected current 2 across the UTC boundary, got %d", s.Current)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Calendar Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestCalendar_Windows(t *testing.T) {
	from, to := cal.DailyWindow(testNow)
	if !from.Equal(time.Date(2025, 7, 9, 0, 0, 0, 0, cal.Location())) {
		t.Errorf("unexpected daily start %v", from)
	}
	if to.Sub(from) != 24*time.Hour {
		t.Errorf("expected 24h daily window, got %v", to.Sub(from))
	}

	wfrom, wto := cal.WeeklyWindow(testNow)
	if wfrom.Weekday() != time.Sunday {
		t.Errorf("expected week to start on Sunday, got %v", wfrom.Weekday())
	}
	if !wfrom.Equal(time.Date(2025, 7, 6, 0, 0, 0, 0, cal.Location())) {
		t.Errorf("unexpected weekly start %v", wfrom)
	}
	if wto.Sub(wfrom) != 7*24*time.Hour {
		t.Errorf("expected 7 day window, got %v", wto.Sub(wfrom))
	}
}

func TestCalendar_WeeklyWindowOnSunday(t *testing.T) {
	sunday := time.Date(2025, 7, 6, 0, 30, 0, 0, cal.Location())
	from, _ := cal.WeeklyWindow(sunday)
	if !from.Equal(time.Date(2025, 7, 6, 0, 0, 0, 0, cal.Location())) {
		t.Errorf("sunday should open its own week, got %v", from)
	}
}

func TestParseUTCOffset(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"+07:00", 7 * time.Hour, true},
		{"-05:30", -(5*time.Hour + 30*time.Minute), true},
		{"Z", 0, true},
		{"", 0, true},
		{" +05:45 ", 5*time.Hour + 45*time.Minute, true},
		{"-00:00", 0, true},
		{"+14:00", 14 * time.Hour, true},
		{"-12:00", -12 * time.Hour, true},
		{"07:00", 0, false},
		{"+7", 0, false},
		{"+0700", 0, false},
		{"+07:00Z", 0, false},
		{"+15:00", 0, false},
		{"+07:75", 0, false},
		{"UTC+7", 0, false},
	}
	for _, tt := range tests {
		got, err := engagement.ParseUTCOffset(tt.in)
		if tt.ok && err != nil {
			t.Errorf("ParseUTCOffset(%q) error: %v", tt.in, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseUTCOffset(%q) should fail", tt.in)
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseUTCOffset(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatUTCOffset(t *testing.T) {
	if got := engagement.FormatUTCOffset(7 * time.Hour); got != "UTC+07:00" {
		t.Errorf("expected UTC+07:00, got %s", got)
	}
	if got := engagement.FormatUTCOffset(-(3*time.Hour + 30*time.Minute)); got != "UTC-03:30" {
		t.Errorf("expected UTC-03:30, got %s", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Model Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestXPForCommit_Tiers(t *testing.T) {
	tests := []struct {
		add, del int
		want     int64
	}{
		{0, 0, 10},
		{100, 0, 10},
		{101, 0, 15},
		{300, 200, 15},
		{501, 0, 25},
		{1000, 0, 25},
		{1001, 0, 40},
		{600, 500, 40},
	}
	for _, tt := range tests {
		if got := engagement.XPForCommit(tt.add, tt.del); got != tt.want {
			t.Errorf("XPForCommit(%d,%d) = %d, want %d", tt.add, tt.del, got, tt.want)
		}
	}
}

func TestLevelFromTotalXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{250000, 20},
		{499999, 20},
		{500000, 25},
		{4999999, 30},
		{10000000, 100},
		{math.MaxInt64, 100},
	}
	for _, tt := range tests {
		if got := engagement.LevelFromTotalXP(tt.xp); got != tt.want {
			t.Errorf("LevelFromTotalXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestLevelFromTotalXP_Monotonic(t *testing.T) {
	prev := engagement.LevelFromTotalXP(0)
	for xp := int64(0); xp <= 11_000_000; xp += 997 {
		lvl := engagement.LevelFromTotalXP(xp)
		if lvl < prev {
			t.Fatalf("level decreased at xp=%d: %d < %d", xp, lvl, prev)
		}
		if lvl > engagement.MaxLevel {
			t.Fatalf("level %d above max at xp=%d", lvl, xp)
		}
		prev = lvl
	}
	// Titles only ever move forward through the table.
	seen := map[string]int{}
	last := ""
	for lvl := 1; lvl <= 120; lvl++ {
		title := engagement.TitleForLevel(lvl)
		if title != last {
			if _, dup := seen[title]; dup {
				t.Fatalf("title %q reappeared at level %d", title, lvl)
			}
			seen[title] = lvl
			last = title
		}
	}
}

func TestLevel_RoundTrip(t *testing.T) {
	for _, lvl := range []int{1, 2, 3, 10, 19, 20, 25, 30, 50, 100} {
		req := engagement.RequiredXPForLevel(lvl)
		if got := engagement.LevelFromTotalXP(req); got < lvl {
			t.Errorf("LevelFromTotalXP(RequiredXPForLevel(%d)=%d) = %d", lvl, req, got)
		}
	}
}

func TestRequiredXPForLevel(t *testing.T) {
	if got := engagement.RequiredXPForLevel(1); got != 0 {
		t.Errorf("level 1 should need 0, got %d", got)
	}
	if got := engagement.RequiredXPForLevel(20); got != 250000 {
		t.Errorf("level 20 should need 250000, got %d", got)
	}
	// Between breakpoints a level is reached with the next breakpoint.
	if got := engagement.RequiredXPForLevel(21); got != 500000 {
		t.Errorf("level 21 should need 500000, got %d", got)
	}
	if got := engagement.RequiredXPForLevel(101); got != math.MaxInt64 {
		t.Errorf("level 101 should saturate, got %d", got)
	}
	prev := int64(0)
	for lvl := 1; lvl <= 150; lvl++ {
		req := engagement.RequiredXPForLevel(lvl)
		if req < prev {
			t.Fatalf("requirement decreased at level %d", lvl)
		}
		prev = req
	}
}

func TestTitleForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  string
	}{
		{0, "Code Novice"},
		{1, "Code Novice"},
		{2, "App Developer"},
		{21, "Master Coder"},
		{24, "Master Coder"},
		{25, "Elite Developer"},
		{99, "Code Immortal"},
		{100, "Commit God"},
		{150, "Commit God"},
	}
	for _, tt := range tests {
		if got := engagement.TitleForLevel(tt.level); got != tt.want {
			t.Errorf("TitleForLevel(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestXPToNextLevel(t *testing.T) {
	if got := engagement.XPToNextLevel(0); got != 100 {
		t.Errorf("expected 100 to level 2, got %d", got)
	}
	if got := engagement.XPToNextLevel(250000); got != 250000 {
		t.Errorf("expected 250000 from level 20, got %d", got)
	}
	if got := engagement.XPToNextLevel(10000000); got != 0 {
		t.Errorf("expected 0 at max level, got %d", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Ledger Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestAddXP_CreatesLevelRow(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()

	res, err := e.Levels.AddXP(ctx, "u1", 150, "grant:a")
	if err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if !res.LeveledUp || res.NewLevel != 2 || res.NewXP != 150 {
		t.Errorf("unexpected result %+v", res)
	}

	sum, err := e.Levels.GetUserXP(ctx, "u1")
	if err != nil {
		t.Fatalf("get xp: %v", err)
	}
	if sum.Level != 2 || sum.TotalXP != 150 || sum.XP != 50 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.Title != "App Developer" {
		t.Errorf("expected App Developer, got %s", sum.Title)
	}
	if sum.XPToNextLevel != 100 {
		t.Errorf("expected 100 to next level, got %d", sum.XPToNextLevel)
	}
}

func TestAddXP_NoLevelUp(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()

	res, err := e.Levels.AddXP(ctx, "u1", 40, "grant:a")
	if err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if res.LeveledUp || res.NewLevel != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAddXP_DuplicateReason(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()

	if _, err := e.Levels.AddXP(ctx, "u1", 80, "commit:abc"); err != nil {
		t.Fatalf("add xp: %v", err)
	}
	res, err := e.Levels.AddXP(ctx, "u1", 80, "commit:abc")
	if err != nil {
		t.Fatalf("add xp again: %v", err)
	}
	if !res.Duplicate {
		t.Error("expected duplicate flag on replayed reason")
	}
	if res.NewXP != 80 {
		t.Errorf("expected total unchanged at 80, got %d", res.NewXP)
	}

	// Same reason for another user is a separate award.
	if res, _ := e.Levels.AddXP(ctx, "u2", 80, "commit:abc"); res.Duplicate {
		t.Error("reasons are scoped per user")
	}
}

func TestAddXP_InvalidAmount(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	for _, amt := range []int64{0, -5} {
		_, err := e.Levels.AddXP(context.Background(), "u1", amt, "grant:x")
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
}

func TestAddXP_MissingReason(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	_, err := e.Levels.AddXP(context.Background(), "u1", 10, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetUserXP_Unknown(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	sum, err := e.Levels.GetUserXP(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get xp: %v", err)
	}
	if sum.Level != 1 || sum.TotalXP != 0 || sum.Title != "Code Novice" || sum.XPToNextLevel != 100 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestAddXP_Concurrent(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := e.Levels.AddXP(ctx, "u1", 25, fmt.Sprintf("grant:%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add: %v", err)
	}

	sum, _ := e.Levels.GetUserXP(ctx, "u1")
	if sum.TotalXP != 1000 {
		t.Errorf("expected 1000 total, got %d", sum.TotalXP)
	}
	if sum.Level != 5 {
		t.Errorf("expected level 5, got %d", sum.Level)
	}
}

func TestAddXP_PersistenceFailure(t *testing.T) {
	e, db, _ := testEngine(t, testNow)
	db.Close()

	_, err := e.Levels.AddXP(context.Background(), "u1", 10, "grant:x")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestRecentXP(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.Levels.AddXP(ctx, "u1", int64(10*(i+1)), fmt.Sprintf("grant:%d", i))
	}
	events, err := e.Levels.RecentXP(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("recent xp: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Reason != "grant:2" || events[0].Amount != 30 {
		t.Errorf("expected newest first, got %+v", events[0])
	}
}
