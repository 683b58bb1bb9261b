package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

func TestRenderBar(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "[" + strings.Repeat(".", barWidth) + "]"},
		{50, "[" + strings.Repeat("=", 14) + ">" + strings.Repeat(".", 15) + "]"},
		{100, "[" + strings.Repeat("=", barWidth) + "]"},
	}
	for _, tt := range tests {
		got := renderBar(tt.pct)
		if got != tt.want {
			t.Errorf("renderBar(%v) = %q, want %q", tt.pct, got, tt.want)
		}
		if len(got) != barWidth+2 {
			t.Errorf("renderBar(%v) width = %d", tt.pct, len(got))
		}
	}
}

func TestLevelPercent(t *testing.T) {
	tests := []struct {
		name string
		sum  domain.XPSummary
		want float64
	}{
		{"fresh", domain.XPSummary{Level: 1, XP: 0, XPToNextLevel: 100}, 0},
		{"halfway", domain.XPSummary{Level: 2, XP: 75, XPToNextLevel: 75}, 50},
		{"max level", domain.XPSummary{Level: 100, XP: 0, XPToNextLevel: 0}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelPercent(tt.sum); got != tt.want {
				t.Errorf("levelPercent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelBar(t *testing.T) {
	got := levelBar(domain.XPSummary{Level: 3, XP: 40, XPToNextLevel: 60})
	if !strings.HasSuffix(got, "40% | 40 / 100 XP to level 4") {
		t.Errorf("unexpected bar %q", got)
	}
	got = levelBar(domain.XPSummary{Level: 100})
	if !strings.HasSuffix(got, "max level") {
		t.Errorf("unexpected max-level bar %q", got)
	}
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	ov := domain.StatsOverview{
		UserStats: domain.UserStats{
			CurrentStreak:  4,
			LongestStreak:  9,
			TotalCommits:   42,
			LastCommitDate: time.Date(2025, 7, 9, 10, 30, 0, 0, time.UTC),
		},
		TodayCommits:         2,
		Level:                domain.XPSummary{Level: 3, Title: "Code Apprentice", TotalXP: 300, XP: 50, XPToNextLevel: 100},
		AchievementsUnlocked: 3,
		AchievementsTotal:    12,
		Additions:            1200,
		Deletions:            300,
	}
	printStatus(&buf, "u1", ov)
	out := buf.String()
	for _, want := range []string{
		"Level:         3 (Code Apprentice)",
		"Streak:        4 days (longest 9)",
		"Commits:       42 total, 2 today",
		"Lines:         +1200 / -300",
		"Achievements:  3 / 12",
		"Last commit:   2025-07-09 10:30",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintAchievements(t *testing.T) {
	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	list := []domain.AchievementStatus{
		{Achievement: domain.Achievement{Slug: "commits-1", Name: "First Blood", Category: domain.CategoryVolume, Rarity: domain.RarityCommon, XPReward: 10}, IsUnlocked: true, UnlockedAt: &at},
		{Achievement: domain.Achievement{Slug: "streak-100", Name: "Centurion", Category: domain.CategoryStreak, Rarity: domain.RarityLegendary, XPReward: 1000}},
	}
	var buf bytes.Buffer
	if err := printAchievements(&buf, list); err != nil {
		t.Fatalf("print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "2025-07-01 08:00") {
		t.Errorf("unlocked row missing timestamp: %q", lines[1])
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[2]), "-") {
		t.Errorf("locked row should end with '-': %q", lines[2])
	}
}
