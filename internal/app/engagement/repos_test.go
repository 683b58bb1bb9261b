package engagement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gitquest/gitquest/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Repo / Account Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestTrackRepo_UnlocksFirstRepo(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()
	if _, err := e.Stats.UpdateUserStats(ctx, "u1"); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	_, events, err := e.Repos.TrackRepo(ctx, "u1", domain.ProviderGitHub, "1", "demo")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Pioneer" {
		t.Fatalf("expected Pioneer on first track, got %+v", events)
	}
	if !unlockedSlugs(t, e, "u1")["first-repo"] {
		t.Error("first-repo should be unlocked")
	}
	sum, _ := e.Levels.GetUserXP(ctx, "u1")
	if sum.TotalXP != 20 {
		t.Errorf("expected the 20 xp reward, got %d", sum.TotalXP)
	}

	_, events, err = e.Repos.TrackRepo(ctx, "u1", domain.ProviderGitHub, "1", "demo")
	if err != nil {
		t.Fatalf("track again: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("re-tracking should report an empty unlock list, got %#v", events)
	}
}

func TestTrackRepo_WithoutStatsUnlocksOnFirstIngest(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()

	repo, events, err := e.Repos.TrackRepo(ctx, "u1", domain.ProviderGitHub, "1", "demo")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("no stats row yet, expected no unlocks, got %+v", events)
	}

	res, err := e.Ingest.Ingest(ctx, "u1", repo.ID, []domain.CommitInput{commitAt("a", daysAgo(0, 10), 1, 0, "a")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	found := false
	for _, ev := range res.Unlocked {
		found = found || ev.Name == "Pioneer"
	}
	if !found {
		t.Errorf("expected Pioneer with the first ingest, got %+v", res.Unlocked)
	}
}

func TestLinkAccount_Invalid(t *testing.T) {
	e, _, _ := testEngine(t, testNow)
	ctx := context.Background()
	tests := []struct {
		name     string
		provider domain.Provider
		account  string
	}{
		{"empty account", domain.ProviderGitHub, "  "},
		{"unknown provider", domain.Provider("bitbucket"), "x"},
	}
	for _, tt := range tests {
		if _, _, err := e.Repos.LinkAccount(ctx, "u1", tt.provider, tt.account); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
	}
}

func TestUnlinkAccount(t *testing.T) {
	e, db, _ := testEngine(t, testNow)
	ctx := context.Background()
	e.Stats.UpdateUserStats(ctx, "u1")
	e.Repos.LinkAccount(ctx, "u1", domain.ProviderGitHub, "gh-1")
	e.Repos.LinkAccount(ctx, "u1", domain.ProviderGitLab, "gl-1")

	if err := e.Repos.UnlinkAccount(ctx, "u2", domain.ProviderGitLab, "gl-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("another user's unlink should be ErrNotFound, got %v", err)
	}
	if err := e.Repos.UnlinkAccount(ctx, "u1", domain.ProviderGitLab, "gl-1"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	providers, err := db.AccountProviders(ctx, "u1")
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	if len(providers) != 1 || providers[0] != domain.ProviderGitHub {
		t.Errorf("expected only github left, got %v", providers)
	}
	if !unlockedSlugs(t, e, "u1")["multi-platform"] {
		t.Error("unlinking must not revoke an earned achievement")
	}

	if err := e.Repos.UnlinkAccount(ctx, "u1", domain.ProviderGitLab, "gl-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second unlink should be ErrNotFound, got %v", err)
	}
}

func TestUntrackRepo(t *testing.T) {
	e, db, _ := testEngine(t, testNow)
	ctx := context.Background()
	keep := trackRepo(t, e, "u1", "keep")
	drop := trackRepo(t, e, "u1", "drop")
	e.Ingest.Ingest(ctx, "u1", keep.ID, []domain.CommitInput{commitAt("k1", daysAgo(3, 10), 1, 0, "k1")})
	e.Ingest.Ingest(ctx, "u1", drop.ID, []domain.CommitInput{
		commitAt("d1", daysAgo(1, 10), 1, 0, "d1"),
		commitAt("d2", daysAgo(0, 10), 1, 0, "d2"),
	})
	before, _ := e.Levels.GetUserXP(ctx, "u1")

	if err := e.Repos.UntrackRepo(ctx, "u2", drop.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("another user's untrack should be ErrNotFound, got %v", err)
	}
	if err := e.Repos.UntrackRepo(ctx, "u1", drop.ID); err != nil {
		t.Fatalf("untrack: %v", err)
	}

	n, err := db.CountCommits(ctx, "u1")
	if err != nil {
		t.Fatalf("count commits: %v", err)
	}
	if n != 1 {
		t.Errorf("expected the dropped repo's commits to cascade, %d left", n)
	}

	stats, err := db.GetUserStats(ctx, "u1")
	if err != nil || stats == nil {
		t.Fatalf("GetUserStats() = %v, %v", stats, err)
	}
	if stats.TotalCommits != 1 || stats.CurrentStreak != 0 || stats.LongestStreak != 1 {
		t.Errorf("stats not recomputed after untrack: %+v", stats)
	}
	if !stats.LastCommitDate.Equal(daysAgo(3, 10)) {
		t.Errorf("expected last commit %v, got %v", daysAgo(3, 10), stats.LastCommitDate)
	}

	after, _ := e.Levels.GetUserXP(ctx, "u1")
	if after.TotalXP != before.TotalXP {
		t.Errorf("untracking must keep earned xp: %d -> %d", before.TotalXP, after.TotalXP)
	}

	if _, err := e.Ingest.Ingest(ctx, "u1", drop.ID, []domain.CommitInput{commitAt("d3", daysAgo(0, 11), 1, 0, "d3")}); !errors.Is(err, domain.ErrUnknownRepo) {
		t.Errorf("ingest into an untracked repo should be ErrUnknownRepo, got %v", err)
	}
	if err := e.Repos.UntrackRepo(ctx, "u1", drop.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second untrack should be ErrNotFound, got %v", err)
	}
	if err := e.Repos.UntrackRepo(ctx, "u1", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty id should be ErrInvalidInput, got %v", err)
	}
}
