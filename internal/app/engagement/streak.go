// Package engagement implements the gitquest progression engine.
// Commits drive streaks, XP, levels, achievements and challenges.
package engagement

import (
	"sort"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

// CalculateStreak derives the current and longest streak from commit
// instants. Only the set of distinct calendar days matters.
//
// A current streak is alive while its newest day is today or yesterday.
// Days after today (clock skew on the provider side) are ignored for the
// current streak but still count toward the longest run.
func CalculateStreak(instants []time.Time, now time.Time, cal Calendar) domain.Streak {
	if len(instants) == 0 {
		return domain.Streak{}
	}

	seen := make(map[int64]struct{}, len(instants))
	for _, t := range instants {
		seen[cal.dayNumber(t)] = struct{}{}
	}

	days := make([]int64, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })

	var streak domain.Streak

	// Longest: newest to oldest, a run breaks on any gap over one day.
	run := 1
	streak.Longest = 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] == 1 {
			run++
		} else {
			run = 1
		}
		if run > streak.Longest {
			streak.Longest = run
		}
	}

	// Current: anchor at today, or yesterday when today has no commit.
	today := cal.dayNumber(now)
	cursor := today
	if _, ok := seen[cursor]; !ok {
		cursor = today - 1
	}
	for {
		if _, ok := seen[cursor]; !ok {
			break
		}
		streak.Current++
		cursor--
	}

	return streak
}
