package engagement

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

const (
	// DefaultCommitPageSize is used when a caller asks for no page size.
	DefaultCommitPageSize = 20
	// MaxCommitPageSize caps one page of the commit list.
	MaxCommitPageSize = 100

	topWordCount = 20
)

// Words too common in commit messages to say anything about the work.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by from
		fix add update remove delete create modify change refactor wip feat chore style
		test docs build ci perf revert init impl use`) {
		stopWords[w] = struct{}{}
	}
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s]+`)

// ListCommits returns page page (1-based) of the user's commits, newest
// first. limit is capped at MaxCommitPageSize.
func (s *StatsService) ListCommits(ctx context.Context, userID string, page, limit int) (domain.CommitPage, error) {
	if page < 1 || limit < 1 {
		return domain.CommitPage{}, fmt.Errorf("page and limit must be positive: %w", domain.ErrInvalidInput)
	}
	if limit > MaxCommitPageSize {
		limit = MaxCommitPageSize
	}

	total, err := s.db.CountCommits(ctx, userID)
	if err != nil {
		return domain.CommitPage{}, storeErr("count commits", err)
	}
	entries, err := s.db.ListCommits(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return domain.CommitPage{}, storeErr("list commits", err)
	}
	if entries == nil {
		entries = []domain.CommitEntry{}
	}
	return domain.CommitPage{
		Commits:    entries,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// periodStart returns the first instant a period covers.
func (s *StatsService) periodStart(period domain.InsightPeriod, now time.Time) (time.Time, error) {
	lt := now.In(s.cal.Location())
	switch period {
	case domain.PeriodWeek:
		return now.Add(-7 * 24 * time.Hour), nil
	case domain.PeriodMonth:
		return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, s.cal.Location()), nil
	case domain.PeriodYear:
		return time.Date(lt.Year(), time.January, 1, 0, 0, 0, 0, s.cal.Location()), nil
	case domain.PeriodAll:
		return time.Unix(0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown period %q: %w", period, domain.ErrInvalidInput)
}

// Insights breaks the user's commits over a period down by hour of day,
// weekday, repository and message vocabulary. An empty period is PeriodAll.
func (s *StatsService) Insights(ctx context.Context, userID string, period domain.InsightPeriod) (domain.Insights, error) {
	if period == "" {
		period = domain.PeriodAll
	}
	now := s.now()
	from, err := s.periodStart(period, now)
	if err != nil {
		return domain.Insights{}, err
	}
	_, to := s.cal.DailyWindow(now)

	commits, err := s.db.CommitsBetween(ctx, userID, from, to)
	if err != nil {
		return domain.Insights{}, storeErr("load commits", err)
	}
	repos, err := s.db.ListTrackedRepos(ctx, userID)
	if err != nil {
		return domain.Insights{}, storeErr("list tracked repos", err)
	}
	names := make(map[string]string, len(repos))
	for _, r := range repos {
		names[r.ID] = r.RepoName
	}

	out := domain.Insights{
		Period:       period,
		TotalCommits: len(commits),
		Repos:        []domain.RepoShare{},
		TopWords:     []domain.WordCount{},
	}
	if len(commits) == 0 {
		return out, nil
	}

	shares := make(map[string]*domain.RepoShare)
	words := make(map[string]int)
	for i, c := range commits {
		out.Hours[s.cal.Hour(c.CommittedAt)]++
		out.Weekdays[s.cal.Weekday(c.CommittedAt)]++
		out.Additions += int64(c.Additions)
		out.Deletions += int64(c.Deletions)

		name, ok := names[c.RepoID]
		if !ok {
			name = "Unknown"
		}
		sh := shares[name]
		if sh == nil {
			sh = &domain.RepoShare{Name: name}
			shares[name] = sh
		}
		sh.Commits++
		sh.Additions += int64(c.Additions)
		sh.Deletions += int64(c.Deletions)

		for _, w := range strings.Fields(nonWord.ReplaceAllString(strings.ToLower(c.Message), "")) {
			if _, common := stopWords[w]; len(w) > 2 && !common {
				words[w]++
			}
		}

		// Commits come back oldest first.
		if i > 0 {
			gap := int(math.Round(c.CommittedAt.Sub(commits[i-1].CommittedAt).Hours() / 24))
			if gap > out.LongestGapDays {
				out.LongestGapDays = gap
			}
		}
	}

	for _, sh := range shares {
		out.Repos = append(out.Repos, *sh)
	}
	sort.Slice(out.Repos, func(i, j int) bool {
		if out.Repos[i].Commits != out.Repos[j].Commits {
			return out.Repos[i].Commits > out.Repos[j].Commits
		}
		return out.Repos[i].Name < out.Repos[j].Name
	})

	for w, n := range words {
		out.TopWords = append(out.TopWords, domain.WordCount{Word: w, Count: n})
	}
	sort.Slice(out.TopWords, func(i, j int) bool {
		if out.TopWords[i].Count != out.TopWords[j].Count {
			return out.TopWords[i].Count > out.TopWords[j].Count
		}
		return out.TopWords[i].Word < out.TopWords[j].Word
	})
	if len(out.TopWords) > topWordCount {
		out.TopWords = out.TopWords[:topWordCount]
	}

	out.BestHour = argmax(out.Hours[:])
	out.BestDay = time.Weekday(argmax(out.Weekdays[:])).String()[:3]

	out.DaysSpan = int(math.Ceil(now.Sub(commits[0].CommittedAt).Hours() / 24))
	if out.DaysSpan < 1 {
		out.DaysSpan = 1
	}
	out.AvgPerDay = math.Round(float64(len(commits))/float64(out.DaysSpan)*10) / 10
	return out, nil
}

// argmax returns the index of the largest count, the earliest on ties.
func argmax(counts []int) int {
	best := 0
	for i, n := range counts {
		if n > counts[best] {
			best = i
		}
	}
	return best
}
