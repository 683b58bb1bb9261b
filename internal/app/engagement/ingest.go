package engagement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/metrics"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

// IngestService stores new commits and runs the progression pipeline:
// per-commit XP, then stats, then achievements.
type IngestService struct {
	db           *sqlite.DB
	levels       *LevelService
	stats        *StatsService
	achievements *AchievementService
	log          logrus.FieldLogger
}

// NewIngestService creates an ingest service.
func NewIngestService(db *sqlite.DB, levels *LevelService, stats *StatsService, achievements *AchievementService, cfg Config) *IngestService {
	cfg = cfg.withDefaults()
	return &IngestService{
		db:           db,
		levels:       levels,
		stats:        stats,
		achievements: achievements,
		log:          cfg.Logger.WithField("component", "ingest"),
	}
}

type commitAward struct {
	reason string
	amount int64
	res    domain.XPResult
}

// Ingest stores commits for a tracked repository. Commits already stored
// for the repository are counted as duplicates and earn nothing. Each new
// commit earns XPForCommit exactly once.
func (s *IngestService) Ingest(ctx context.Context, userID, repoID string, commits []domain.CommitInput) (domain.IngestResult, error) {
	repo, err := s.db.GetTrackedRepo(ctx, repoID)
	if err != nil {
		return domain.IngestResult{}, storeErr("get tracked repo", err)
	}
	if repo == nil || repo.UserID != userID || !repo.IsActive {
		return domain.IngestResult{}, domain.ErrUnknownRepo
	}
	for i, c := range commits {
		if c.SHA == "" || c.CommittedAt.IsZero() {
			return domain.IngestResult{}, fmt.Errorf("commit %d: %w: sha and timestamp are required", i, domain.ErrInvalidInput)
		}
	}

	result, awards, err := s.store(ctx, userID, *repo, commits)
	if err != nil {
		return domain.IngestResult{}, err
	}
	for _, a := range awards {
		s.levels.observe(userID, a.amount, a.reason, a.res)
	}
	metrics.CommitsIngested.WithLabelValues(string(repo.Provider)).Add(float64(result.Stored))
	metrics.CommitsDuplicate.WithLabelValues(string(repo.Provider)).Add(float64(result.Duplicates))

	if _, err := s.stats.UpdateUserStats(ctx, userID); err != nil {
		return domain.IngestResult{}, err
	}
	unlocked, rewards, err := s.achievements.check(ctx, userID)
	if err != nil {
		return domain.IngestResult{}, err
	}
	result.Unlocked = unlocked
	if result.Unlocked == nil {
		result.Unlocked = []domain.UnlockEvent{}
	}
	if rewards.NewLevel > 0 {
		result.NewLevel = rewards.NewLevel
		result.LeveledUp = result.LeveledUp || rewards.LeveledUp
	}

	s.log.WithFields(logrus.Fields{
		"user":       userID,
		"repo":       repo.RepoName,
		"stored":     result.Stored,
		"duplicates": result.Duplicates,
		"xp":         result.XPEarned,
		"unlocked":   len(result.Unlocked),
	}).Info("Commits ingested")
	return result, nil
}

// store inserts the batch and pays commit XP in one transaction. The
// result's LeveledUp and NewLevel come from the awards made under the lock.
func (s *IngestService) store(ctx context.Context, userID string, repo domain.TrackedRepo, commits []domain.CommitInput) (domain.IngestResult, []commitAward, error) {
	unlock := s.levels.locks.lock(userID)
	defer unlock()

	var (
		result domain.IngestResult
		awards []commitAward
	)
	err := s.db.InTx(ctx, func(q *sqlite.Queries) error {
		for _, in := range commits {
			c := domain.Commit{
				ID:          uuid.New().String(),
				UserID:      userID,
				RepoID:      repo.ID,
				Provider:    repo.Provider,
				SHA:         in.SHA,
				Message:     in.Message,
				CommittedAt: in.CommittedAt,
				Branch:      in.Branch,
				Additions:   in.Additions,
				Deletions:   in.Deletions,
			}
			inserted, err := q.InsertCommit(ctx, c)
			if err != nil {
				return storeErr("insert commit", err)
			}
			if !inserted {
				result.Duplicates++
				continue
			}
			result.Stored++

			amount := XPForCommit(c.Additions, c.Deletions)
			reason := "commit:" + c.ID
			res, err := s.levels.award(ctx, q, userID, amount, reason)
			if err != nil {
				return err
			}
			if err := q.MarkCommitXPAwarded(ctx, c.ID); err != nil {
				return storeErr("mark commit xp", err)
			}
			if !res.Duplicate {
				result.XPEarned += amount
			}
			result.LeveledUp = result.LeveledUp || res.LeveledUp
			awards = append(awards, commitAward{reason: reason, amount: amount, res: res})
		}

		current, err := q.GetUserLevel(ctx, userID)
		if err != nil {
			return storeErr("get user level", err)
		}
		result.NewLevel = 1
		if current != nil {
			result.NewLevel = current.Level
		}
		return nil
	})
	if err != nil {
		return domain.IngestResult{}, nil, txErr("ingest commits", err)
	}
	return result, awards, nil
}
