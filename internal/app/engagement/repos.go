package engagement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
	"github.com/gitquest/gitquest/internal/security"
)

// RepoService manages connected accounts and tracked repositories.
// Linking and tracking re-evaluate achievements; untracking recomputes
// stats over the commits that remain.
type RepoService struct {
	db           *sqlite.DB
	levels       *LevelService
	stats        *StatsService
	achievements *AchievementService
	now          func() time.Time
	log          logrus.FieldLogger
}

// NewRepoService creates a repo service.
func NewRepoService(db *sqlite.DB, levels *LevelService, stats *StatsService, achievements *AchievementService, cfg Config) *RepoService {
	cfg = cfg.withDefaults()
	return &RepoService{
		db:           db,
		levels:       levels,
		stats:        stats,
		achievements: achievements,
		now:          cfg.Clock,
		log:          cfg.Logger.WithField("component", "repos"),
	}
}

func validProvider(p domain.Provider) bool {
	return p == domain.ProviderGitHub || p == domain.ProviderGitLab
}

// LinkAccount connects a provider account to a user and returns any
// achievements the new connection unlocks.
func (r *RepoService) LinkAccount(ctx context.Context, userID string, provider domain.Provider, accountID string) (domain.Account, []domain.UnlockEvent, error) {
	if userID == "" || strings.TrimSpace(accountID) == "" || !validProvider(provider) {
		return domain.Account{}, nil, domain.ErrInvalidInput
	}
	acct := domain.Account{
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: accountID,
		LinkedAt:          r.now(),
	}
	if err := r.db.LinkAccount(ctx, acct); err != nil {
		return domain.Account{}, nil, storeErr("link account", err)
	}
	unlocked, err := r.checkAchievements(ctx, userID)
	if err != nil {
		return domain.Account{}, nil, err
	}
	return acct, unlocked, nil
}

// UnlinkAccount disconnects a provider account. Repositories and
// achievements earned through it are kept.
func (r *RepoService) UnlinkAccount(ctx context.Context, userID string, provider domain.Provider, accountID string) error {
	if userID == "" || accountID == "" || !validProvider(provider) {
		return domain.ErrInvalidInput
	}
	removed, err := r.db.DeleteAccount(ctx, userID, provider, accountID)
	if err != nil {
		return storeErr("delete account", err)
	}
	if !removed {
		return fmt.Errorf("%s account %q: %w", provider, accountID, domain.ErrNotFound)
	}
	r.log.WithFields(logrus.Fields{
		"user":     userID,
		"provider": provider,
	}).Info("Account unlinked")
	return nil
}

// TrackRepo starts counting commits of a repository for a user. A fresh
// webhook secret is generated; tracking the same repository twice returns
// the existing entry and unlocks nothing.
func (r *RepoService) TrackRepo(ctx context.Context, userID string, provider domain.Provider, externalID, name string) (domain.TrackedRepo, []domain.UnlockEvent, error) {
	if userID == "" || externalID == "" || !validProvider(provider) {
		return domain.TrackedRepo{}, nil, domain.ErrInvalidInput
	}
	secret, err := security.GenerateSecret(32)
	if err != nil {
		return domain.TrackedRepo{}, nil, err
	}
	if name == "" {
		name = externalID
	}

	repo := domain.TrackedRepo{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       provider,
		ExternalRepoID: externalID,
		RepoName:       name,
		WebhookSecret:  secret,
		IsActive:       true,
		CreatedAt:      r.now(),
	}
	inserted, err := r.db.InsertTrackedRepo(ctx, repo)
	if err != nil {
		return domain.TrackedRepo{}, nil, storeErr("insert tracked repo", err)
	}
	if !inserted {
		repos, err := r.db.ListTrackedRepos(ctx, userID)
		if err != nil {
			return domain.TrackedRepo{}, nil, storeErr("list tracked repos", err)
		}
		for _, existing := range repos {
			if existing.Provider == provider && existing.ExternalRepoID == externalID {
				return existing, []domain.UnlockEvent{}, nil
			}
		}
		return domain.TrackedRepo{}, nil, fmt.Errorf("tracked repo vanished: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"user":     userID,
		"provider": provider,
		"repo":     name,
	}).Info("Repository tracked")

	unlocked, err := r.checkAchievements(ctx, userID)
	if err != nil {
		return domain.TrackedRepo{}, nil, err
	}
	return repo, unlocked, nil
}

// UntrackRepo stops tracking a repository. Its stored commits are deleted
// with it and the user's stats are recomputed from what remains. XP already
// paid for those commits is kept.
func (r *RepoService) UntrackRepo(ctx context.Context, userID, repoID string) error {
	if userID == "" || repoID == "" {
		return domain.ErrInvalidInput
	}

	// Serialized with ingest for the same user.
	unlock := r.levels.locks.lock(userID)
	removed, err := r.db.DeleteTrackedRepo(ctx, userID, repoID)
	unlock()
	if err != nil {
		return storeErr("delete tracked repo", err)
	}
	if !removed {
		return fmt.Errorf("repo %q: %w", repoID, domain.ErrNotFound)
	}

	if _, err := r.stats.UpdateUserStats(ctx, userID); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"user": userID,
		"repo": repoID,
	}).Info("Repository untracked")
	return nil
}

// checkAchievements never returns a nil slice so callers can render it.
func (r *RepoService) checkAchievements(ctx context.Context, userID string) ([]domain.UnlockEvent, error) {
	unlocked, err := r.achievements.CheckAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	if unlocked == nil {
		unlocked = []domain.UnlockEvent{}
	}
	return unlocked, nil
}

// ListRepos returns the user's tracked repositories.
func (r *RepoService) ListRepos(ctx context.Context, userID string) ([]domain.TrackedRepo, error) {
	repos, err := r.db.ListTrackedRepos(ctx, userID)
	if err != nil {
		return nil, storeErr("list tracked repos", err)
	}
	if repos == nil {
		repos = []domain.TrackedRepo{}
	}
	return repos, nil
}

// FindByExternal resolves a webhook delivery to the tracked repository.
func (r *RepoService) FindByExternal(ctx context.Context, provider domain.Provider, externalID string) (domain.TrackedRepo, error) {
	repo, err := r.db.FindTrackedRepo(ctx, provider, externalID)
	if err != nil {
		return domain.TrackedRepo{}, storeErr("find tracked repo", err)
	}
	if repo == nil {
		return domain.TrackedRepo{}, domain.ErrUnknownRepo
	}
	return *repo, nil
}
