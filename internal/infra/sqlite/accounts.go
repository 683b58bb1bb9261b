package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gitquest/gitquest/internal/domain"
)

// ─── Provider Accounts ──────────────────────────────────────────────────────

// LinkAccount records a connected provider account. Relinking is a no-op.
func (q *Queries) LinkAccount(ctx context.Context, a domain.Account) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO accounts (user_id, provider, provider_account_id, linked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, provider, provider_account_id) DO NOTHING`,
		a.UserID, string(a.Provider), a.ProviderAccountID, a.LinkedAt.Unix(),
	)
	return err
}

// DeleteAccount removes a connected provider account. Reports false when
// the user has no such account.
func (q *Queries) DeleteAccount(ctx context.Context, userID string, provider domain.Provider, accountID string) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`DELETE FROM accounts WHERE user_id = ? AND provider = ? AND provider_account_id = ?`,
		userID, string(provider), accountID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// AccountProviders returns the distinct providers a user has connected.
func (q *Queries) AccountProviders(ctx context.Context, userID string) ([]domain.Provider, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT DISTINCT provider FROM accounts WHERE user_id = ? ORDER BY provider`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		providers = append(providers, domain.Provider(p))
	}
	return providers, rows.Err()
}

// ─── Tracked Repositories ───────────────────────────────────────────────────

// InsertTrackedRepo adds a repository for a user. A second insert for the
// same (provider, external id, user) is ignored and reports false.
func (q *Queries) InsertTrackedRepo(ctx context.Context, r domain.TrackedRepo) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO tracked_repos (id, user_id, provider, external_repo_id, repo_name, webhook_secret, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider, external_repo_id, user_id) DO NOTHING`,
		r.ID, r.UserID, string(r.Provider), r.ExternalRepoID, r.RepoName,
		r.WebhookSecret, r.IsActive, r.CreatedAt.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// GetTrackedRepo returns a repository by id, or nil if absent.
func (q *Queries) GetTrackedRepo(ctx context.Context, id string) (*domain.TrackedRepo, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT id, user_id, provider, external_repo_id, repo_name, webhook_secret, is_active, created_at
		 FROM tracked_repos WHERE id = ?`, id,
	)
	r, err := scanTrackedRepo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// FindTrackedRepo returns the active repository registered for a provider's
// external repository id, or nil if none is tracked.
func (q *Queries) FindTrackedRepo(ctx context.Context, provider domain.Provider, externalID string) (*domain.TrackedRepo, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT id, user_id, provider, external_repo_id, repo_name, webhook_secret, is_active, created_at
		 FROM tracked_repos
		 WHERE provider = ? AND external_repo_id = ? AND is_active = 1
		 ORDER BY created_at LIMIT 1`,
		string(provider), externalID,
	)
	r, err := scanTrackedRepo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListTrackedRepos returns a user's repositories, oldest first.
func (q *Queries) ListTrackedRepos(ctx context.Context, userID string) ([]domain.TrackedRepo, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, user_id, provider, external_repo_id, repo_name, webhook_secret, is_active, created_at
		 FROM tracked_repos WHERE user_id = ? ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []domain.TrackedRepo
	for rows.Next() {
		r, err := scanTrackedRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// CountTrackedRepos returns how many repositories a user tracks.
func (q *Queries) CountTrackedRepos(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_repos WHERE user_id = ?`, userID,
	).Scan(&n)
	return n, err
}

// DeleteTrackedRepo removes a user's repository; its commits cascade.
// Reports false when the repository does not exist or belongs to someone
// else.
func (q *Queries) DeleteTrackedRepo(ctx context.Context, userID, id string) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		`DELETE FROM tracked_repos WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func scanTrackedRepo(s scanner) (*domain.TrackedRepo, error) {
	var r domain.TrackedRepo
	var provider string
	var created int64
	if err := s.Scan(&r.ID, &r.UserID, &provider, &r.ExternalRepoID, &r.RepoName,
		&r.WebhookSecret, &r.IsActive, &created); err != nil {
		return nil, err
	}
	r.Provider = domain.Provider(provider)
	r.CreatedAt = time.Unix(created, 0)
	return &r, nil
}
