// Package sqlite provides SQLite-based persistent storage for gitquest.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every repository method. It runs either directly on the
// connection pool or inside a transaction handed out by DB.InTx.
type Queries struct {
	q querier
}

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	*Queries
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer. One connection also serializes every
	// transaction in the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{Queries: &Queries{q: db}, db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// PingContext checks database connectivity with a deadline.
func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. Any error from fn rolls back every
// write fn made.
func (d *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Connected provider accounts
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id             TEXT NOT NULL,
			provider            TEXT NOT NULL,
			provider_account_id TEXT NOT NULL,
			linked_at           INTEGER NOT NULL,
			PRIMARY KEY (user_id, provider, provider_account_id)
		)`,

		// Repositories whose commits count toward a user's progress
		`CREATE TABLE IF NOT EXISTS tracked_repos (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			provider         TEXT NOT NULL,
			external_repo_id TEXT NOT NULL,
			repo_name        TEXT NOT NULL,
			webhook_secret   TEXT NOT NULL DEFAULT '',
			is_active        BOOLEAN NOT NULL DEFAULT 1,
			created_at       INTEGER NOT NULL,
			UNIQUE (provider, external_repo_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_repos_user ON tracked_repos(user_id)`,

		// Commits; (repo_id, sha) absorbs duplicate deliveries
		`CREATE TABLE IF NOT EXISTS commits (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			repo_id      TEXT NOT NULL REFERENCES tracked_repos(id) ON DELETE CASCADE,
			provider     TEXT NOT NULL,
			sha          TEXT NOT NULL,
			message      TEXT NOT NULL DEFAULT '',
			committed_at INTEGER NOT NULL,
			branch       TEXT NOT NULL DEFAULT '',
			additions    INTEGER NOT NULL DEFAULT 0,
			deletions    INTEGER NOT NULL DEFAULT 0,
			xp_awarded   BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (repo_id, sha)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commits_user_time ON commits(user_id, committed_at)`,

		// Rollups, recomputed from commits
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id          TEXT PRIMARY KEY,
			current_streak   INTEGER NOT NULL DEFAULT 0,
			longest_streak   INTEGER NOT NULL DEFAULT 0,
			total_commits    INTEGER NOT NULL DEFAULT 0,
			last_commit_date INTEGER,
			updated_at       INTEGER NOT NULL
		)`,

		// Progression
		`CREATE TABLE IF NOT EXISTS user_levels (
			user_id  TEXT PRIMARY KEY,
			level    INTEGER NOT NULL DEFAULT 1,
			xp       INTEGER NOT NULL DEFAULT 0,
			total_xp INTEGER NOT NULL DEFAULT 0,
			title    TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS xp_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			reason     TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (user_id, reason)
		)`,

		// Achievement catalog and unlocks
		`CREATE TABLE IF NOT EXISTS achievements (
			id          TEXT PRIMARY KEY,
			slug        TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL,
			icon        TEXT NOT NULL,
			category    TEXT NOT NULL,
			threshold   INTEGER NOT NULL,
			rarity      TEXT NOT NULL,
			xp_reward   INTEGER NOT NULL,
			position    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL REFERENCES achievements(id),
			unlocked_at    INTEGER NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		// Challenge instances and per-user progress
		`CREATE TABLE IF NOT EXISTS challenges (
			id           TEXT PRIMARY KEY,
			template_key TEXT NOT NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			icon         TEXT NOT NULL,
			type         TEXT NOT NULL,
			goal         INTEGER NOT NULL,
			reward_xp    INTEGER NOT NULL,
			start_date   INTEGER NOT NULL,
			end_date     INTEGER NOT NULL,
			is_active    BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS user_challenges (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			challenge_id TEXT NOT NULL REFERENCES challenges(id),
			progress     INTEGER NOT NULL DEFAULT 0,
			completed    BOOLEAN NOT NULL DEFAULT 0,
			completed_at INTEGER,
			claimed_at   INTEGER,
			UNIQUE (user_id, challenge_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uc_user ON user_challenges(user_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableUnixPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return nullableUnix(*t)
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}
