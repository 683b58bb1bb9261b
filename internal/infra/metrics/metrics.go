// Package metrics provides Prometheus metrics for gitquest.
// Counters for commit ingestion, XP, achievements and challenges, plus
// HTTP and health gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ingestion ──────────────────────────────────────────────────────────────

// CommitsIngested tracks commits stored per provider.
var CommitsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "commits_ingested_total",
	Help:      "Total commits stored, by provider.",
}, []string{"provider"})

// CommitsDuplicate tracks deliveries absorbed as already stored.
var CommitsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "commits_duplicate_total",
	Help:      "Total duplicate commit deliveries, by provider.",
}, []string{"provider"})

// WebhooksReceived tracks webhook deliveries by provider and outcome.
var WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "webhooks_received_total",
	Help:      "Total webhook deliveries by provider and outcome.",
}, []string{"provider", "outcome"})

// ─── Progression ────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted, by source (commit, achievement, challenge, grant).
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "xp_awarded_total",
	Help:      "Total XP awarded, by source.",
}, []string{"source"})

// XPDuplicates tracks awards skipped because their reason was already paid.
var XPDuplicates = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "xp_duplicate_awards_total",
	Help:      "Total XP awards skipped as already recorded.",
})

// LevelUps tracks level transitions by the level reached.
var LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "level_ups_total",
	Help:      "Total level-ups, by new level.",
}, []string{"level"})

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementsUnlocked tracks unlocks by slug.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievement unlocks, by slug.",
}, []string{"slug"})

// AchievementCheckLatency tracks the duration of a full evaluation pass.
var AchievementCheckLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gitquest",
	Name:      "achievement_check_seconds",
	Help:      "Duration of one achievement evaluation pass.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
})

// ─── Challenges ─────────────────────────────────────────────────────────────

// ChallengesGenerated tracks generated instances by type.
var ChallengesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "challenges_generated_total",
	Help:      "Total challenge instances generated, by type.",
}, []string{"type"})

// ChallengesCompleted tracks pending to completed transitions by type.
var ChallengesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "challenges_completed_total",
	Help:      "Total challenges completed, by type.",
}, []string{"type"})

// ChallengesClaimed tracks claimed rewards by type.
var ChallengesClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "challenges_claimed_total",
	Help:      "Total challenge rewards claimed, by type.",
}, []string{"type"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestLatency tracks request duration by route pattern and status.
var HTTPRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gitquest",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})

// RateLimited tracks requests rejected by the per-IP limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "rate_limited_total",
	Help:      "Total requests rejected by the rate limiter.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gitquest",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitquest",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
