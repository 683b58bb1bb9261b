package engagement

import "github.com/gitquest/gitquest/internal/infra/sqlite"

// Engine bundles the services over one store. All of them share the
// level service's per-user locks.
type Engine struct {
	Levels       *LevelService
	Stats        *StatsService
	Achievements *AchievementService
	Challenges   *ChallengeService
	Repos        *RepoService
	Ingest       *IngestService
	Calendar     Calendar
}

// New wires every engine service.
func New(db *sqlite.DB, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	levels := NewLevelService(db, cfg)
	stats := NewStatsService(db, levels, cfg)
	achievements := NewAchievementService(db, levels, cfg)
	return &Engine{
		Levels:       levels,
		Stats:        stats,
		Achievements: achievements,
		Challenges:   NewChallengeService(db, levels, cfg),
		Repos:        NewRepoService(db, levels, stats, achievements, cfg),
		Ingest:       NewIngestService(db, levels, stats, achievements, cfg),
		Calendar:     cfg.Calendar,
	}
}
