package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gitquest/gitquest/internal/app/engagement"
	"github.com/gitquest/gitquest/internal/domain"
)

const (
	recentXPLimit       = 20
	defaultCalendarDays = 30
	maxCalendarDays     = 366
)

// ─── XP / Stats ─────────────────────────────────────────────────────────────

func (s *Server) handleGetXP(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	sum, err := s.engine.Levels.GetUserXP(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	recent, err := s.engine.Levels.RecentXP(r.Context(), userID, recentXPLimit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if recent == nil {
		recent = []domain.XPEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level":  sum,
		"recent": recent,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ov, err := s.engine.Stats.Overview(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// ─── Achievements ───────────────────────────────────────────────────────────

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Achievements.ListWithStatus(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": list})
}

func (s *Server) handleCheckAchievements(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	if !s.allowCheck(r.Context(), userID) {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.opts.AchievementCheckInterval.Seconds())))
		writeError(w, http.StatusTooManyRequests, "achievement check throttled")
		return
	}
	events, err := s.engine.Achievements.CheckAchievements(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.UnlockEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"newly_unlocked": events})
}

// allowCheck claims the per-user throttle slot. Cache failures let the
// request through.
func (s *Server) allowCheck(ctx context.Context, userID string) bool {
	if s.cache == nil || s.opts.AchievementCheckInterval <= 0 {
		return true
	}
	ok, err := s.cache.SetNX(ctx, "achievements:check:"+userID, []byte("1"), s.opts.AchievementCheckInterval)
	if err != nil {
		s.log.WithError(err).Warn("Throttle store unavailable")
		return true
	}
	return ok
}

// ─── Challenges ─────────────────────────────────────────────────────────────

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	// Concurrent refreshes of one user share a single run; it must not
	// die with whichever caller started it.
	ctx := context.WithoutCancel(r.Context())
	v, err, _ := s.refreshes.Do(userID, func() (interface{}, error) {
		return s.engine.Challenges.Refresh(ctx, userID)
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.(domain.ChallengeList))
}

func (s *Server) handleClaimChallenge(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Challenges.ClaimChallengeReward(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChallengeHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.Challenges.GetChallengeHistory(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": items})
}

// ─── Commits ────────────────────────────────────────────────────────────────

type syncRequest struct {
	RepoID  string               `json:"repo_id"`
	Commits []domain.CommitInput `json:"commits"`
}

func (s *Server) handleSyncCommits(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Ingest.Ingest(r.Context(), userFrom(r), req.RepoID, req.Commits)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// positiveQuery reads an optional positive integer query parameter.
func positiveQuery(r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleListCommits(w http.ResponseWriter, r *http.Request) {
	page, ok := positiveQuery(r, "page", 1)
	if !ok {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, ok := positiveQuery(r, "limit", engagement.DefaultCommitPageSize)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	res, err := s.engine.Stats.ListCommits(r.Context(), userFrom(r), page, limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	period := domain.InsightPeriod(r.URL.Query().Get("period"))
	res, err := s.engine.Stats.Insights(r.Context(), userFrom(r), period)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCommitCalendar(w http.ResponseWriter, r *http.Request) {
	days := defaultCalendarDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxCalendarDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(maxCalendarDays))
			return
		}
		days = n
	}
	cal, err := s.engine.Stats.CommitCalendar(r.Context(), userFrom(r), days)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timezone": s.engine.Calendar.Location().String(),
		"days":     cal,
	})
}

// ─── Repos / Accounts ───────────────────────────────────────────────────────

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.engine.Repos.ListRepos(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"repos": repos})
}

type trackRequest struct {
	Provider   domain.Provider `json:"provider"`
	ExternalID string          `json:"external_repo_id"`
	Name       string          `json:"repo_name"`
}

// trackResponse reveals the webhook secret once, on creation.
type trackResponse struct {
	domain.TrackedRepo
	WebhookSecret string               `json:"webhook_secret"`
	WebhookURL    string               `json:"webhook_path"`
	Unlocked      []domain.UnlockEvent `json:"newly_unlocked"`
}

func (s *Server) handleTrackRepo(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	repo, unlocked, err := s.engine.Repos.TrackRepo(r.Context(), userFrom(r), req.Provider, strings.TrimSpace(req.ExternalID), req.Name)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trackResponse{
		TrackedRepo:   repo,
		WebhookSecret: repo.WebhookSecret,
		WebhookURL:    "/webhooks/" + string(repo.Provider),
		Unlocked:      unlocked,
	})
}

func (s *Server) handleUntrackRepo(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Repos.UntrackRepo(r.Context(), userFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkRequest struct {
	Provider  domain.Provider `json:"provider"`
	AccountID string          `json:"provider_account_id"`
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, unlocked, err := s.engine.Repos.LinkAccount(r.Context(), userFrom(r), req.Provider, req.AccountID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"account":        acct,
		"newly_unlocked": unlocked,
	})
}

func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	provider := domain.Provider(chi.URLParam(r, "provider"))
	err := s.engine.Repos.UnlinkAccount(r.Context(), userFrom(r), provider, chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
