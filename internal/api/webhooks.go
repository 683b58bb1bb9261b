package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
	"github.com/gitquest/gitquest/internal/infra/metrics"
	"github.com/gitquest/gitquest/internal/security"
)

// pushCommit is the commit shape shared by GitHub and GitLab push events.
// Line counts are not part of push payloads; added/removed file counts
// stand in for additions/deletions.
type pushCommit struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Added     []string  `json:"added"`
	Removed   []string  `json:"removed"`
}

type githubPush struct {
	Ref        string `json:"ref"`
	Repository struct {
		ID       json.Number `json:"id"`
		FullName string      `json:"full_name"`
	} `json:"repository"`
	Commits []pushCommit `json:"commits"`
}

type gitlabPush struct {
	ObjectKind string `json:"object_kind"`
	Ref        string `json:"ref"`
	Project    struct {
		ID                json.Number `json:"id"`
		PathWithNamespace string      `json:"path_with_namespace"`
	} `json:"project"`
	Commits []pushCommit `json:"commits"`
}

func toCommitInputs(ref string, commits []pushCommit) []domain.CommitInput {
	branch := strings.TrimPrefix(ref, "refs/heads/")
	out := make([]domain.CommitInput, 0, len(commits))
	for _, c := range commits {
		out = append(out, domain.CommitInput{
			SHA:         c.ID,
			Message:     c.Message,
			CommittedAt: c.Timestamp,
			Branch:      branch,
			Additions:   len(c.Added),
			Deletions:   len(c.Removed),
		})
	}
	return out
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// handleGitHubWebhook ingests push events signed with the repository's
// webhook secret (X-Hub-Signature-256).
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	const provider = domain.ProviderGitHub

	body, err := readPayload(w, r)
	if err != nil {
		s.webhookReject(w, provider, "bad_body", http.StatusBadRequest, "cannot read payload")
		return
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "ping":
		s.webhookOutcome(provider, "ping")
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	case "push", "":
	default:
		s.webhookOutcome(provider, "ignored")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "event": event})
		return
	}

	var push githubPush
	if err := json.Unmarshal(body, &push); err != nil || push.Repository.ID == "" {
		s.webhookReject(w, provider, "bad_payload", http.StatusBadRequest, "invalid push payload")
		return
	}

	repo, err := s.engine.Repos.FindByExternal(r.Context(), provider, push.Repository.ID.String())
	if err != nil {
		s.webhookEngineError(w, r, provider, err)
		return
	}
	if !security.VerifySignature(repo.WebhookSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		s.webhookReject(w, provider, "bad_signature", http.StatusUnauthorized, "invalid signature")
		return
	}

	s.ingestPush(w, r, provider, repo, toCommitInputs(push.Ref, push.Commits))
}

// handleGitLabWebhook ingests push hooks authenticated by X-Gitlab-Token.
func (s *Server) handleGitLabWebhook(w http.ResponseWriter, r *http.Request) {
	const provider = domain.ProviderGitLab

	body, err := readPayload(w, r)
	if err != nil {
		s.webhookReject(w, provider, "bad_body", http.StatusBadRequest, "cannot read payload")
		return
	}

	var push gitlabPush
	if err := json.Unmarshal(body, &push); err != nil || push.Project.ID == "" {
		s.webhookReject(w, provider, "bad_payload", http.StatusBadRequest, "invalid push payload")
		return
	}
	if push.ObjectKind != "" && push.ObjectKind != "push" {
		s.webhookOutcome(provider, "ignored")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "event": push.ObjectKind})
		return
	}

	repo, err := s.engine.Repos.FindByExternal(r.Context(), provider, push.Project.ID.String())
	if err != nil {
		s.webhookEngineError(w, r, provider, err)
		return
	}
	if !security.VerifyToken(repo.WebhookSecret, r.Header.Get("X-Gitlab-Token")) {
		s.webhookReject(w, provider, "bad_token", http.StatusUnauthorized, "invalid token")
		return
	}

	s.ingestPush(w, r, provider, repo, toCommitInputs(push.Ref, push.Commits))
}

func (s *Server) ingestPush(w http.ResponseWriter, r *http.Request, provider domain.Provider, repo domain.TrackedRepo, commits []domain.CommitInput) {
	res, err := s.engine.Ingest.Ingest(r.Context(), repo.UserID, repo.ID, commits)
	if err != nil {
		s.webhookEngineError(w, r, provider, err)
		return
	}
	s.webhookOutcome(provider, "ingested")
	s.log.WithFields(logrus.Fields{
		"provider": provider,
		"repo":     repo.RepoName,
		"stored":   res.Stored,
	}).Info("Webhook delivery processed")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) webhookOutcome(provider domain.Provider, outcome string) {
	metrics.WebhooksReceived.WithLabelValues(string(provider), outcome).Inc()
}

func (s *Server) webhookReject(w http.ResponseWriter, provider domain.Provider, outcome string, code int, msg string) {
	s.webhookOutcome(provider, outcome)
	writeError(w, code, msg)
}

func (s *Server) webhookEngineError(w http.ResponseWriter, r *http.Request, provider domain.Provider, err error) {
	s.webhookOutcome(provider, "error_"+strconv.Itoa(statusFor(err)))
	s.writeEngineError(w, r, err)
}
