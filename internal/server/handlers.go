package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"
	"github.com/wesm/collabhub/internal/ai"
	"github.com/wesm/collabhub/internal/models"
	"github.com/wesm/collabhub/internal/payload"
	"github.com/wesm/collabhub/internal/sync"
)

// Health pings the store
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Health(r.Context()); err != nil {
		log.Printf("Error: health check failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AuthorizeURL starts the OAuth flow. The frontend keeps state and compares
// it with the one GitHub echoes back to the callback.
func (s *Server) AuthorizeURL(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	respondJSON(w, http.StatusOK, authorizeResponse{URL: s.auth.AuthCodeURL(state), State: state})
}

// Login exchanges a GitHub OAuth code for a session token
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := s.auth.Login(r.Context(), req.Code)
	if err != nil {
		handleDomainError(w, err, "Authentication failed")
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{Token: token, User: payload.MapUser(user)})
}

// Webhook verifies and applies a GitHub delivery
func (s *Server) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := s.webhooks.Verify(r)
	if err != nil {
		handleDomainError(w, err, "Webhook processing failed")
		return
	}

	eventType := github.WebHookType(r)
	if eventType == "" {
		respondError(w, http.StatusBadRequest, "X-GitHub-Event header is required")
		return
	}

	if err := s.webhooks.Handle(r.Context(), eventType, body); err != nil {
		handleDomainError(w, err, "Webhook processing failed")
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Webhook processed"})
}

// Connect accepts the session token as a query parameter since browsers
// cannot set headers on websocket requests.
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	user, err := s.currentUser(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusForbidden, "Invalid token")
		return
	}
	s.realtime.ServeWS(w, r, user.ID)
}

func (s *Server) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.syncer.SyncRepositories(r.Context(), userFrom(r.Context()))
	if err != nil {
		handleDomainError(w, err, "Failed to fetch repositories")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapRepositories(repos))
}

// UpdateRepositorySettings is restricted to the repository owner
func (s *Server) UpdateRepositorySettings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req repositorySettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo, err := s.syncer.AuthorizeRepository(r.Context(), user, chi.URLParam(r, "repoId"))
	if err != nil {
		handleDomainError(w, err, "Failed to update repository settings")
		return
	}
	if repo.OwnerID != user.ID {
		respondError(w, http.StatusForbidden, "Only the repository owner can change settings")
		return
	}

	if req.AIEnabled != nil {
		repo.AIEnabled = *req.AIEnabled
	}
	if req.Settings != nil {
		repo.Settings = *req.Settings
	}
	if err := s.store.UpdateRepositorySettings(r.Context(), repo.ID, repo.AIEnabled, repo.Settings); err != nil {
		handleDomainError(w, err, "Failed to update repository settings")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapRepository(repo))
}

func (s *Server) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	repo, err := s.syncer.AuthorizeRepository(r.Context(), userFrom(r.Context()), chi.URLParam(r, "repoId"))
	if err != nil {
		handleDomainError(w, err, "Failed to fetch collaborators")
		return
	}

	users, err := s.store.ListCollaborators(r.Context(), repo.ID)
	if err != nil {
		handleDomainError(w, err, "Failed to fetch collaborators")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapCollaborators(users))
}

// ListPullRequests accepts ?state=open|closed|merged
func (s *Server) ListPullRequests(w http.ResponseWriter, r *http.Request) {
	state := models.PRState(r.URL.Query().Get("state"))
	prs, err := s.syncer.SyncPullRequests(r.Context(), userFrom(r.Context()), chi.URLParam(r, "repoId"), state)
	if err != nil {
		handleDomainError(w, err, "Failed to fetch pull requests")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapPullRequests(prs))
}

func numberParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	return n, err == nil && n > 0
}

func (s *Server) GetPullRequest(w http.ResponseWriter, r *http.Request) {
	number, ok := numberParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid pull request number")
		return
	}

	pr, err := s.syncer.GetPullRequest(r.Context(), userFrom(r.Context()), chi.URLParam(r, "repoId"), number)
	if err != nil {
		handleDomainError(w, err, "Failed to fetch pull request")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapPullRequest(pr))
}

func (s *Server) ListIssues(w http.ResponseWriter, r *http.Request) {
	state := models.IssueState(r.URL.Query().Get("state"))
	issues, err := s.syncer.SyncIssues(r.Context(), userFrom(r.Context()), chi.URLParam(r, "repoId"), state)
	if err != nil {
		handleDomainError(w, err, "Failed to fetch issues")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapIssues(issues))
}

// CreateIssue validates the request before any upstream call
func (s *Server) CreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := s.syncer.CreateIssue(r.Context(), userFrom(r.Context()), chi.URLParam(r, "repoId"), sync.IssueInput{
		Title:     req.Title,
		Body:      req.Body,
		Labels:    req.Labels,
		Assignees: req.Assignees,
	})
	if err != nil {
		handleDomainError(w, err, "Failed to create issue")
		return
	}
	respondJSON(w, http.StatusCreated, payload.MapIssue(issue))
}

func (s *Server) GetIssue(w http.ResponseWriter, r *http.Request) {
	number, ok := numberParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid issue number")
		return
	}

	issue, err := s.syncer.GetIssue(r.Context(), userFrom(r.Context()), chi.URLParam(r, "repoId"), number)
	if err != nil {
		handleDomainError(w, err, "Failed to fetch issue")
		return
	}
	respondJSON(w, http.StatusOK, payload.MapIssue(issue))
}

// Suggestions returns an empty list when the reply has no suggestion lines
func (s *Server) Suggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, err := s.annotator.Annotate(r.Context(), ai.Kind(req.Type), req.Content, req.Context)
	if err != nil {
		handleDomainError(w, err, "AI analysis failed")
		return
	}

	respondJSON(w, http.StatusOK, suggestionResponse{Suggestions: ai.ParseSuggestions(text)})
}

func (s *Server) GetUserSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, userFrom(r.Context()).Settings)
}

func (s *Server) UpdateUserSettings(w http.ResponseWriter, r *http.Request) {
	var req userSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateUserSettings(r.Context(), userFrom(r.Context()).ID, *req.Settings); err != nil {
		handleDomainError(w, err, "Failed to update settings")
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Settings updated successfully"})
}

// Dashboard counts the caller's owned repositories
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DashboardStats(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		handleDomainError(w, err, "Failed to fetch analytics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
