// Package server exposes the dashboard HTTP API.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/wesm/collabhub/internal/ai"
	"github.com/wesm/collabhub/internal/auth"
	"github.com/wesm/collabhub/internal/db"
	"github.com/wesm/collabhub/internal/models"
	"github.com/wesm/collabhub/internal/sync"
	"github.com/wesm/collabhub/internal/webhook"
)

// Realtime upgrades a request to a real-time connection for userID
type Realtime interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// Deps are the components the HTTP surface delegates to
type Deps struct {
	Store       db.Store
	Syncer      *sync.Syncer
	Annotator   ai.Annotator
	Auth        *auth.Authenticator
	Sessions    *auth.Sessions
	Webhooks    *webhook.Handler
	Realtime    Realtime
	FrontendURL string
}

// Server holds the HTTP handlers
type Server struct {
	store       db.Store
	syncer      *sync.Syncer
	annotator   ai.Annotator
	auth        *auth.Authenticator
	sessions    *auth.Sessions
	webhooks    *webhook.Handler
	realtime    Realtime
	frontendURL string
}

// New creates a server from its dependencies
func New(d Deps) *Server {
	return &Server{
		store:       d.Store,
		syncer:      d.Syncer,
		annotator:   d.Annotator,
		auth:        d.Auth,
		sessions:    d.Sessions,
		webhooks:    d.Webhooks,
		realtime:    d.Realtime,
		frontendURL: d.FrontendURL,
	}
}

// Router returns the routed handler for the /api surface
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.frontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)
		r.Get("/auth/github", s.AuthorizeURL)
		r.Post("/auth/github", s.Login)
		r.Post("/webhooks/github", s.Webhook)
		r.Get("/realtime", s.Connect)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/repositories", s.ListRepositories)
			r.Route("/repositories/{repoId}", func(r chi.Router) {
				r.Put("/settings", s.UpdateRepositorySettings)
				r.Get("/collaborators", s.ListCollaborators)
				r.Get("/pull-requests", s.ListPullRequests)
				r.Get("/pull-requests/{number}", s.GetPullRequest)
				r.Get("/issues", s.ListIssues)
				r.Post("/issues", s.CreateIssue)
				r.Get("/issues/{number}", s.GetIssue)
			})

			r.Post("/ai/suggestions", s.Suggestions)
			r.Get("/user/settings", s.GetUserSettings)
			r.Put("/user/settings", s.UpdateUserSettings)
			r.Get("/analytics/dashboard", s.Dashboard)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Endpoint not found")
	})

	return r
}

type contextKey struct{}

func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(contextKey{}).(*models.User)
	return user
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// currentUser resolves the session credential to a stored user
func (s *Server) currentUser(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, models.ErrForbidden
	}
	return user, nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		user, err := s.currentUser(r.Context(), token)
		if err != nil {
			if token == "" {
				respondError(w, http.StatusUnauthorized, "Access token required")
			} else {
				respondError(w, http.StatusForbidden, "Invalid token")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}
