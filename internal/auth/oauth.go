package auth

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/api"
	"github.com/wesm/collabhub/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// UserStore persists users keyed by GitHub id
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
}

// Authenticator exchanges GitHub OAuth codes for dashboard sessions
type Authenticator struct {
	oauth    *oauth2.Config
	clients  api.Factory
	users    UserStore
	sessions *Sessions
}

// NewAuthenticator creates an authenticator for the configured OAuth app
func NewAuthenticator(cfg config.GitHubConfig, clients api.Factory, users UserStore, sessions *Sessions) *Authenticator {
	endpoint := endpoints.GitHub
	if cfg.OAuthBaseURL != "" {
		base := strings.TrimSuffix(cfg.OAuthBaseURL, "/")
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/login/oauth/authorize",
			TokenURL: base + "/login/oauth/access_token",
		}
	}

	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"repo", "user:email"},
		},
		clients:  clients,
		users:    users,
		sessions: sessions,
	}
}

// AuthCodeURL returns the GitHub authorization page for state
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// Login exchanges code for an access token, upserts the GitHub user and
// issues a session token. A returning user keeps settings and gets the new
// access token.
func (a *Authenticator) Login(ctx context.Context, code string) (*models.User, string, error) {
	if strings.TrimSpace(code) == "" {
		return nil, "", fmt.Errorf("%w: code is required", models.ErrValidation)
	}

	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("code exchange: %w: %v", models.ErrUpstream, err)
	}

	gh, email, err := a.clients(token.AccessToken).GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, "", err
	}

	user, err := a.users.UpsertUser(ctx, &models.User{
		GitHubID:    gh.GetID(),
		Username:    gh.GetLogin(),
		Email:       email,
		Name:        gh.GetName(),
		AvatarURL:   gh.GetAvatarURL(),
		AccessToken: token.AccessToken,
	})
	if err != nil {
		return nil, "", err
	}

	session, err := a.sessions.Issue(user)
	if err != nil {
		return nil, "", err
	}

	log.Printf("User %s logged in", user.Username)
	return user, session, nil
}
