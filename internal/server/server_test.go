package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/ai"
	"github.com/wesm/collabhub/internal/api"
	"github.com/wesm/collabhub/internal/auth"
	"github.com/wesm/collabhub/internal/db"
	"github.com/wesm/collabhub/internal/models"
	"github.com/wesm/collabhub/internal/notify"
	"github.com/wesm/collabhub/internal/payload"
	"github.com/wesm/collabhub/internal/sync"
	"github.com/wesm/collabhub/internal/webhook"
)

const webhookSecret = "s3cret"

type fakeGitHub struct {
	prs     []*github.PullRequest
	created *github.Issue
	err     error
	calls   int
}

func (f *fakeGitHub) ListRepositories(ctx context.Context) ([]*github.Repository, error) {
	f.calls++
	return nil, f.err
}

func (f *fakeGitHub) ListPullRequests(ctx context.Context, owner, name, state string) ([]*github.PullRequest, error) {
	f.calls++
	return f.prs, f.err
}

func (f *fakeGitHub) ListIssues(ctx context.Context, owner, name, state string) ([]*github.Issue, error) {
	f.calls++
	return nil, f.err
}

func (f *fakeGitHub) CreateIssue(ctx context.Context, owner, name string, req *github.IssueRequest) (*github.Issue, error) {
	f.calls++
	return f.created, f.err
}

func (f *fakeGitHub) GetPullRequestDiff(ctx context.Context, owner, name string, number int) (string, error) {
	return "", fmt.Errorf("no diff: %w", models.ErrUpstream)
}

func (f *fakeGitHub) GetAuthenticatedUser(ctx context.Context) (*github.User, string, error) {
	return nil, "", errors.New("not implemented")
}

type fakeAnnotator struct {
	reply string
	err   error
}

func (f *fakeAnnotator) Annotate(ctx context.Context, kind ai.Kind, content string, c ai.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fixture struct {
	store     *db.DB
	github    *fakeGitHub
	annotator *fakeAnnotator
	sessions  *auth.Sessions
	handler   http.Handler
	alice     *models.User
	bob       *models.User
	repo      *models.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := db.New(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	alice, err := store.UpsertUser(ctx, &models.User{GitHubID: 1, Username: "alice", AccessToken: "token-alice"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	bob, err := store.UpsertUser(ctx, &models.User{GitHubID: 2, Username: "bob", AccessToken: "token-bob"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	repo, _, err := store.CreateRepositoryIfAbsent(ctx, &models.Repository{
		GitHubID:  100,
		Name:      "widgets",
		FullName:  "alice/widgets",
		OwnerID:   alice.ID,
		AIEnabled: true,
		Settings:  models.DefaultRepositorySettings(),
	})
	if err != nil {
		t.Fatalf("CreateRepositoryIfAbsent: %v", err)
	}

	gh := &fakeGitHub{}
	factory := func(string) api.Client { return gh }
	annotator := &fakeAnnotator{reply: "- Add tests\n- Check null case"}
	syncer := sync.New(store, factory, annotator, nil)
	sessions := auth.NewSessions("secret", time.Hour)
	hub := notify.NewHub("", nil)
	t.Cleanup(hub.Close)

	srv := New(Deps{
		Store:     store,
		Syncer:    syncer,
		Annotator: annotator,
		Auth:      auth.NewAuthenticator(config.GitHubConfig{ClientID: "client-123"}, factory, store, sessions),
		Sessions:  sessions,
		Webhooks:  webhook.NewHandler(config.WebhookConfig{Secret: webhookSecret}, syncer, store, nil),
		Realtime:  hub,
	})

	return &fixture{
		store:     store,
		github:    gh,
		annotator: annotator,
		sessions:  sessions,
		handler:   srv.Router(),
		alice:     alice,
		bob:       bob,
		repo:      repo,
	}
}

func (f *fixture) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := f.sessions.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, user *models.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, user))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	decode(t, rec, &resp)
	return resp.Error
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, nil, http.MethodGet, "/api/repositories", nil)
	if rec.Code != http.StatusUnauthorized || errorMessage(t, rec) != "Access token required" {
		t.Errorf("missing credential: got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/repositories", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || errorMessage(t, rec) != "Invalid token" {
		t.Errorf("invalid credential: got %d", rec.Code)
	}

	// A valid signature for a user that no longer exists is still rejected
	ghost := &models.User{ID: "ghost", GitHubID: 99}
	rec = f.do(t, ghost, http.MethodGet, "/api/user/settings", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unknown user: got %d", rec.Code)
	}
}

func TestListPullRequestsAnnotatesNewMirrors(t *testing.T) {
	f := newFixture(t)
	f.github.prs = []*github.PullRequest{{
		ID:           github.Int64(999),
		Number:       github.Int(1),
		Title:        github.String("Fix bug"),
		State:        github.String("open"),
		ChangedFiles: github.Int(3),
	}}

	rec := f.do(t, f.alice, http.MethodGet, "/api/repositories/"+f.repo.ID+"/pull-requests?state=open", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var prs []payload.PullRequest
	decode(t, rec, &prs)
	if len(prs) != 1 {
		t.Fatalf("expected 1 pull request, got %d", len(prs))
	}
	analysis := prs[0].AIAnalysis
	if analysis == nil {
		t.Fatal("expected aiAnalysis")
	}
	want := []string{"- Add tests", "- Check null case"}
	if !reflect.DeepEqual(analysis.Suggestions, want) {
		t.Errorf("suggestions = %q, want %q", analysis.Suggestions, want)
	}
	if analysis.Complexity != models.ComplexityLow {
		t.Errorf("complexity = %s, want low", analysis.Complexity)
	}

	if _, err := f.store.GetPullRequestByGitHubID(context.Background(), 999); err != nil {
		t.Errorf("mirror not persisted: %v", err)
	}
}

func TestPullRequestErrors(t *testing.T) {
	f := newFixture(t)
	base := "/api/repositories/" + f.repo.ID

	rec := f.do(t, f.alice, http.MethodGet, base+"/pull-requests?state=draft", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid state: got %d", rec.Code)
	}

	rec = f.do(t, f.bob, http.MethodGet, base+"/pull-requests", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-collaborator: got %d", rec.Code)
	}

	rec = f.do(t, f.alice, http.MethodGet, "/api/repositories/missing/pull-requests", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown repository: got %d", rec.Code)
	}

	rec = f.do(t, f.alice, http.MethodGet, base+"/pull-requests/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid number: got %d", rec.Code)
	}

	rec = f.do(t, f.alice, http.MethodGet, base+"/pull-requests/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unmirrored pull request: got %d", rec.Code)
	}

	f.github.err = fmt.Errorf("list: %w: secret upstream detail", models.ErrUpstream)
	rec = f.do(t, f.alice, http.MethodGet, base+"/pull-requests", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("upstream failure: got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Failed to fetch pull requests" {
		t.Errorf("upstream detail leaked: %q", msg)
	}
}

func TestCreateIssue(t *testing.T) {
	f := newFixture(t)
	path := "/api/repositories/" + f.repo.ID + "/issues"

	rec := f.do(t, f.alice, http.MethodPost, path, map[string]any{"body": "no title"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing title: got %d", rec.Code)
	}
	if f.github.calls != 0 {
		t.Errorf("upstream called %d times for an invalid request", f.github.calls)
	}

	f.github.created = &github.Issue{
		ID:     github.Int64(700),
		Number: github.Int(5),
		Title:  github.String("Crash"),
		State:  github.String("open"),
	}
	rec = f.do(t, f.alice, http.MethodPost, path, map[string]any{"title": "Crash", "labels": []string{"bug"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var issue payload.Issue
	decode(t, rec, &issue)
	if issue.Number != 5 || issue.AIAnalysis == nil {
		t.Errorf("unexpected issue: %+v", issue)
	}

	rec = f.do(t, f.alice, http.MethodGet, path+"/5", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("issue detail: got %d", rec.Code)
	}
}

func TestRepositorySettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := "/api/repositories/" + f.repo.ID + "/settings"

	if err := f.store.AddCollaborator(ctx, f.repo.ID, f.bob.ID); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}

	rec := f.do(t, f.bob, http.MethodPut, path, map[string]any{"aiEnabled": false})
	if rec.Code != http.StatusForbidden {
		t.Errorf("collaborator changing settings: got %d", rec.Code)
	}

	rec = f.do(t, f.alice, http.MethodPut, path, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty update: got %d", rec.Code)
	}

	rec = f.do(t, f.alice, http.MethodPut, path, map[string]any{"aiEnabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	repo, err := f.store.GetRepository(ctx, f.repo.ID)
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	if repo.AIEnabled || !repo.Settings.Notifications {
		t.Errorf("unexpected settings after update: %+v", repo)
	}

	rec = f.do(t, f.bob, http.MethodGet, "/api/repositories/"+f.repo.ID+"/collaborators", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("collaborators: got %d", rec.Code)
	}
	var collaborators []payload.Collaborator
	decode(t, rec, &collaborators)
	if len(collaborators) != 1 || collaborators[0].Username != "bob" {
		t.Errorf("unexpected collaborators: %+v", collaborators)
	}
}

func TestUserSettings(t *testing.T) {
	f := newFixture(t)

	settings := models.DefaultUserSettings()
	settings.Notifications.Email = false
	rec := f.do(t, f.alice, http.MethodPut, "/api/user/settings", map[string]any{"settings": settings})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, f.alice, http.MethodGet, "/api/user/settings", nil)
	var got models.UserSettings
	decode(t, rec, &got)
	if got != settings {
		t.Errorf("settings = %+v, want %+v", got, settings)
	}

	rec = f.do(t, f.alice, http.MethodPut, "/api/user/settings", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing settings: got %d", rec.Code)
	}
}

func TestSuggestions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.alice, http.MethodPost, "/api/ai/suggestions", map[string]any{
		"type":    "issue_analysis",
		"content": "App crashes",
		"context": map[string]any{"title": "Crash"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp suggestionResponse
	decode(t, rec, &resp)
	if len(resp.Suggestions) != 2 {
		t.Errorf("suggestions = %q", resp.Suggestions)
	}

	rec = f.do(t, f.alice, http.MethodPost, "/api/ai/suggestions", map[string]any{"type": "poem", "content": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: got %d", rec.Code)
	}

	// Prose with no bullet lines degrades to an empty list
	f.annotator.reply = "This looks fine overall."
	rec = f.do(t, f.alice, http.MethodPost, "/api/ai/suggestions", map[string]any{"type": "pr_review", "content": "diff"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unstructured reply: status %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"suggestions":[]}` {
		t.Errorf("unstructured reply body = %s", got)
	}

	f.annotator.err = fmt.Errorf("provider down: %w", models.ErrAIUnavailable)
	rec = f.do(t, f.alice, http.MethodPost, "/api/ai/suggestions", map[string]any{"type": "pr_review", "content": "diff"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("provider failure: got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "provider down") {
		t.Errorf("provider error leaked: %s", rec.Body.String())
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, f.alice, http.MethodGet, "/api/analytics/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var stats models.DashboardStats
	decode(t, rec, &stats)
	if stats.Repositories != 1 {
		t.Errorf("repositories = %d, want 1", stats.Repositories)
	}
}

func signedDelivery(event string, body []byte, secret string) *http.Request {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"zen":"Design for failure."}`)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, signedDelivery("ping", body, "wrong"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, signedDelivery("ping", body, webhookSecret))
	if rec.Code != http.StatusOK {
		t.Errorf("ping: got %d: %s", rec.Code, rec.Body.String())
	}

	opened, err := json.Marshal(&github.PullRequestEvent{
		Action: github.String("opened"),
		Repo:   &github.Repository{ID: github.Int64(100)},
		PullRequest: &github.PullRequest{
			ID:     github.Int64(555),
			Number: github.Int(9),
			Title:  github.String("From webhook"),
			State:  github.String("open"),
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, signedDelivery("pull_request", opened, webhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("pull_request: got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := f.store.GetPullRequestByGitHubID(context.Background(), 555); err != nil {
		t.Errorf("webhook did not mirror pull request: %v", err)
	}
}

func TestMiscRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, nil, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: got %d", rec.Code)
	}

	rec = f.do(t, nil, http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusNotFound || errorMessage(t, rec) != "Endpoint not found" {
		t.Errorf("unknown route: got %d", rec.Code)
	}

	rec = f.do(t, nil, http.MethodPost, "/api/auth/github", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("login without code: got %d", rec.Code)
	}

	var first, second authorizeResponse
	rec = f.do(t, nil, http.MethodGet, "/api/auth/github", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authorize url: got %d", rec.Code)
	}
	decode(t, rec, &first)
	if first.State == "" || !strings.HasPrefix(first.URL, "https://github.com/login/oauth/authorize?") {
		t.Errorf("authorize url = %+v", first)
	}
	if !strings.Contains(first.URL, "client_id=client-123") || !strings.Contains(first.URL, "state="+first.State) {
		t.Errorf("authorize url missing client id or state: %s", first.URL)
	}
	decode(t, f.do(t, nil, http.MethodGet, "/api/auth/github", nil), &second)
	if second.State == first.State {
		t.Errorf("expected a fresh state per request, got %q twice", first.State)
	}

	rec = f.do(t, nil, http.MethodGet, "/api/realtime", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("realtime without token: got %d", rec.Code)
	}
	rec = f.do(t, nil, http.MethodGet, "/api/realtime?token=forged", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("realtime with forged token: got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("errors should be JSON")
	}
}
