package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/models"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubRooms(t *testing.T) {
	hub := NewHub("", func(ctx context.Context, userID, repoID string) bool {
		return repoID != "secret"
	})
	defer hub.Close()

	conn := dialHub(t, hub, "u1")

	if err := conn.WriteJSON(Frame{Event: EventJoinRepository, RepositoryID: "secret"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(Frame{Event: EventJoinRepository, RepositoryID: "r1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize(RoomFor("r1")) == 1 })
	if n := hub.RoomSize(RoomFor("secret")); n != 0 {
		t.Errorf("unauthorized join admitted %d clients", n)
	}

	hub.Broadcast(RoomFor("other"), EventPROpened, map[string]string{"x": "ignored"})
	hub.Broadcast(RoomFor("r1"), EventIssueOpened, map[string]string{"repository": "widgets"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Event != EventIssueOpened || got.Data["repository"] != "widgets" {
		t.Errorf("unexpected frame: %+v", got)
	}

	if err := conn.WriteJSON(Frame{Event: EventLeaveRepository, RepositoryID: "r1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize(RoomFor("r1")) == 0 })
}

func TestHubRemovesClosedClients(t *testing.T) {
	hub := NewHub("", nil)
	conn := dialHub(t, hub, "u1")
	if err := conn.WriteJSON(Frame{Event: EventJoinRepository, RepositoryID: "r1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return hub.RoomSize(RoomFor("r1")) == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.RoomSize(RoomFor("r1")) == 0 })

	// Broadcasting to an emptied room is a no-op
	hub.Broadcast(RoomFor("r1"), EventPROpened, nil)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub("http://localhost:3000", nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "u1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected foreign origin to be rejected")
	}

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

type broadcast struct {
	room  string
	event string
	data  map[string]any
}

type fakeHub struct {
	mu     sync.Mutex
	events []broadcast
}

func (h *fakeHub) Broadcast(room, event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, _ := data.(map[string]any)
	h.events = append(h.events, broadcast{room: room, event: event, data: m})
}

type sentEmail struct {
	to      string
	subject string
	html    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to: to, subject: subject, html: html})
	return nil
}

type fakeCollaborators []*models.User

func (f fakeCollaborators) ListCollaborators(ctx context.Context, repoID string) ([]*models.User, error) {
	return f, nil
}

func collaborator(email string, enabled bool) *models.User {
	settings := models.DefaultUserSettings()
	settings.Notifications.Email = enabled
	return &models.User{ID: email, Username: email, Email: email, Settings: settings}
}

func testRepository() *models.Repository {
	return &models.Repository{
		ID:       "r1",
		Name:     "widgets",
		FullName: "alice/widgets",
		Settings: models.DefaultRepositorySettings(),
	}
}

func TestDispatcherPullRequestOpened(t *testing.T) {
	hub := &fakeHub{}
	mailer := &fakeMailer{}
	users := fakeCollaborators{
		collaborator("bob@example.com", true),
		collaborator("carol@example.com", false),
		{ID: "dave", Settings: models.DefaultUserSettings()},
	}
	d := NewDispatcher(users, hub, mailer)

	pr := &models.PullRequest{
		ID:          "p1",
		Number:      7,
		Title:       "Fix <script> handling",
		AuthorLogin: "alice",
		HTMLURL:     "https://github.com/alice/widgets/pull/7",
		State:       models.PRStateOpen,
	}
	d.PullRequestOpened(context.Background(), testRepository(), pr)
	d.Wait()

	if len(hub.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.events))
	}
	ev := hub.events[0]
	if ev.room != "repo-r1" || ev.event != EventPROpened {
		t.Errorf("unexpected broadcast %s/%s", ev.room, ev.event)
	}
	if ev.data["repository"] != "widgets" {
		t.Errorf("repository = %v, want widgets", ev.data["repository"])
	}
	if _, ok := ev.data["pullRequest"]; !ok {
		t.Error("broadcast missing pullRequest")
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	mail := mailer.sent[0]
	if mail.to != "bob@example.com" {
		t.Errorf("email sent to %s", mail.to)
	}
	if mail.subject != "New Pull Request: Fix <script> handling" {
		t.Errorf("subject = %q", mail.subject)
	}
	if strings.Contains(mail.html, "<script>") || !strings.Contains(mail.html, "&lt;script&gt;") {
		t.Errorf("title not escaped in body: %s", mail.html)
	}
	if !strings.Contains(mail.html, "alice/widgets") {
		t.Errorf("body missing repository: %s", mail.html)
	}
}

func TestDispatcherRespectsRepositoryNotifications(t *testing.T) {
	hub := &fakeHub{}
	mailer := &fakeMailer{}
	d := NewDispatcher(fakeCollaborators{collaborator("bob@example.com", true)}, hub, mailer)

	repo := testRepository()
	repo.Settings.Notifications = false
	d.IssueCreated(context.Background(), repo, &models.Issue{ID: "i1", Title: "Crash"})
	d.Wait()

	if len(hub.events) != 1 || hub.events[0].event != EventIssueCreated {
		t.Fatalf("unexpected broadcasts: %+v", hub.events)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("expected no email, got %d", len(mailer.sent))
	}
}

func TestDispatcherEmailFailureIsNotFatal(t *testing.T) {
	hub := &fakeHub{}
	mailer := &fakeMailer{err: errors.New("smtp down")}
	d := NewDispatcher(fakeCollaborators{collaborator("bob@example.com", true)}, hub, mailer)

	d.IssueOpened(context.Background(), testRepository(), &models.Issue{ID: "i1", Title: "Crash"})
	d.Wait()

	if len(hub.events) != 1 || hub.events[0].event != EventIssueOpened {
		t.Fatalf("unexpected broadcasts: %+v", hub.events)
	}
	if _, ok := hub.events[0].data["issue"]; !ok {
		t.Error("broadcast missing issue")
	}
}

func TestDispatcherCommentAdded(t *testing.T) {
	hub := &fakeHub{}
	mailer := &fakeMailer{}
	d := NewDispatcher(fakeCollaborators{collaborator("bob@example.com", true)}, hub, mailer)

	d.CommentAdded(context.Background(), testRepository(), &models.Comment{
		ID:         "c1",
		ParentType: models.ParentIssue,
		ParentID:   "i1",
		Body:       "+1",
	})
	d.Wait()

	if len(hub.events) != 1 || hub.events[0].event != EventCommentAdded {
		t.Fatalf("unexpected broadcasts: %+v", hub.events)
	}
	if hub.events[0].data["parentId"] != "i1" {
		t.Errorf("parentId = %v", hub.events[0].data["parentId"])
	}
	if len(mailer.sent) != 0 {
		t.Errorf("comments should not be emailed")
	}
}

func TestDispatcherWithoutChannels(t *testing.T) {
	d := NewDispatcher(fakeCollaborators{}, nil, nil)
	d.PullRequestOpened(context.Background(), testRepository(), &models.PullRequest{ID: "p1"})
	d.Wait()
}

func TestSMTPMailerRejectsBadRecipient(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Host: "localhost", Port: 2525, From: "hub@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	if err := m.Send(context.Background(), "not an address", "s", "<p>b</p>"); err == nil {
		t.Fatal("expected invalid recipient error")
	}
}
