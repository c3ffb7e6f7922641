// Package notify fans mirror events out to connected dashboard clients and
// to repository collaborators by email.
package notify

import (
	"bytes"
	"context"
	"html/template"
	"log"
	"sync"
	"time"

	"github.com/wesm/collabhub/internal/models"
	"github.com/wesm/collabhub/internal/payload"
)

// Server frame events
const (
	EventPROpened     = "pr-opened"
	EventIssueCreated = "issue-created"
	EventIssueOpened  = "issue-opened"
	EventCommentAdded = "comment-added"
)

const emailTimeout = 30 * time.Second

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "pull_request"}}<h2>New Pull Request</h2>
<p><strong>Repository:</strong> {{.Repository}}</p>
<p><strong>Title:</strong> {{.Title}}</p>
<p><strong>Author:</strong> {{.Author}}</p>
<p><a href="{{.URL}}">View Pull Request</a></p>
{{end}}
{{define "issue"}}<h2>New Issue</h2>
<p><strong>Repository:</strong> {{.Repository}}</p>
<p><strong>Title:</strong> {{.Title}}</p>
<p><strong>Author:</strong> {{.Author}}</p>
<p><a href="{{.URL}}">View Issue</a></p>
{{end}}
`))

type emailData struct {
	Repository string
	Title      string
	Author     string
	URL        string
}

// Broadcaster delivers an event to the clients in a room
type Broadcaster interface {
	Broadcast(room, event string, data any)
}

// CollaboratorLister returns the collaborators of a repository
type CollaboratorLister interface {
	ListCollaborators(ctx context.Context, repoID string) ([]*models.User, error)
}

// Dispatcher emits real-time events and emails. Both channels are fire and
// forget: failures are logged and never returned.
type Dispatcher struct {
	collaborators CollaboratorLister
	hub           Broadcaster
	mailer        Mailer
	wg            sync.WaitGroup
}

// NewDispatcher creates a dispatcher. hub and mailer may be nil to disable a channel.
func NewDispatcher(collaborators CollaboratorLister, hub Broadcaster, mailer Mailer) *Dispatcher {
	return &Dispatcher{collaborators: collaborators, hub: hub, mailer: mailer}
}

// PullRequestOpened announces a newly mirrored pull request
func (d *Dispatcher) PullRequestOpened(ctx context.Context, repo *models.Repository, pr *models.PullRequest) {
	d.broadcast(repo, EventPROpened, map[string]any{
		"pullRequest": payload.MapPullRequest(pr),
		"repository":  repo.Name,
	})
	d.email(ctx, repo, "New Pull Request: "+pr.Title, "pull_request", emailData{
		Repository: repo.FullName,
		Title:      pr.Title,
		Author:     pr.AuthorLogin,
		URL:        pr.HTMLURL,
	})
}

// IssueCreated announces an issue created through the dashboard
func (d *Dispatcher) IssueCreated(ctx context.Context, repo *models.Repository, issue *models.Issue) {
	d.issue(ctx, repo, issue, EventIssueCreated)
}

// IssueOpened announces an issue opened upstream and received by webhook
func (d *Dispatcher) IssueOpened(ctx context.Context, repo *models.Repository, issue *models.Issue) {
	d.issue(ctx, repo, issue, EventIssueOpened)
}

func (d *Dispatcher) issue(ctx context.Context, repo *models.Repository, issue *models.Issue, event string) {
	d.broadcast(repo, event, map[string]any{
		"issue":      payload.MapIssue(issue),
		"repository": repo.Name,
	})
	d.email(ctx, repo, "New Issue: "+issue.Title, "issue", emailData{
		Repository: repo.FullName,
		Title:      issue.Title,
		Author:     issue.AuthorLogin,
		URL:        issue.HTMLURL,
	})
}

// CommentAdded announces a comment appended to a pull request or issue.
// Comments are not emailed.
func (d *Dispatcher) CommentAdded(ctx context.Context, repo *models.Repository, comment *models.Comment) {
	d.broadcast(repo, EventCommentAdded, map[string]any{
		"comment":    payload.MapComment(*comment),
		"parentType": comment.ParentType,
		"parentId":   comment.ParentID,
		"repository": repo.Name,
	})
}

// Wait blocks until in-flight emails are sent
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) broadcast(repo *models.Repository, event string, data any) {
	if d.hub == nil {
		return
	}
	d.hub.Broadcast(RoomFor(repo.ID), event, data)
}

func (d *Dispatcher) email(ctx context.Context, repo *models.Repository, subject, tmpl string, data emailData) {
	if d.mailer == nil || !repo.Settings.Notifications {
		return
	}

	users, err := d.collaborators.ListCollaborators(ctx, repo.ID)
	if err != nil {
		log.Printf("Warning: failed to list collaborators of %s: %v", repo.FullName, err)
		return
	}

	var recipients []string
	for _, u := range users {
		if u.Email != "" && u.Settings.Notifications.Email {
			recipients = append(recipients, u.Email)
		}
	}
	if len(recipients) == 0 {
		return
	}

	var body bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&body, tmpl, data); err != nil {
		log.Printf("Warning: failed to render %s email: %v", tmpl, err)
		return
	}
	html := body.String()

	for _, to := range recipients {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.Background(), emailTimeout)
			defer cancel()
			if err := d.mailer.Send(sendCtx, to, subject, html); err != nil {
				log.Printf("Warning: failed to email %s: %v", to, err)
			}
		}()
	}
}
