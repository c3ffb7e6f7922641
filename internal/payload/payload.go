// Package payload maps models to the JSON shapes sent to dashboard clients,
// over HTTP and over the real-time channel.
package payload

import (
	"time"

	"github.com/wesm/collabhub/internal/models"
)

// User is the public view of a user. The access token is never included.
type User struct {
	ID        string              `json:"id"`
	GitHubID  int64               `json:"githubId"`
	Username  string              `json:"username"`
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	AvatarURL string              `json:"avatarUrl"`
	Plan      string              `json:"plan"`
	Settings  models.UserSettings `json:"settings"`
}

// Collaborator is a user with access to a repository they do not own
type Collaborator struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Repository summary
type Repository struct {
	ID          string                    `json:"id"`
	GitHubID    int64                     `json:"githubId"`
	Name        string                    `json:"name"`
	FullName    string                    `json:"fullName"`
	Description string                    `json:"description"`
	Language    string                    `json:"language"`
	Private     bool                      `json:"private"`
	Stars       int                       `json:"stars"`
	Watchers    int                       `json:"watchers"`
	Forks       int                       `json:"forks"`
	AIEnabled   bool                      `json:"aiEnabled"`
	Settings    models.RepositorySettings `json:"settings"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
}

// Comment in a pull request or issue log
type Comment struct {
	ID        string    `json:"id"`
	GitHubID  int64     `json:"githubId"`
	Kind      string    `json:"kind"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"htmlUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// Review in a pull request log
type Review struct {
	ID        string    `json:"id"`
	GitHubID  int64     `json:"githubId"`
	Reviewer  string    `json:"reviewer"`
	State     string    `json:"state"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// PullRequest with its embedded AI analysis
type PullRequest struct {
	ID         string             `json:"id"`
	GitHubID   int64              `json:"githubId"`
	Number     int                `json:"number"`
	Title      string             `json:"title"`
	Body       string             `json:"body"`
	State      string             `json:"state"`
	Author     string             `json:"author"`
	Avatar     string             `json:"authorAvatar"`
	Assignees  []string           `json:"assignees"`
	Reviewers  []string           `json:"reviewers"`
	Labels     []string           `json:"labels"`
	Branch     models.Branch      `json:"branch"`
	Stats      models.ChangeStats `json:"stats"`
	HTMLURL    string             `json:"htmlUrl"`
	AIAnalysis *models.PRAnalysis `json:"aiAnalysis,omitempty"`
	Comments   []Comment          `json:"comments,omitempty"`
	Reviews    []Review           `json:"reviews,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Issue with its embedded AI analysis
type Issue struct {
	ID         string                `json:"id"`
	GitHubID   int64                 `json:"githubId"`
	Number     int                   `json:"number"`
	Title      string                `json:"title"`
	Body       string                `json:"body"`
	State      string                `json:"state"`
	Author     string                `json:"author"`
	Avatar     string                `json:"authorAvatar"`
	Assignees  []string              `json:"assignees"`
	Labels     []string              `json:"labels"`
	Priority   string                `json:"priority"`
	HTMLURL    string                `json:"htmlUrl"`
	AIAnalysis *models.IssueAnalysis `json:"aiAnalysis,omitempty"`
	Comments   []Comment             `json:"comments,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

func copyStrings(items []string) []string {
	return append([]string{}, items...)
}

// MapUser converts a stored user
func MapUser(u *models.User) User {
	return User{
		ID:        u.ID,
		GitHubID:  u.GitHubID,
		Username:  u.Username,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Plan:      u.Plan,
		Settings:  u.Settings,
	}
}

func MapCollaborators(users []*models.User) []Collaborator {
	out := make([]Collaborator, 0, len(users))
	for _, u := range users {
		out = append(out, Collaborator{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL})
	}
	return out
}

// MapRepository converts a mirrored repository
func MapRepository(r *models.Repository) Repository {
	return Repository{
		ID:          r.ID,
		GitHubID:    r.GitHubID,
		Name:        r.Name,
		FullName:    r.FullName,
		Description: r.Description,
		Language:    r.Language,
		Private:     r.Private,
		Stars:       r.Stars,
		Watchers:    r.Watchers,
		Forks:       r.Forks,
		AIEnabled:   r.AIEnabled,
		Settings:    r.Settings,
		UpdatedAt:   r.UpdatedAt,
	}
}

func MapRepositories(repos []*models.Repository) []Repository {
	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, MapRepository(r))
	}
	return out
}

func MapComment(c models.Comment) Comment {
	return Comment{
		ID:        c.ID,
		GitHubID:  c.GitHubID,
		Kind:      c.Kind,
		Author:    c.AuthorLogin,
		Body:      c.Body,
		HTMLURL:   c.HTMLURL,
		CreatedAt: c.CreatedAt,
	}
}

func mapComments(comments []models.Comment) []Comment {
	if len(comments) == 0 {
		return nil
	}
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, MapComment(c))
	}
	return out
}

func mapReviews(reviews []models.Review) []Review {
	if len(reviews) == 0 {
		return nil
	}
	out := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, Review{
			ID:        r.ID,
			GitHubID:  r.GitHubID,
			Reviewer:  r.ReviewerLogin,
			State:     string(r.State),
			Body:      r.Body,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

// MapPullRequest converts a mirrored pull request
func MapPullRequest(pr *models.PullRequest) PullRequest {
	return PullRequest{
		ID:         pr.ID,
		GitHubID:   pr.GitHubID,
		Number:     pr.Number,
		Title:      pr.Title,
		Body:       pr.Body,
		State:      string(pr.State),
		Author:     pr.AuthorLogin,
		Avatar:     pr.AuthorAvatar,
		Assignees:  copyStrings(pr.Assignees),
		Reviewers:  copyStrings(pr.Reviewers),
		Labels:     copyStrings(pr.Labels),
		Branch:     pr.Branch,
		Stats:      pr.Stats,
		HTMLURL:    pr.HTMLURL,
		AIAnalysis: pr.AIAnalysis,
		Comments:   mapComments(pr.Comments),
		Reviews:    mapReviews(pr.Reviews),
		CreatedAt:  pr.CreatedAt,
		UpdatedAt:  pr.UpdatedAt,
	}
}

func MapPullRequests(prs []*models.PullRequest) []PullRequest {
	out := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, MapPullRequest(pr))
	}
	return out
}

// MapIssue converts a mirrored issue
func MapIssue(issue *models.Issue) Issue {
	return Issue{
		ID:         issue.ID,
		GitHubID:   issue.GitHubID,
		Number:     issue.Number,
		Title:      issue.Title,
		Body:       issue.Body,
		State:      string(issue.State),
		Author:     issue.AuthorLogin,
		Avatar:     issue.AuthorAvatar,
		Assignees:  copyStrings(issue.Assignees),
		Labels:     copyStrings(issue.Labels),
		Priority:   string(issue.Priority),
		HTMLURL:    issue.HTMLURL,
		AIAnalysis: issue.AIAnalysis,
		Comments:   mapComments(issue.Comments),
		CreatedAt:  issue.CreatedAt,
		UpdatedAt:  issue.UpdatedAt,
	}
}

func MapIssues(issues []*models.Issue) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, MapIssue(issue))
	}
	return out
}
