package models

import (
	"time"
)

// PRState is the lifecycle state of a mirrored pull request
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// IssueState is the lifecycle state of a mirrored issue
type IssueState string

const (
	IssueStateOpen   IssueState = "open"
	IssueStateClosed IssueState = "closed"
)

// Complexity grades a pull request by its number of changed files
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Priority of an issue
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// NotificationSettings controls which channels a user is notified on
type NotificationSettings struct {
	Email     bool   `json:"email"`
	Browser   bool   `json:"browser"`
	Frequency string `json:"frequency"`
}

// AISettings holds the user's AI opt-in flags
type AISettings struct {
	Enabled     bool `json:"enabled"`
	Suggestions bool `json:"suggestions"`
}

// UserSettings is the settings sub-record of a user
type UserSettings struct {
	Notifications NotificationSettings `json:"notifications"`
	AI            AISettings           `json:"ai"`
}

// DefaultUserSettings returns the settings a user starts with
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Notifications: NotificationSettings{Email: true, Browser: true, Frequency: "instant"},
		AI:            AISettings{Enabled: true, Suggestions: true},
	}
}

// User is a dashboard account bound to exactly one GitHub account
type User struct {
	ID          string
	GitHubID    int64
	Username    string
	Email       string
	Name        string
	AvatarURL   string
	AccessToken string
	Plan        string
	Settings    UserSettings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RepositorySettings are per-repository behavior toggles
type RepositorySettings struct {
	AutoAssignReviewers bool `json:"autoAssignReviewers"`
	AISuggestions       bool `json:"aiSuggestions"`
	Notifications       bool `json:"notifications"`
}

// DefaultRepositorySettings returns the settings of a newly mirrored repository
func DefaultRepositorySettings() RepositorySettings {
	return RepositorySettings{AutoAssignReviewers: true, AISuggestions: true, Notifications: true}
}

// Repository mirrors one upstream GitHub repository
type Repository struct {
	ID          string
	GitHubID    int64
	Name        string
	FullName    string
	OwnerID     string
	Private     bool
	Description string
	Language    string
	Stars       int
	Watchers    int
	Forks       int
	AIEnabled   bool
	Settings    RepositorySettings
	// Upstream last-updated time
	UpdatedAt time.Time
}

// AnnotationEnabled reports whether new PRs and issues in this repository get AI analysis
func (r *Repository) AnnotationEnabled() bool {
	return r.AIEnabled && r.Settings.AISuggestions
}

// MergeUpstream copies the fields GitHub is authoritative for from u
func (r *Repository) MergeUpstream(u *Repository) {
	r.Name = u.Name
	r.FullName = u.FullName
	r.Private = u.Private
	r.Description = u.Description
	r.Language = u.Language
	r.Stars = u.Stars
	r.Watchers = u.Watchers
	r.Forks = u.Forks
	r.UpdatedAt = u.UpdatedAt
}

// Branch names the head and base refs of a pull request
type Branch struct {
	Head string `json:"head"`
	Base string `json:"base"`
}

// ChangeStats is a point-in-time snapshot of a pull request's size
type ChangeStats struct {
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changedFiles"`
}

// PRAnalysis is the AI annotation of a pull request.
// A nil *PRAnalysis means the pull request was never analyzed.
type PRAnalysis struct {
	Summary      string     `json:"summary"`
	Suggestions  []string   `json:"suggestions"`
	RiskScore    int        `json:"riskScore"`
	Complexity   Complexity `json:"complexity"`
	LastAnalyzed time.Time  `json:"lastAnalyzed"`
}

// PullRequest mirrors one upstream pull request
type PullRequest struct {
	ID           string
	GitHubID     int64
	Number       int
	RepositoryID string
	Title        string
	Body         string
	State        PRState
	// Local user id of the author, empty when the author has no account
	AuthorID     string
	AuthorLogin  string
	AuthorAvatar string
	Assignees    []string
	Reviewers    []string
	Labels       []string
	Branch       Branch
	Stats        ChangeStats
	HTMLURL      string
	AIAnalysis   *PRAnalysis
	Comments     []Comment
	Reviews      []Review
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MergeUpstream copies the fields GitHub is authoritative for from u.
// Stats are only taken when upstream reported them.
func (p *PullRequest) MergeUpstream(u *PullRequest) {
	p.Number = u.Number
	p.Title = u.Title
	p.Body = u.Body
	p.State = u.State
	p.AuthorLogin = u.AuthorLogin
	p.AuthorAvatar = u.AuthorAvatar
	p.Assignees = u.Assignees
	p.Reviewers = u.Reviewers
	p.Labels = u.Labels
	p.Branch = u.Branch
	if u.Stats != (ChangeStats{}) {
		p.Stats = u.Stats
	}
	p.HTMLURL = u.HTMLURL
	p.CreatedAt = u.CreatedAt
	p.UpdatedAt = u.UpdatedAt
}

// IssueAnalysis is the AI annotation of an issue.
// A nil *IssueAnalysis means the issue was never analyzed.
type IssueAnalysis struct {
	Summary         string    `json:"summary"`
	Suggestions     []string  `json:"suggestions"`
	Category        string    `json:"category"`
	SuggestedLabels []string  `json:"suggestedLabels"`
	EstimatedEffort string    `json:"estimatedEffort"`
	RelatedIssues   []int     `json:"relatedIssues"`
	LastAnalyzed    time.Time `json:"lastAnalyzed"`
}

// Issue mirrors one upstream issue
type Issue struct {
	ID           string
	GitHubID     int64
	Number       int
	RepositoryID string
	Title        string
	Body         string
	State        IssueState
	AuthorID     string
	AuthorLogin  string
	AuthorAvatar string
	Assignees    []string
	Labels       []string
	Priority     Priority
	HTMLURL      string
	AIAnalysis   *IssueAnalysis
	Comments     []Comment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MergeUpstream copies the fields GitHub is authoritative for from u
func (i *Issue) MergeUpstream(u *Issue) {
	i.Number = u.Number
	i.Title = u.Title
	i.Body = u.Body
	i.State = u.State
	i.AuthorLogin = u.AuthorLogin
	i.AuthorAvatar = u.AuthorAvatar
	i.Assignees = u.Assignees
	i.Labels = u.Labels
	i.HTMLURL = u.HTMLURL
	i.CreatedAt = u.CreatedAt
	i.UpdatedAt = u.UpdatedAt
}

// Parent types of a comment
const (
	ParentPullRequest = "pull_request"
	ParentIssue       = "issue"
)

// GitHub numbers conversation comments and diff review comments separately,
// so a comment is identified by its kind and upstream id together.
const (
	CommentConversation = "conversation"
	CommentReview       = "review"
)

// Comment is an entry in the append-only comment log of a pull request or issue
type Comment struct {
	ID          string
	GitHubID    int64
	Kind        string
	ParentType  string
	ParentID    string
	AuthorLogin string
	Body        string
	HTMLURL     string
	CreatedAt   time.Time
}

// ReviewState is the verdict of a pull request review
type ReviewState string

const (
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewCommented        ReviewState = "commented"
)

// Review is an entry in the append-only review log of a pull request
type Review struct {
	ID            string
	GitHubID      int64
	PullRequestID string
	ReviewerLogin string
	State         ReviewState
	Body          string
	CreatedAt     time.Time
}

// Counts is a total and its open subset
type Counts struct {
	Total int `json:"total"`
	Open  int `json:"open"`
}

// DashboardStats aggregates mirror counts over the repositories a user owns
type DashboardStats struct {
	Repositories int    `json:"repositories"`
	PullRequests Counts `json:"pullRequests"`
	Issues       Counts `json:"issues"`
	AIAnalyses   int    `json:"aiAnalyses"`
}
