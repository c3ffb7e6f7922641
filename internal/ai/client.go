package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/models"
)

// Kind selects a prompt template
type Kind string

const (
	KindPRReview      Kind = "pr_review"
	KindIssueAnalysis Kind = "issue_analysis"
)

// Valid reports whether k names a known prompt template
func (k Kind) Valid() bool {
	return k == KindPRReview || k == KindIssueAnalysis
}

// Context carries the fields interpolated into a prompt
type Context struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	FilesChanged int    `json:"filesChanged"`
}

// Annotator produces free-text analysis of a pull request or issue
type Annotator interface {
	Annotate(ctx context.Context, kind Kind, content string, c Context) (string, error)
}

const systemPrompt = "You are an expert software engineer and code reviewer. " +
	"Provide helpful, specific, and actionable suggestions. Be concise but thorough."

// Client is an Annotator backed by an OpenAI-compatible chat completion API
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

var _ Annotator = (*Client)(nil)

// NewClient creates a client from cfg. A client without an API key fails
// every call with ErrAIUnavailable.
func NewClient(cfg config.AIConfig) *Client {
	c := &Client{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if cfg.APIKey == "" {
		return c
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	c.client = openai.NewClientWithConfig(oc)
	return c
}

// Annotate sends the prompt for kind and returns the model's reply
func (c *Client) Annotate(ctx context.Context, kind Kind, content string, pc Context) (string, error) {
	prompt, err := BuildPrompt(kind, content, pc)
	if err != nil {
		return "", err
	}
	if c.client == nil {
		return "", fmt.Errorf("no api key configured: %w", models.ErrAIUnavailable)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %v", models.ErrAIUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", models.ErrAIUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned empty text: %w", models.ErrAIUnavailable)
	}
	return text, nil
}

// BuildPrompt renders the prompt template for kind
func BuildPrompt(kind Kind, content string, c Context) (string, error) {
	var b strings.Builder

	switch kind {
	case KindPRReview:
		b.WriteString("Analyze this pull request and provide helpful suggestions for improvement.\n\n")
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
		fmt.Fprintf(&b, "Files changed: %d\n", c.FilesChanged)
		fmt.Fprintf(&b, "Code diff:\n%s\n\n", content)
		b.WriteString("Reply in exactly this format:\n")
		b.WriteString("Risk: <integer 0-100 estimating the chance this change introduces a defect>\n")
		b.WriteString("- <suggestion>\n")
		b.WriteString("Give 3-5 specific, actionable suggestions for code quality, security, performance, or best practices, ")
		b.WriteString("one per line, each starting with \"- \".")

	case KindIssueAnalysis:
		b.WriteString("Analyze this GitHub issue and provide helpful suggestions.\n\n")
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
		fmt.Fprintf(&b, "Description: %s\n\n", content)
		b.WriteString("Reply in exactly this format:\n")
		b.WriteString("Category: <bug|feature|enhancement|documentation|question>\n")
		b.WriteString("Effort: <low|medium|high>\n")
		b.WriteString("Labels: <comma separated labels>\n")
		b.WriteString("Related: <comma separated #numbers of related issues, or none>\n")
		b.WriteString("- <suggestion>\n")
		b.WriteString("Give 3-5 suggestions covering how to better describe the issue, what information might be missing, ")
		b.WriteString("and potential next steps, one per line, each starting with \"- \".")

	default:
		return "", fmt.Errorf("unknown suggestion type %q: %w", kind, models.ErrValidation)
	}

	return b.String(), nil
}
