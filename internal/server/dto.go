package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wesm/collabhub/internal/ai"
	"github.com/wesm/collabhub/internal/models"
	"github.com/wesm/collabhub/internal/payload"
)

type loginRequest struct {
	Code string `json:"code"`
}

func (l loginRequest) validate() error {
	if strings.TrimSpace(l.Code) == "" {
		return errors.New("code is required")
	}
	return nil
}

type createIssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels"`
	Assignees []string `json:"assignees"`
}

func (c createIssueRequest) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("title is required")
	}
	for i, label := range c.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("labels[%d] is empty", i)
		}
	}
	return nil
}

type suggestionRequest struct {
	Type    string     `json:"type"`
	Content string     `json:"content"`
	Context ai.Context `json:"context"`
}

func (s suggestionRequest) validate() error {
	if !ai.Kind(s.Type).Valid() {
		return fmt.Errorf("unsupported type %q", s.Type)
	}
	if strings.TrimSpace(s.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}

type userSettingsRequest struct {
	Settings *models.UserSettings `json:"settings"`
}

func (u userSettingsRequest) validate() error {
	if u.Settings == nil {
		return errors.New("settings are required")
	}
	return nil
}

type repositorySettingsRequest struct {
	AIEnabled *bool                      `json:"aiEnabled"`
	Settings  *models.RepositorySettings `json:"settings"`
}

func (r repositorySettingsRequest) validate() error {
	if r.AIEnabled == nil && r.Settings == nil {
		return errors.New("aiEnabled or settings is required")
	}
	return nil
}

type authorizeResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  payload.User `json:"user"`
}

type suggestionResponse struct {
	Suggestions []string `json:"suggestions"`
}
