package types //nolint:revive // package name is intentional

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// ModerationInput accepts the string and []string wire forms of "input".
type ModerationInput struct {
	Text  *string
	Texts []string
}

// UnmarshalJSON implements custom JSON unmarshaling.
func (m *ModerationInput) UnmarshalJSON(data []byte) error {
	m.Text = nil
	m.Texts = nil

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("input cannot be null")
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = &s
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		m.Texts = list
		return nil
	}

	return fmt.Errorf("input must be string or []string")
}

// MarshalJSON implements custom JSON marshaling.
func (m ModerationInput) MarshalJSON() ([]byte, error) {
	if m.Text != nil {
		return json.Marshal(*m.Text)
	}
	if m.Texts != nil {
		return json.Marshal(m.Texts)
	}
	return nil, fmt.Errorf("input is empty")
}

// ModerationRequest represents an OpenAI-compatible moderation request.
type ModerationRequest struct {
	Input ModerationInput `json:"input"`
	Model string          `json:"model,omitempty"`
}

// Validate checks the moderation request.
func (r *ModerationRequest) Validate() error {
	if r.Input.Text == nil && len(r.Input.Texts) == 0 {
		return fmt.Errorf("input is required")
	}
	return nil
}

// ModerationResponse represents a moderation response.
type ModerationResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Results []ModerationResult `json:"results"`
}

// ModerationResult represents moderation output for one input.
type ModerationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}
