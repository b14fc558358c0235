package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/tnpilot/tnpilot/internal/terminal"
)

// ActionType identifies one kind of automation step.
type ActionType string

const (
	ActionConnect      ActionType = "connect"
	ActionSendText     ActionType = "send_text"
	ActionSendKey      ActionType = "send_key"
	ActionMoveCursor   ActionType = "move_cursor"
	ActionWait         ActionType = "wait"
	ActionWaitForText  ActionType = "wait_for_text"
	ActionReadScreen   ActionType = "read_screen"
	ActionReadPosition ActionType = "read_position"
	ActionAssertText   ActionType = "assert_text"
	ActionScreenshot   ActionType = "screenshot"
	ActionDisconnect   ActionType = "disconnect"
)

var knownActions = map[ActionType]bool{
	ActionConnect:      true,
	ActionSendText:     true,
	ActionSendKey:      true,
	ActionMoveCursor:   true,
	ActionWait:         true,
	ActionWaitForText:  true,
	ActionReadScreen:   true,
	ActionReadPosition: true,
	ActionAssertText:   true,
	ActionScreenshot:   true,
	ActionDisconnect:   true,
}

var (
	ErrInvalidStep   = errors.New("invalid step")
	ErrInvalidScript = errors.New("invalid script")
)

// Step is one typed operation in an automation script. Steps are validated
// when a script is created or updated, not at execution time, so a running
// script never trips over a malformed parameter bag.
type Step struct {
	ID          string     `json:"id"`
	Action      ActionType `json:"action"`
	Row         *int       `json:"row,omitempty"`
	Col         *int       `json:"col,omitempty"`
	Text        string     `json:"text,omitempty"`
	Key         string     `json:"key,omitempty"`
	Timeout     float64    `json:"timeout,omitempty"`
	Description string     `json:"description,omitempty"`
}

// TimeoutDuration converts the step's timeout (seconds) to a Duration, or
// returns fallback when unset.
func (s Step) TimeoutDuration(fallback time.Duration) time.Duration {
	if s.Timeout <= 0 {
		return fallback
	}
	return time.Duration(s.Timeout * float64(time.Second))
}

// Validate checks the per-action parameter requirements.
func (s Step) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidStep)
	}
	if !knownActions[s.Action] {
		return fmt.Errorf("%w %s: unknown action %q", ErrInvalidStep, s.ID, s.Action)
	}
	switch s.Action {
	case ActionSendText:
		if s.Row == nil || s.Col == nil {
			return fmt.Errorf("%w %s: send_text requires row and col", ErrInvalidStep, s.ID)
		}
		if s.Text == "" {
			return fmt.Errorf("%w %s: send_text requires text", ErrInvalidStep, s.ID)
		}
	case ActionSendKey:
		if _, err := terminal.NormalizeKey(s.Key); err != nil {
			return fmt.Errorf("%w %s: %v", ErrInvalidStep, s.ID, err)
		}
	case ActionMoveCursor:
		if s.Row == nil || s.Col == nil {
			return fmt.Errorf("%w %s: move_cursor requires row and col", ErrInvalidStep, s.ID)
		}
	case ActionWait:
		if s.Timeout < 0 {
			return fmt.Errorf("%w %s: negative timeout", ErrInvalidStep, s.ID)
		}
	case ActionWaitForText, ActionAssertText:
		if s.Text == "" {
			return fmt.Errorf("%w %s: %s requires text", ErrInvalidStep, s.ID, s.Action)
		}
	}
	if s.Row != nil && *s.Row < 0 {
		return fmt.Errorf("%w %s: negative row", ErrInvalidStep, s.ID)
	}
	if s.Col != nil && *s.Col < 0 {
		return fmt.Errorf("%w %s: negative col", ErrInvalidStep, s.ID)
	}
	return nil
}

// Script is an ordered, named list of automation steps bound to one
// host/port/TLS target. Step order is execution-defining.
type Script struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	UseTLS      bool      `json:"use_tls"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Normalize applies wire defaults.
func (s *Script) Normalize() {
	if s.Port == 0 {
		s.Port = 23
	}
}

// Validate checks the script header and every step.
func (s *Script) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidScript)
	}
	if s.Name == "" {
		return fmt.Errorf("%w %s: missing name", ErrInvalidScript, s.ID)
	}
	if s.Host == "" {
		return fmt.Errorf("%w %s: missing host", ErrInvalidScript, s.ID)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w %s: invalid port %d", ErrInvalidScript, s.ID, s.Port)
	}
	seen := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if seen[step.ID] {
			return fmt.Errorf("%w %s: duplicate step id %q", ErrInvalidScript, s.ID, step.ID)
		}
		seen[step.ID] = true
	}
	return nil
}
