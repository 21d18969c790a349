package checkin

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Style is the tone of check-in prompts.
type Style string

const (
	StyleGentle Style = "gentle"
	StyleDirect Style = "direct"
	StyleCoach  Style = "coach"
)

// ParseStyle accepts a style name case-insensitively. Empty means gentle.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleGentle:
		return StyleGentle, nil
	case StyleDirect:
		return StyleDirect, nil
	case StyleCoach:
		return StyleCoach, nil
	}
	return "", fmt.Errorf("unknown check-in style %q", s)
}

// Settings is an immutable loop configuration. Changes go through
// Loop.UpdateSettings and take effect at the next tick.
type Settings struct {
	TickInterval    time.Duration `json:"tickInterval"`
	CheckInInterval time.Duration `json:"checkInInterval"`
	Style           Style         `json:"style"`
	// Instruction overrides the vision instruction.
	Instruction string `json:"instruction,omitempty"`
	// MaxRetries is the number of immediate retries of a transient failure
	// within one tick. Values above 1 are clamped.
	MaxRetries       int           `json:"maxRetries"`
	FailureThreshold int           `json:"failureThreshold"`
	StageTimeout     time.Duration `json:"stageTimeout"`
	// InactivityTimeout ends the session when nothing changed for this long.
	// Zero disables it.
	InactivityTimeout time.Duration `json:"inactivityTimeout"`
	// AutoEnd ends the session once its planned duration has elapsed.
	AutoEnd bool `json:"autoEnd"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		TickInterval:     60 * time.Second,
		CheckInInterval:  120 * time.Second,
		Style:            StyleGentle,
		MaxRetries:       1,
		FailureThreshold: 3,
		StageTimeout:     45 * time.Second,
	}
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	var problems []error
	if s.TickInterval <= 0 {
		problems = append(problems, errors.New("tick interval must be positive"))
	}
	if s.CheckInInterval < s.TickInterval {
		problems = append(problems, fmt.Errorf("check-in interval %s is shorter than tick interval %s", s.CheckInInterval, s.TickInterval))
	}
	if _, err := ParseStyle(string(s.Style)); err != nil {
		problems = append(problems, err)
	}
	if s.MaxRetries < 0 {
		problems = append(problems, errors.New("max retries must not be negative"))
	}
	if s.FailureThreshold < 1 {
		problems = append(problems, errors.New("failure threshold must be at least 1"))
	}
	if s.InactivityTimeout < 0 {
		problems = append(problems, errors.New("inactivity timeout must not be negative"))
	}
	return errors.Join(problems...)
}

func (s Settings) retries() int {
	if s.MaxRetries > 1 {
		return 1
	}
	return s.MaxRetries
}
