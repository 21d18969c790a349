package checkin

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestChooseFamily(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		changed    bool
		productive *bool
		want       Family
	}{
		{"nothing analysed yet", 0, true, nil, FamilyInactive},
		{"screen unchanged", 1, false, boolPtr(true), FamilyInactive},
		{"distracted", 0, true, boolPtr(false), FamilyDistracted},
		{"productive", 0, true, boolPtr(true), FamilyProductive},
		{"fourth check-in", 3, true, boolPtr(true), FamilyProgress},
		{"distraction beats progress", 3, true, boolPtr(false), FamilyDistracted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseFamily(tt.count, tt.changed, tt.productive))
		})
	}
}

func TestComposePrompt_FillsPlaceholders(t *testing.T) {
	p := ComposePrompt(PromptInput{Family: FamilyProgress, Task: "coding", FocusMinutes: 25})
	assert.Equal(t, "Great work on coding! You've been focused for 25 minutes now.", p)

	p = ComposePrompt(PromptInput{Family: FamilyDistracted, Count: 0, Distraction: "YouTube"})
	assert.Contains(t, p, "YouTube")
	assert.NotContains(t, p, "{")
}

func TestComposePrompt_DefaultsAndRotation(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		p := ComposePrompt(PromptInput{Family: FamilyProductive, Count: i})
		assert.Contains(t, p, "your task")
		seen[p] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t,
		ComposePrompt(PromptInput{Family: FamilyInactive, Count: 1}),
		ComposePrompt(PromptInput{Family: FamilyInactive, Count: 5}))
}

func TestComposePrompt_Styles(t *testing.T) {
	base := PromptInput{Family: FamilyProductive, Task: "writing"}

	gentle := ComposePrompt(base)
	base.Style = StyleDirect
	direct := ComposePrompt(base)
	base.Style = StyleCoach
	coach := ComposePrompt(base)

	assert.True(t, strings.HasPrefix(direct, "Check-in: "))
	assert.True(t, strings.HasPrefix(coach, gentle))
	assert.Contains(t, coach, "before the next check-in")
}

func TestComposePrompt_AppendsSummary(t *testing.T) {
	p := ComposePrompt(PromptInput{Family: FamilyInactive, Summary: "Editing code. Browsing video."})
	assert.True(t, strings.HasSuffix(p, "\nRecent activity: Editing code. Browsing video."))
}

func TestParseStyle(t *testing.T) {
	s, err := ParseStyle(" Coach ")
	require.NoError(t, err)
	assert.Equal(t, StyleCoach, s)

	s, err = ParseStyle("")
	require.NoError(t, err)
	assert.Equal(t, StyleGentle, s)

	_, err = ParseStyle("harsh")
	assert.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.TickInterval = 0
	s.FailureThreshold = 0
	s.Style = "loud"
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick interval")
	assert.Contains(t, err.Error(), "failure threshold")
	assert.Contains(t, err.Error(), "loud")

	s = DefaultSettings()
	s.MaxRetries = 5
	assert.Equal(t, 1, s.retries())
	s.InactivityTimeout = -time.Second
	assert.Error(t, s.Validate())
}
