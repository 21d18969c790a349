package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/cache"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	calls int
	text  string
	err   error
	last  llm.VisionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Describe(_ context.Context, req llm.VisionRequest) (string, error) {
	f.calls++
	f.last = req
	return f.text, f.err
}

func (f *fakeProvider) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return "", errors.New("not used")
}

func TestAnalyzer_AnalyzeAppliesHeuristics(t *testing.T) {
	p := &fakeProvider{text: "The user is coding in VS Code and debugging a Go test in the Terminal."}
	a := NewAnalyzer(p, nil, Options{}, zap.NewNop())

	res, err := a.Analyze(context.Background(), []byte("jpeg"), "")
	require.NoError(t, err)

	assert.True(t, res.Productive)
	assert.Equal(t, []string{"VS Code", "Terminal"}, res.Apps)
	assert.Contains(t, res.Activities, "coding")
	assert.Contains(t, res.Activities, "debugging")
	assert.Equal(t, DefaultInstruction, p.last.Instruction)
	assert.Equal(t, SystemPrompt, p.last.System)
	assert.Equal(t, "image/jpeg", p.last.MIMEType)
}

func TestAnalyzer_IdenticalFrameUsesCache(t *testing.T) {
	p := &fakeProvider{text: "Watching a video on YouTube."}
	c := cache.NewLRUCache(cache.LocalConfig{})
	a := NewAnalyzer(p, c, Options{CacheTTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	first, err := a.Analyze(ctx, []byte("same"), "")
	require.NoError(t, err)
	second, err := a.Analyze(ctx, []byte("same"), "")
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.False(t, second.Productive)

	_, err = a.Analyze(ctx, []byte("different"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestAnalyzer_FailureIsAnalysisFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("request timeout")}
	a := NewAnalyzer(p, nil, Options{}, zap.NewNop())

	_, err := a.Analyze(context.Background(), []byte("jpeg"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAnalysisFailure))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.SeverityTransient, e.Severity)
}

func TestAnalyzer_EmptyFrame(t *testing.T) {
	p := &fakeProvider{}
	a := NewAnalyzer(p, nil, Options{}, zap.NewNop())

	_, err := a.Analyze(context.Background(), nil, "")
	assert.True(t, errors.Is(err, errs.ErrAnalysisFailure))
	assert.Zero(t, p.calls)
}

func TestIsProductive(t *testing.T) {
	testCases := []struct {
		text     string
		expected bool
	}{
		{"Editing code in GoLand", true},
		{"Browsing video on YouTube", false},
		{"This looks like a distraction from work", false},
		{"Productive session in a spreadsheet", true},
		{"The user is not productive right now", false},
		{"An empty desktop", false},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsProductive(tc.text))
		})
	}
}
