package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/cache"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/llm"
	"go.uber.org/zap"
)

// SystemPrompt frames every vision request.
const SystemPrompt = `You are Focus Buddy, a productivity assistant that helps people stay focused during deep work sessions.
Be concise, supportive and direct.`

// DefaultInstruction asks for a short description of the screen.
const DefaultInstruction = `Analyze this screenshot of the user's screen and briefly summarize what they are working on.
Identify the application or website, the specific task or content, and whether it looks like productive work or a distraction.
Be factual and answer in 2-3 sentences.`

var errEmptyFrame = errors.New("empty frame")

// Result is one analysed frame.
type Result struct {
	Text       string   `json:"text"`
	Productive bool     `json:"productive"`
	Apps       []string `json:"apps,omitempty"`
	Activities []string `json:"activities,omitempty"`
	Cached     bool     `json:"-"`
}

// Options tunes an Analyzer.
type Options struct {
	System    string
	MaxTokens int
	Detail    string
	// CacheTTL is how long a description of an identical frame is reused.
	CacheTTL time.Duration
}

// Analyzer describes screenshots with a hosted vision model.
type Analyzer struct {
	provider llm.Provider
	cache    cache.Cache
	opts     Options
	errh     *errs.ErrHandler
	logger   *zap.Logger
}

// NewAnalyzer creates an analyzer. c may be nil to disable result caching.
func NewAnalyzer(provider llm.Provider, c cache.Cache, opts Options, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.L()
	}
	if opts.System == "" {
		opts.System = SystemPrompt
	}
	return &Analyzer{
		provider: provider,
		cache:    c,
		opts:     opts,
		errh:     errs.NewErrHandler(logger),
		logger:   logger,
	}
}

// Analyze describes frame following instruction. Failures are returned as
// AnalysisFailure carrying the severity of the cause.
func (a *Analyzer) Analyze(ctx context.Context, frame []byte, instruction string) (Result, error) {
	if len(frame) == 0 {
		return Result{}, errs.AnalysisFailure(errs.SeverityRecoverable, errEmptyFrame)
	}
	if instruction == "" {
		instruction = DefaultInstruction
	}

	key := cacheKey(frame, instruction)
	if a.cache != nil {
		var cached Result
		if cache.GetJSON(ctx, a.cache, key, &cached) {
			cached.Cached = true
			return cached, nil
		}
	}

	start := time.Now()
	text, err := a.provider.Describe(ctx, llm.VisionRequest{
		Image:       frame,
		MIMEType:    "image/jpeg",
		Instruction: instruction,
		System:      a.opts.System,
		MaxTokens:   a.opts.MaxTokens,
		Detail:      a.opts.Detail,
	})
	if err != nil {
		return Result{}, errs.AnalysisFailure(a.errh.Severity(err), err)
	}
	a.logger.Debug("frame analysed",
		zap.String("provider", a.provider.Name()),
		zap.Duration("latency", time.Since(start)),
		zap.Int("bytes", len(frame)),
	)

	res := Result{
		Text:       text,
		Productive: IsProductive(text),
		Apps:       DetectApps(text),
		Activities: DetectActivities(text),
	}
	if a.cache != nil && a.opts.CacheTTL > 0 {
		if err := cache.SetJSON(ctx, a.cache, key, res, a.opts.CacheTTL); err != nil {
			a.logger.Warn("cache analysis result failed", zap.Error(err))
		}
	}
	return res, nil
}

func cacheKey(frame []byte, instruction string) string {
	h := sha256.New()
	h.Write(frame)
	h.Write([]byte{0})
	h.Write([]byte(instruction))
	return "vision:" + hex.EncodeToString(h.Sum(nil))
}
