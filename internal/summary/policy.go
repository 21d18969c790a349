package summary

import (
	"context"
	"strings"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"go.uber.org/zap"
)

// Compressor rewrites an over-budget summary. Implementations call a hosted
// summarization model.
type Compressor interface {
	Compress(ctx context.Context, current, incoming string, budget Budget) (string, error)
}

// Result is the outcome of one Update.
type Result struct {
	Text string
	// Compressed is set when the combined text exceeded the budget.
	Compressed bool
	// Fallback is set when the recency trim replaced or corrected the
	// compressor output.
	Fallback bool
}

// Policy keeps a ContextSummary within its Budget.
type Policy struct {
	budget     Budget
	compressor Compressor
	logger     *zap.Logger
}

// NewPolicy creates a policy. compressor may be nil, in which case over-budget
// summaries are only trimmed.
func NewPolicy(budget Budget, compressor Compressor, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.L()
	}
	return &Policy{budget: budget, compressor: compressor, logger: logger}
}

// Budget returns the configured budget.
func (p *Policy) Budget() Budget {
	return p.budget
}

// Update folds incoming into current. When the combination exceeds the budget
// it is re-compressed, and the newest sentences win whenever something has to
// be dropped. The returned text never exceeds the budget.
func (p *Policy) Update(ctx context.Context, current, incoming string) (Result, error) {
	incoming = ensureSentence(incoming)
	current = strings.TrimSpace(current)
	if incoming == "" {
		return Result{Text: TrimToRecent(current, p.budget)}, nil
	}

	combined := incoming
	if current != "" {
		combined = current + " " + incoming
	}
	if p.budget.Fits(combined) {
		return Result{Text: combined}, nil
	}

	p.logger.Debug("summary over budget",
		zap.Error(errs.ErrBudgetExceeded),
		zap.Int("size", p.budget.Measure(combined)),
		zap.Stringer("budget", p.budget),
	)

	res := Result{Compressed: true}
	if p.compressor != nil {
		compressed, err := p.compressor.Compress(ctx, current, incoming, p.budget)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Text: TrimToRecent(current, p.budget)}, ctx.Err()
			}
			p.logger.Warn("summary compression failed, trimming instead", zap.Error(err))
		} else if compressed = strings.TrimSpace(compressed); compressed != "" && p.budget.Fits(compressed) {
			res.Text = compressed
			return res, nil
		} else {
			p.logger.Debug("compressed summary still over budget, trimming",
				zap.Int("size", p.budget.Measure(compressed)))
		}
	}

	res.Fallback = true
	res.Text = TrimToRecent(combined, p.budget)
	return res, nil
}
