package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"go.uber.org/zap"
)

// OutPlaceholder is replaced by the temporary output path in Command.
const OutPlaceholder = "{out}"

// ScreenCapturer produces screenshots on demand.
type ScreenCapturer interface {
	Capture(ctx context.Context) (Frame, error)
}

// ScreenConfig configures CommandCapturer.
type ScreenConfig struct {
	// Dir receives the re-encoded frames.
	Dir string
	// Command runs a screenshot utility; "{out}" marks the output file.
	// Empty means detect one for the current platform.
	Command     []string
	MaxWidth    int
	Quality     int
	MaxCaptures int
	Timeout     time.Duration
}

// CommandCapturer shells out to the platform screenshot utility.
type CommandCapturer struct {
	cfg    ScreenConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewCommandCapturer creates a capturer writing frames into cfg.Dir.
func NewCommandCapturer(cfg ScreenConfig, logger *zap.Logger) (*CommandCapturer, error) {
	if logger == nil {
		logger = zap.L()
	}
	if len(cfg.Command) == 0 {
		cmd, err := DetectCommand()
		if err != nil {
			return nil, err
		}
		cfg.Command = cmd
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	return &CommandCapturer{cfg: cfg, logger: logger, now: time.Now}, nil
}

// DetectCommand picks a screenshot utility available on this machine.
func DetectCommand() ([]string, error) {
	var candidates [][]string
	switch runtime.GOOS {
	case "darwin":
		candidates = [][]string{{"screencapture", "-x", "-t", "png", OutPlaceholder}}
	case "linux", "freebsd":
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			candidates = append(candidates, []string{"grim", OutPlaceholder})
		}
		candidates = append(candidates,
			[]string{"scrot", "-o", OutPlaceholder},
			[]string{"import", "-window", "root", OutPlaceholder},
		)
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c[0]); err == nil {
			return c, nil
		}
	}
	return nil, errs.CaptureFailure(fmt.Errorf("no screenshot utility found for %s", runtime.GOOS))
}

// Capture takes one screenshot. Failures are CaptureFailure.
func (c *CommandCapturer) Capture(ctx context.Context) (Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "focusbuddy-*.png")
	if err != nil {
		return Frame{}, errs.CaptureFailure(err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	args := make([]string, len(c.cfg.Command))
	for i, a := range c.cfg.Command {
		args[i] = strings.ReplaceAll(a, OutPlaceholder, tmpPath)
	}
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return Frame{}, errs.CaptureFailure(fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out))))
	}

	raw, err := os.ReadFile(tmpPath)
	if err != nil {
		return Frame{}, errs.CaptureFailure(err)
	}
	if len(raw) == 0 {
		return Frame{}, errs.CaptureFailure(errors.New("screenshot utility wrote an empty file"))
	}
	data, bounds, err := Prepare(raw, c.cfg.MaxWidth, c.cfg.Quality)
	if err != nil {
		return Frame{}, errs.CaptureFailure(err)
	}

	now := c.now()
	ref := filepath.Join(c.cfg.Dir, now.Format("20060102_150405.000")+".jpg")
	if err := os.WriteFile(ref, data, 0o644); err != nil {
		return Frame{}, errs.CaptureFailure(err)
	}
	c.prune()

	return Frame{Data: data, Ref: ref, CapturedAt: now, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// prune keeps the newest MaxCaptures frames.
func (c *CommandCapturer) prune() {
	if c.cfg.MaxCaptures <= 0 {
		return
	}
	files, err := filepath.Glob(filepath.Join(c.cfg.Dir, "*.jpg"))
	if err != nil || len(files) <= c.cfg.MaxCaptures {
		return
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-c.cfg.MaxCaptures] {
		if err := os.Remove(f); err != nil {
			c.logger.Warn("remove old capture", zap.String("file", f), zap.Error(err))
		}
	}
}
