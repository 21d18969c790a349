package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/FocusBuddy/pkg/config"
	"go.uber.org/zap"
)

// LogConfigInfo logs the loaded configuration. API keys are never logged,
// only whether they are set.
func LogConfigInfo(lg *zap.Logger, cfg *config.Config) {
	lg.Info("system config load finished")
	lg.Info("global config",
		zap.String("server_name", cfg.Server.Name),
		zap.String("addr", cfg.Server.Addr),
		zap.String("mode", cfg.Server.Mode),
		zap.String("api_prefix", cfg.Server.APIPrefix),
		zap.String("monitor_prefix", cfg.Server.MonitorPrefix),
	)

	lg.Info("store config",
		zap.String("store_type", cfg.Store.Type),
		zap.String("store_dir", cfg.Store.Dir),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Int("retention_days", cfg.Store.RetentionDays),
		zap.String("retention_schedule", cfg.Store.RetentionSchedule),
		zap.String("cache_type", cfg.Cache.Type),
	)

	lg.Info("loop config",
		zap.Duration("tick_interval", cfg.Loop.TickInterval),
		zap.Duration("checkin_interval", cfg.Loop.CheckInInterval),
		zap.String("style", cfg.Loop.Style),
		zap.Int("failure_threshold", cfg.Loop.FailureThreshold),
		zap.Duration("inactivity_timeout", cfg.Loop.InactivityTimeout),
		zap.Duration("default_duration", cfg.Loop.DefaultDuration),
		zap.Bool("auto_end", cfg.Loop.AutoEnd),
	)

	lg.Info("model config",
		zap.String("vision_provider", cfg.Vision.Provider),
		zap.String("vision_model", cfg.Vision.Model),
		zap.Bool("vision_key_set", cfg.Vision.APIKey != ""),
		zap.Bool("summary_compress", cfg.Summary.Compress),
		zap.String("summary_model", cfg.Summary.LLM.Model),
		zap.String("summary_budget", fmt.Sprintf("%d %s", cfg.Summary.BudgetLimit, cfg.Summary.BudgetUnit)),
	)

	lg.Info("realtime config",
		zap.Bool("enabled", cfg.Realtime.Enabled),
		zap.String("model", cfg.Realtime.Client.Model),
		zap.String("voice", cfg.Realtime.Client.Voice),
		zap.String("audio_device", cfg.Realtime.AudioDevice),
		zap.Bool("key_set", cfg.Realtime.Client.APIKey != ""),
	)

	lg.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)
}

// PrintBannerFromFile writes the banner file to w, one shade of green per line.
func PrintBannerFromFile(w io.Writer, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;34m",
		"\x1b[38;5;40m",
		"\x1b[38;5;76m",
		"\x1b[38;5;114m",
		"\x1b[38;5;150m",
		"\x1b[38;5;194m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		if _, err := fmt.Fprintln(w, color+line+"\x1b[0m"); err != nil {
			return err
		}
	}
	return nil
}
