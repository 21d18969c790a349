package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level string `env:"LOG_LEVEL"`
	// Filename 为空时只输出到终端
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"` // MB
	MaxAge     int    `env:"LOG_MAX_AGE"`  // 天
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
	Daily      bool   `env:"LOG_DAILY"`
}

// Lg 全局 logger，Init 之前为 Nop
var Lg = zap.NewNop()

var levelColor = map[zapcore.Level]string{
	zapcore.DebugLevel: "\x1b[35m",
	zapcore.InfoLevel:  "\x1b[36m",
	zapcore.WarnLevel:  "\x1b[33m",
}

// Init 初始化全局 logger 并替换 zap.L()
func Init(cfg *LogConfig, mode string) error {
	lg, err := New(cfg, mode)
	if err != nil {
		return err
	}
	Lg = lg
	zap.ReplaceGlobals(Lg)
	Lg.Info("init logger success", zap.String("level", cfg.Level), zap.String("mode", mode))
	return nil
}

// New builds a logger from cfg. Development mode tees a colored console
// output next to the JSON file; errors go to stderr.
func New(cfg *LogConfig, mode string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var cores []zapcore.Core
	if cfg.Filename != "" {
		cores = append(cores, zapcore.NewCore(jsonEncoder(), fileWriter(cfg), level))
	}
	if isDev(mode) || cfg.Filename == "" {
		console := consoleEncoder()
		high := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel && l >= level })
		low := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.ErrorLevel && l >= level })
		cores = append(cores,
			zapcore.NewCore(console, zapcore.Lock(os.Stdout), low),
			zapcore.NewCore(console, zapcore.Lock(os.Stderr), high),
		)
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Named returns a child of the global logger for one component.
func Named(component string) *zap.Logger {
	return zap.L().Named(component)
}

// Sync 刷新缓冲区
func Sync() {
	_ = Lg.Sync()
}

func isDev(mode string) bool {
	mode = strings.ToLower(mode)
	return mode == "dev" || mode == "development"
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(ec)
}

func consoleEncoder() zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + t.Format("15:04:05.000") + "\x1b[0m")
	}
	// 级别着色，错误及以上为红色
	ec.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		color, ok := levelColor[l]
		if !ok {
			color = "\x1b[31m"
		}
		enc.AppendString(color + "[" + l.CapitalString() + "]\x1b[0m")
	}
	ec.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + c.TrimmedPath() + "\x1b[0m")
	}
	return zapcore.NewConsoleEncoder(ec)
}

func fileWriter(cfg *LogConfig) zapcore.WriteSyncer {
	filename := cfg.Filename
	if cfg.Daily {
		filename = DailyFilename(filename, time.Now())
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		LocalTime:  true,
	})
}

// DailyFilename 按日期分割：app.log -> app-2006-01-02.log
func DailyFilename(filename string, day time.Time) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "-" + day.Format("2006-01-02") + ext
}
