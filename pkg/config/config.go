package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/cache"
	"github.com/code-100-precent/FocusBuddy/pkg/llm"
	"github.com/code-100-precent/FocusBuddy/pkg/logger"
	"github.com/code-100-precent/FocusBuddy/pkg/realtime"
	"github.com/code-100-precent/FocusBuddy/pkg/utils"
)

// Config main configuration structure
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        logger.LogConfig `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Store      StoreConfig      `mapstructure:"store"`
	Cache      cache.Config     `mapstructure:"cache"`
	Vision     llm.Config       `mapstructure:"vision"`
	Summary    SummaryConfig    `mapstructure:"summary"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name          string        `env:"SERVER_NAME"`
	Addr          string        `env:"ADDR"`
	Mode          string        `env:"MODE"`
	APIPrefix     string        `env:"API_PREFIX"`
	MonitorPrefix string        `env:"MONITOR_PREFIX"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE"`
}

// DatabaseConfig database configuration, used by the db store backend
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// StoreConfig session persistence configuration
type StoreConfig struct {
	// file, db or badger
	Type     string `env:"STORE_TYPE"`
	Dir      string `env:"STORE_DIR"`
	InMemory bool   `env:"STORE_IN_MEMORY"`
	// RetentionDays 0 disables pruning
	RetentionDays     int    `env:"RETENTION_DAYS"`
	RetentionSchedule string `env:"RETENTION_SCHEDULE"`
}

// SummaryConfig rolling summary configuration
type SummaryConfig struct {
	// Compress enables LLM compression; otherwise only the recency trim runs
	Compress    bool       `env:"SUMMARY_COMPRESS"`
	LLM         llm.Config `mapstructure:"llm"`
	BudgetLimit int        `env:"SUMMARY_BUDGET_LIMIT"`
	BudgetUnit  string     `env:"SUMMARY_BUDGET_UNIT"`
}

// RealtimeConfig realtime speech configuration
type RealtimeConfig struct {
	Enabled     bool            `env:"REALTIME_ENABLED"`
	Client      realtime.Config `mapstructure:"client"`
	AudioDevice string          `env:"AUDIO_DEVICE"`
	SampleRate  uint32          `env:"AUDIO_SAMPLE_RATE"`
	// MaxReconnect bounds the total time spent reconnecting one drop
	MaxReconnect time.Duration `env:"REALTIME_MAX_RECONNECT"`
}

// CaptureConfig screen capture configuration
type CaptureConfig struct {
	// Command overrides the detected screenshot utility, "{out}" marks the file
	Command     []string      `env:"CAPTURE_COMMAND"`
	MaxWidth    int           `env:"CAPTURE_MAX_WIDTH"`
	Quality     int           `env:"CAPTURE_QUALITY"`
	MaxCaptures int           `env:"CAPTURE_MAX_FILES"`
	Timeout     time.Duration `env:"CAPTURE_TIMEOUT"`
}

// LoopConfig check-in loop configuration
type LoopConfig struct {
	TickInterval      time.Duration `env:"TICK_INTERVAL"`
	CheckInInterval   time.Duration `env:"CHECKIN_INTERVAL"`
	Style             string        `env:"CHECKIN_STYLE"`
	Instruction       string        `env:"VISION_INSTRUCTION"`
	MaxRetries        int           `env:"LOOP_MAX_RETRIES"`
	FailureThreshold  int           `env:"LOOP_FAILURE_THRESHOLD"`
	StageTimeout      time.Duration `env:"LOOP_STAGE_TIMEOUT"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT"`
	DefaultDuration   time.Duration `env:"SESSION_DEFAULT_DURATION"`
	MinDuration       time.Duration `env:"SESSION_MIN_DURATION"`
	AutoEnd           bool          `env:"SESSION_AUTO_END"`
	// PersistFailureLimit consecutive journal failures end the session
	PersistFailureLimit int           `env:"PERSIST_FAILURE_LIMIT"`
	VisionCacheTTL      time.Duration `env:"VISION_CACHE_TTL"`
}

// MiddlewareConfig HTTP middleware configuration
type MiddlewareConfig struct {
	EnableRateLimit bool `env:"ENABLE_RATE_LIMIT"`
	// RateLimit uses the limiter formatted rate, e.g. "120-M"
	RateLimit   string   `env:"RATE_LIMIT"`
	CORSOrigins []string `env:"CORS_ORIGINS"`
}

var GlobalConfig *Config

// Load 读取 .env / .env.<APP_ENV> 与进程环境变量，生成 GlobalConfig
func Load() error {
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		// .env 不存在时使用默认值，不影响启动
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		Server: ServerConfig{
			Name:          getStringOrDefault("SERVER_NAME", "FocusBuddy"),
			Addr:          getStringOrDefault("ADDR", "127.0.0.1:7080"),
			Mode:          getStringOrDefault("MODE", "development"),
			APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
			MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),
			ShutdownGrace: utils.GetDurationEnv("SHUTDOWN_GRACE", 10*time.Second),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", ""),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", false),
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./data/focusbuddy.db"),
		},
		Store: StoreConfig{
			Type:              getStringOrDefault("STORE_TYPE", "file"),
			Dir:               getStringOrDefault("STORE_DIR", "data/session_logs"),
			InMemory:          getBoolOrDefault("STORE_IN_MEMORY", false),
			RetentionDays:     getIntOrDefault("RETENTION_DAYS", 0),
			RetentionSchedule: getStringOrDefault("RETENTION_SCHEDULE", "0 3 * * *"),
		},
		Cache:  loadCacheConfig(),
		Vision: loadLLMConfig("VISION", "gpt-4o"),
		Summary: SummaryConfig{
			Compress:    getBoolOrDefault("SUMMARY_COMPRESS", true),
			LLM:         loadLLMConfig("SUMMARY", "gpt-4o-mini"),
			BudgetLimit: getIntOrDefault("SUMMARY_BUDGET_LIMIT", 600),
			BudgetUnit:  getStringOrDefault("SUMMARY_BUDGET_UNIT", "chars"),
		},
		Realtime: RealtimeConfig{
			Enabled: getBoolOrDefault("REALTIME_ENABLED", false),
			Client: realtime.Config{
				URL:                getStringOrDefault("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
				APIKey:             getStringOrDefault("REALTIME_API_KEY", utils.GetEnv("OPENAI_API_KEY")),
				Model:              getStringOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
				Voice:              getStringOrDefault("REALTIME_VOICE", "alloy"),
				Instructions:       getStringOrDefault("REALTIME_INSTRUCTIONS", ""),
				TranscriptionModel: getStringOrDefault("REALTIME_TRANSCRIPTION_MODEL", "whisper-1"),
				WriteTimeout:       utils.GetDurationEnv("REALTIME_WRITE_TIMEOUT", 10*time.Second),
			},
			AudioDevice:  getStringOrDefault("AUDIO_DEVICE", ""),
			SampleRate:   uint32(getIntOrDefault("AUDIO_SAMPLE_RATE", 24000)),
			MaxReconnect: utils.GetDurationEnv("REALTIME_MAX_RECONNECT", 2*time.Minute),
		},
		Capture: CaptureConfig{
			Command:     getListOrDefault("CAPTURE_COMMAND", nil, " "),
			MaxWidth:    getIntOrDefault("CAPTURE_MAX_WIDTH", 1280),
			Quality:     getIntOrDefault("CAPTURE_QUALITY", 70),
			MaxCaptures: getIntOrDefault("CAPTURE_MAX_FILES", 20),
			Timeout:     utils.GetDurationEnv("CAPTURE_TIMEOUT", 10*time.Second),
		},
		Loop: LoopConfig{
			TickInterval:        utils.GetDurationEnv("TICK_INTERVAL", 60*time.Second),
			CheckInInterval:     utils.GetDurationEnv("CHECKIN_INTERVAL", 120*time.Second),
			Style:               getStringOrDefault("CHECKIN_STYLE", "gentle"),
			Instruction:         getStringOrDefault("VISION_INSTRUCTION", ""),
			MaxRetries:          getIntOrDefault("LOOP_MAX_RETRIES", 1),
			FailureThreshold:    getIntOrDefault("LOOP_FAILURE_THRESHOLD", 3),
			StageTimeout:        utils.GetDurationEnv("LOOP_STAGE_TIMEOUT", 45*time.Second),
			InactivityTimeout:   utils.GetDurationEnv("INACTIVITY_TIMEOUT", 5*time.Minute),
			DefaultDuration:     utils.GetDurationEnv("SESSION_DEFAULT_DURATION", 120*time.Minute),
			MinDuration:         utils.GetDurationEnv("SESSION_MIN_DURATION", 5*time.Minute),
			AutoEnd:             getBoolOrDefault("SESSION_AUTO_END", true),
			PersistFailureLimit: getIntOrDefault("PERSIST_FAILURE_LIMIT", 5),
			VisionCacheTTL:      utils.GetDurationEnv("VISION_CACHE_TTL", 10*time.Minute),
		},
		Middleware: MiddlewareConfig{
			EnableRateLimit: getBoolOrDefault("ENABLE_RATE_LIMIT", true),
			RateLimit:       getStringOrDefault("RATE_LIMIT", "120-M"),
			CORSOrigins:     getListOrDefault("CORS_ORIGINS", []string{"*"}, ","),
		},
	}
	return nil
}

// loadLLMConfig 读取 <prefix>_LLM_* 变量，未设置时回落到 LLM_* 与 OPENAI_API_KEY
func loadLLMConfig(prefix, defaultModel string) llm.Config {
	get := func(key, def string) string {
		return getStringOrDefault(prefix+"_"+key, getStringOrDefault(key, def))
	}
	return llm.Config{
		Provider:    get("LLM_PROVIDER", "openai"),
		APIKey:      get("LLM_API_KEY", utils.GetEnv("OPENAI_API_KEY")),
		BaseURL:     get("LLM_BASE_URL", ""),
		Model:       getStringOrDefault(prefix+"_LLM_MODEL", defaultModel),
		MaxTokens:   getIntOrDefault(prefix+"_LLM_MAX_TOKENS", 300),
		Temperature: float32(getFloatOrDefault(prefix+"_LLM_TEMPERATURE", 0.3)),
		ImageDetail: get("LLM_IMAGE_DETAIL", "high"),
		Timeout:     utils.GetDurationEnv(prefix+"_LLM_TIMEOUT", 60*time.Second),
	}
}

// loadCacheConfig loads cache configuration with all default values
func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", "gocache"),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  utils.GetDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  utils.GetDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: utils.GetDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    getStringOrDefault("REDIS_KEY_PREFIX", "focusbuddy:"),
		},
		Local: cache.LocalConfig{
			MaxSize:           getIntOrDefault("LOCAL_CACHE_MAX_SIZE", 256),
			DefaultExpiration: utils.GetDurationEnv("LOCAL_CACHE_DEFAULT_EXPIRATION", 10*time.Minute),
			CleanupInterval:   utils.GetDurationEnv("LOCAL_CACHE_CLEANUP_INTERVAL", 15*time.Minute),
		},
	}
}

// Validate rejects inconsistent settings. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}

	switch c.Store.Type {
	case "file", "badger":
	case "db":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database DSN is required for the db store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q", c.Store.Type))
	}
	if c.Store.RetentionDays < 0 {
		errs = append(errs, errors.New("retention days must not be negative"))
	}

	l := c.Loop
	if l.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if l.CheckInInterval < l.TickInterval {
		errs = append(errs, fmt.Errorf("check-in interval %s is shorter than tick interval %s", l.CheckInInterval, l.TickInterval))
	}
	switch strings.ToLower(l.Style) {
	case "gentle", "direct", "coach":
	default:
		errs = append(errs, fmt.Errorf("unknown check-in style %q", l.Style))
	}
	if l.FailureThreshold < 1 {
		errs = append(errs, errors.New("failure threshold must be at least 1"))
	}
	if l.PersistFailureLimit < 1 {
		errs = append(errs, errors.New("persist failure limit must be at least 1"))
	}
	if l.MinDuration > l.DefaultDuration {
		errs = append(errs, errors.New("minimum session duration exceeds the default duration"))
	}

	if c.Summary.BudgetLimit <= 0 {
		errs = append(errs, errors.New("summary budget must be positive"))
	}
	switch strings.ToLower(c.Summary.BudgetUnit) {
	case "chars", "characters", "tokens", "words", "sentences":
	default:
		errs = append(errs, fmt.Errorf("unknown summary budget unit %q", c.Summary.BudgetUnit))
	}

	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		errs = append(errs, errors.New("capture quality must be within 1-100"))
	}
	if c.Realtime.Enabled && c.Realtime.Client.APIKey == "" {
		errs = append(errs, errors.New("realtime api key is required when realtime is enabled"))
	}
	return errors.Join(errs...)
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	if value := utils.GetEnv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault gets integer environment variable value, returns default if empty or invalid
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}

// getFloatOrDefault gets float environment variable value, returns default if empty or invalid
func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// getListOrDefault splits a list variable on sep, dropping blanks
func getListOrDefault(key string, defaultValue []string, sep string) []string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
