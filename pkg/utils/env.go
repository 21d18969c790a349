package utils

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env and then .env.<env> when env is set. Variables already
// present in the process environment win. A missing .env is reported, a
// missing .env.<env> is not.
func LoadEnv(env string) error {
	err := godotenv.Load()
	if env = strings.TrimSpace(env); env != "" {
		if lerr := godotenv.Load(".env." + env); lerr != nil && !errors.Is(lerr, fs.ErrNotExist) {
			return lerr
		}
	}
	return err
}

// GetEnv returns the trimmed value of key.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetBoolEnv parses key as a bool; "1", "t", "true" are true.
func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetIntEnv parses key as an integer, 0 when unset or invalid.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// GetFloatEnv parses key as a float, 0 when unset or invalid.
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(GetEnv(key))
}

// GetDurationEnv parses key as a duration such as "90s"; bare numbers are
// seconds. def is returned when unset or invalid.
func GetDurationEnv(key string, def time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}
