package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/FocusBuddy/internal/models"
	"github.com/code-100-precent/FocusBuddy/pkg/config"
	"github.com/code-100-precent/FocusBuddy/pkg/utils"
	"gorm.io/gorm"
)

// Options database bootstrap options
type Options struct {
	// InitSQLPath runs a SQL script after connecting, empty skips it
	InitSQLPath string
	AutoMigrate bool
}

// SetupDatabase connects to cfg, runs the init script and migrates the
// focus_sessions and session_events tables.
func SetupDatabase(w io.Writer, cfg config.DatabaseConfig, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{AutoMigrate: true}
	}
	db, err := openDatabase(w, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName(cfg.Driver), err)
	}
	if opts.InitSQLPath != "" {
		if err := RunInitSQL(db, opts.InitSQLPath); err != nil {
			return nil, fmt.Errorf("run init sql: %w", err)
		}
	}
	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}

func openDatabase(w io.Writer, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := utils.InitDatabase(w, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates the session tables.
func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}
	return models.Migrate(db)
}

// RunInitSQL executes the statements of a SQL file. Lines starting with
// "--" or "#" are comments; statements end with ";" or at end of file.
func RunInitSQL(db *gorm.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var stmt strings.Builder
	exec := func() error {
		sql := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if sql == "" {
			return nil
		}
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(sql), err)
		}
		return nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") {
			continue
		}
		stmt.WriteString(line)
		stmt.WriteString("\n")
		if strings.HasSuffix(line, ";") {
			if err := exec(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return exec()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
