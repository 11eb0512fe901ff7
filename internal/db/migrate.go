package db

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gajahealth/reportdesk/internal/config"
	"github.com/gajahealth/reportdesk/internal/models"
)

// ConnectAndMigrate opens the configured database and brings the schema up to
// date. An empty DSN selects a sqlite file under cfg.DataDir, matching the
// single-node deployment the system is built for; a postgres DSN switches
// drivers and optionally runs SQL migrations (MIGRATIONS=1).
func ConnectAndMigrate(cfg config.Config) (*gorm.DB, error) {
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error
	if IsPostgresDSN(cfg.DatabaseDSN) {
		dsn := NormalizeDSN(cfg.DatabaseDSN)
		// Retry to give postgres time to come up.
		for i := 0; i < 10; i++ {
			db, err = gorm.Open(postgres.Open(dsn), gormCfg)
			if err == nil {
				break
			}
			slog.Warn("retrying DB connection", "attempt", i+1, "error", err)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to connect database after retries: %w", err)
		}
		if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
			if err := runSQLMigrations(dsn); err != nil {
				return nil, fmt.Errorf("sql migrations failed: %w", err)
			}
		} else if err := autoMigrate(db); err != nil {
			return nil, err
		}
	} else {
		if mkErr := os.MkdirAll(cfg.DataDir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create data dir: %w", mkErr)
		}
		path := filepath.Join(cfg.DataDir, "reports.db")
		db, err = gorm.Open(sqlite.Open(path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if err := autoMigrate(db); err != nil {
			return nil, err
		}
	}

	// Basic connectivity test
	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	// sanity check: ensure required core tables exist
	for _, table := range []string{"users", "reports", "report_contents", "report_files"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}

	// Seeding only when explicitly requested (e.g. development) via DB_SEED=1|true
	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		if err := SeedUsers(db); err != nil {
			return nil, fmt.Errorf("seed users: %w", err)
		}
	}
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	for _, m := range []interface{}{
		&models.User{}, &models.Report{}, &models.ReportSection{}, &models.Attachment{},
	} {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// defaultUsers is the initial account list, one account per department plus
// the privileged one. Passwords come from SEED_PASSWORD (default "1234",
// development only).
var defaultUsers = []struct {
	Username   string
	Department string
}{
	{"gajakjh", models.AdminDepartment},
	{"gajaopd", "외래"},
	{"gajaward", "병동"},
	{"gajaor", "수술실"},
	{"gajacoordi", "상담실"},
}

// SeedUsers inserts the default account list, skipping usernames that already
// exist so re-running is safe.
func SeedUsers(db *gorm.DB) error {
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "1234"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	for _, u := range defaultUsers {
		var existing models.User
		err := db.Where("username = ?", u.Username).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		user := models.User{Username: u.Username, Password: string(hash), Department: u.Department}
		if err := db.Create(&user).Error; err != nil {
			return err
		}
	}
	return nil
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
