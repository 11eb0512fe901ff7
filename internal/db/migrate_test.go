package db

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/config"
	"github.com/gajahealth/reportdesk/internal/models"
)

func TestConnectAndMigrateSqlite(t *testing.T) {
	cfg := config.Config{DataDir: t.TempDir()}
	dbConn, err := ConnectAndMigrate(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, table := range []string{"users", "reports", "report_contents", "report_files"} {
		if !dbConn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
}

func TestSeedUsersIsIdempotent(t *testing.T) {
	dbConn, err := gorm.Open(sqlite.Open("file:seed_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := dbConn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := SeedUsers(dbConn); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SeedUsers(dbConn); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var count int64
	dbConn.Model(&models.User{}).Count(&count)
	if int(count) != len(defaultUsers) {
		t.Fatalf("user count = %d, want %d", count, len(defaultUsers))
	}

	var admin models.User
	if err := dbConn.Where("username = ?", "gajakjh").First(&admin).Error; err != nil {
		t.Fatalf("admin user: %v", err)
	}
	if admin.Department != models.AdminDepartment {
		t.Fatalf("admin department = %q", admin.Department)
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("1234")) != nil {
		t.Fatalf("seed password not hashed as expected")
	}
}

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"":                                    false,
		"postgres://u:p@localhost/reports":    true,
		"postgresql://localhost/reports":      true,
		"host=localhost dbname=reports":       true,
		"/var/data/reports.db":                false,
		"file:reports?mode=memory":            false,
		"HOST=db PORT=5432 DBNAME=reports":    true,
		"postgres://u@db:5432/r?sslmode=skip": true,
	}
	for dsn, want := range cases {
		if got := IsPostgresDSN(dsn); got != want {
			t.Fatalf("IsPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestNormalizeDSN(t *testing.T) {
	got := NormalizeDSN(`  "host=db user=app dbname=reports"  `)
	if got != "host=db user=app dbname=reports sslmode=disable" {
		t.Fatalf("unexpected: %q", got)
	}
	url := "postgres://u:p@db/reports?sslmode=require"
	if NormalizeDSN(url) != url {
		t.Fatalf("url form should pass through")
	}
}
