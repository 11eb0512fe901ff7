package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gajahealth/reportdesk/internal/config"
	"github.com/gajahealth/reportdesk/internal/db"
	"github.com/gajahealth/reportdesk/internal/filestore"
	"github.com/gajahealth/reportdesk/internal/logging"
	"github.com/gajahealth/reportdesk/internal/models"
	"github.com/gajahealth/reportdesk/internal/server"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	dbConn, err := db.ConnectAndMigrate(cfg)
	if err != nil {
		slog.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if *migrateOnlyFlag {
		slog.Info("migrations completed; exiting as requested")
		return
	}

	files, err := filestore.New(filepath.Join(cfg.DataDir, "uploads"), models.AllDepartments())
	if err != nil {
		slog.Error("upload store init failed", "error", err)
		os.Exit(1)
	}

	slog.Info("starting server", "env", cfg.Env, "port", cfg.Port)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.New(dbConn, files)}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
	slog.Info("server gracefully stopped")
}
