package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/auth"
	"github.com/gajahealth/reportdesk/internal/filestore"
	"github.com/gajahealth/reportdesk/internal/handlers"
	"github.com/gajahealth/reportdesk/internal/httpx"
	"github.com/gajahealth/reportdesk/internal/models"
	"github.com/gajahealth/reportdesk/internal/services"
)

// New constructs the root http.Handler with all routes and middlewares applied.
func New(db *gorm.DB, files *filestore.Store) http.Handler {
	mux := http.NewServeMux()

	// Sessions resolve to {username, department} against the users table on
	// every request; a stale cookie for a deleted user yields no identity.
	auth.SetIdentityResolver(func(ctx context.Context, username string) (auth.Identity, bool) {
		var user models.User
		err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.Identity{}, false
		}
		if err != nil {
			slog.Error("identity lookup failed", "username", username, "error", err)
			return auth.Identity{}, false
		}
		return auth.Identity{Username: user.Username, Department: user.Department}, true
	})

	// --- Health endpoints ---
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth endpoints
	ah := handlers.NewAuthHandler(db)
	mux.HandleFunc("POST /login", ah.Login)
	mux.HandleFunc("POST /logout", ah.Logout)

	// Report endpoints
	svc := services.NewReportService(db, files)
	search := services.NewSearchService(db)
	rh := handlers.NewReportHandler(db, svc, search)
	mux.Handle("GET /reports", requireAuth(rh.List))
	mux.Handle("POST /reports", requireAuth(rh.Create))
	mux.Handle("GET /reports/{id}", requireAuth(rh.View))
	mux.Handle("POST /reports/{id}", requireAuth(rh.Update))
	mux.Handle("POST /reports/{id}/delete", requireAuth(rh.Delete))
	mux.Handle("POST /reports/{id}/files/{name}/delete", requireAuth(rh.DeleteFile))

	// Attachment download
	fh := handlers.NewFileHandler(db, files)
	mux.Handle("GET /uploads/{department}/{name}", requireAuth(fh.Download))

	return auth.Middleware(withRecover(withLogging(mux)))
}

func requireAuth(h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(h)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "path", r.URL.Path, "panic", rec)
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
