package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/auth"
	"github.com/gajahealth/reportdesk/internal/httpx"
	"github.com/gajahealth/reportdesk/internal/models"
)

type AuthHandler struct{ DB *gorm.DB }

func NewAuthHandler(db *gorm.DB) *AuthHandler { return &AuthHandler{DB: db} }

// Login: POST /login – JSON or form {username, password}.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var username, password string
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
		username, password = req.Username, req.Password
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_form", nil)
			return
		}
		username = r.FormValue("username")
		password = r.FormValue("password")
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"username": "required", "password": "required"})
		return
	}

	var user models.User
	err := h.DB.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "login_failed", nil)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	auth.CreateSession(w, user.Username)
	httpx.JSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"username":   user.Username,
		"department": user.Department,
	})
}

// Logout: POST /logout – clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
