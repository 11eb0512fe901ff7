package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/auth"
	"github.com/gajahealth/reportdesk/internal/filestore"
	"github.com/gajahealth/reportdesk/internal/httpx"
	"github.com/gajahealth/reportdesk/internal/models"
	"github.com/gajahealth/reportdesk/internal/policy"
)

type FileHandler struct {
	DB    *gorm.DB
	Files *filestore.Store
}

func NewFileHandler(db *gorm.DB, files *filestore.Store) *FileHandler {
	return &FileHandler{DB: db, Files: files}
}

// Download: GET /uploads/{department}/{name} – serves a stored attachment
// under its original display name. The department+filename pair is an opaque
// lookup key validated by the store, never a raw path.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	department := r.PathValue("department")
	name := r.PathValue("name")

	if !policy.InScope(policy.ScopeFor(identity.Department, ""), department) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	path, err := h.Files.Resolve(department, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The display name lives in the attachment record, not on disk.
	downloadName := name
	var att models.Attachment
	err = h.DB.Where("department = ? AND filename = ?", department, name).First(&att).Error
	if err == nil && att.OriginalName != "" {
		downloadName = att.OriginalName
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		writeServiceError(w, err)
		return
	}

	// RFC 5987 encoding keeps Korean display names intact across browsers.
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(downloadName))
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	http.ServeFile(w, r, path)
}
