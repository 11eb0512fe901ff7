package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/auth"
	"github.com/gajahealth/reportdesk/internal/filestore"
	"github.com/gajahealth/reportdesk/internal/httpx"
	"github.com/gajahealth/reportdesk/internal/policy"
	"github.com/gajahealth/reportdesk/internal/services"
	"github.com/gajahealth/reportdesk/internal/validation"
)

const maxUploadMemory = 32 << 20 // 32 MB before multipart spills to disk

type ReportHandler struct {
	DB     *gorm.DB
	Svc    *services.ReportService
	Search *services.SearchService
}

func NewReportHandler(db *gorm.DB, svc *services.ReportService, search *services.SearchService) *ReportHandler {
	return &ReportHandler{DB: db, Svc: svc, Search: search}
}

// writeServiceError maps service/filestore errors to transport codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, filestore.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidDepartment),
		errors.Is(err, filestore.ErrInvalidDepartment),
		errors.Is(err, filestore.ErrInvalidName):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
	default:
		slog.Error("request failed", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "storage_failure", nil)
	}
}

func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// List: GET /reports – date range + optional search, scoped by department.
// Non-privileged callers always see exactly their own department; the dept
// selector only means something to the privileged one.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	qs := r.URL.Query()
	scope := policy.ScopeFor(identity.Department, strings.TrimSpace(qs.Get("dept")))

	q := services.SearchQuery{
		Scope: scope,
		From:  strings.TrimSpace(qs.Get("start_date")),
		To:    strings.TrimSpace(qs.Get("end_date")),
		Text:  qs.Get("search"),
		Mode:  services.ParseMode(qs.Get("filter")),
	}
	results, err := h.Search.Search(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": results, "total": len(results)})
}

// reportForm is the submitted report payload, shared by create and edit.
type reportForm struct {
	Title    string
	Date     string
	Sections []services.SectionInput
	Uploads  []services.Upload
}

// parseReportForm accepts either JSON (no files) or a multipart/urlencoded
// form with parallel category[]/content[] lists and a files field.
func parseReportForm(r *http.Request) (reportForm, error) {
	var form reportForm
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var req struct {
			Title    string `json:"title"`
			Date     string `json:"date"`
			Sections []struct {
				Category string `json:"category"`
				Content  string `json:"content"`
			} `json:"sections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return form, err
		}
		form.Title, form.Date = req.Title, req.Date
		for _, s := range req.Sections {
			form.Sections = append(form.Sections, services.SectionInput{Category: s.Category, Content: s.Content})
		}
		return form, nil
	}

	if strings.Contains(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return form, err
		}
	} else if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Title = r.FormValue("title")
	form.Date = r.FormValue("date")
	categories := r.Form["category[]"]
	contents := r.Form["content[]"]
	for i, content := range contents {
		var category string
		if i < len(categories) {
			category = categories[i]
		}
		form.Sections = append(form.Sections, services.SectionInput{Category: category, Content: content})
	}
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			if fh.Filename == "" {
				continue
			}
			f, err := fh.Open()
			if err != nil {
				return form, err
			}
			form.Uploads = append(form.Uploads, services.Upload{Name: fh.Filename, Data: f})
		}
	}
	return form, nil
}

// checkReportForm rejects malformed fields up front so the service layer only
// ever sees parseable dates.
func checkReportForm(form reportForm) validation.Violations {
	v := validation.Violations{}
	validation.Date("date", form.Date, v)
	return v
}

func closeUploads(form reportForm) {
	for _, up := range form.Uploads {
		if c, ok := up.Data.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// Create: POST /reports – the report lands in the caller's own department.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	form, err := parseReportForm(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_form", nil)
		return
	}
	defer closeUploads(form)
	if v := checkReportForm(form); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", v)
		return
	}

	id, err := h.Svc.Create(r.Context(), identity.Department, form.Title, form.Date, form.Sections, form.Uploads)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report, err := h.Svc.Get(r.Context(), id, []string{identity.Department})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": report.ID, "local_id": report.LocalID})
}

// View: GET /reports/{id}
func (h *ReportHandler) View(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	report, err := h.Svc.Get(r.Context(), id, policy.ScopeFor(identity.Department, ""))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// Update: POST /reports/{id} – full section replace, attachments appended.
func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	form, err := parseReportForm(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_form", nil)
		return
	}
	defer closeUploads(form)
	if v := checkReportForm(form); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", v)
		return
	}

	scope := policy.ScopeFor(identity.Department, "")
	if err := h.Svc.Update(r.Context(), id, scope, form.Title, form.Date, form.Sections, form.Uploads); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Delete: POST /reports/{id}/delete
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.Svc.Delete(r.Context(), id, policy.ScopeFor(identity.Department, "")); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteFile: POST /reports/{id}/files/{name}/delete – removes one recorded
// attachment; the row check runs before any filesystem access.
func (h *ReportHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	name := r.PathValue("name")
	if name == "" {
		httpx.JSONError(w, http.StatusBadRequest, "missing_filename", nil)
		return
	}
	scope := policy.ScopeFor(identity.Department, "")
	if err := h.Svc.DeleteAttachment(r.Context(), id, name, scope); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
}
