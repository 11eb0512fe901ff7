package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/auth"
	"github.com/gajahealth/reportdesk/internal/filestore"
	"github.com/gajahealth/reportdesk/internal/models"
	"github.com/gajahealth/reportdesk/internal/services"
)

func setupReportHandler(t *testing.T) (*gorm.DB, *filestore.Store, *ReportHandler) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Report{}, &models.ReportSection{}, &models.Attachment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	files, err := filestore.New(filepath.Join(t.TempDir(), "uploads"), models.AllDepartments())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	svc := services.NewReportService(db, files)
	return db, files, NewReportHandler(db, svc, services.NewSearchService(db))
}

func asDepartment(req *http.Request, username, dept string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Username: username, Department: dept}))
}

func TestReportCreateAndViewJSON(t *testing.T) {
	_, _, h := setupReportHandler(t)

	body := `{"title":"Shift Handoff","date":"2024-06-01","sections":[{"category":"vitals","content":"stable"}]}`
	req := httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = asDepartment(req, "gajaopd", "외래")
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID      uint `json:"id"`
		LocalID uint `json:"local_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 || created.LocalID != 1 {
		t.Fatalf("unexpected create response: %#v", created)
	}

	viewReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/reports/%d", created.ID), nil)
	viewReq.SetPathValue("id", fmt.Sprint(created.ID))
	viewReq = asDepartment(viewReq, "gajaopd", "외래")
	viewW := httptest.NewRecorder()
	h.View(viewW, viewReq)
	if viewW.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", viewW.Code, viewW.Body.String())
	}
	var report models.Report
	if err := json.Unmarshal(viewW.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if report.Title != "Shift Handoff" || len(report.Sections) != 1 {
		t.Fatalf("unexpected report: %#v", report)
	}
}

func multipartReport(t *testing.T, fields map[string]string, sections [][2]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field %s: %v", k, err)
		}
	}
	for _, sec := range sections {
		if err := mw.WriteField("category[]", sec[0]); err != nil {
			t.Fatalf("category: %v", err)
		}
		if err := mw.WriteField("content[]", sec[1]); err != nil {
			t.Fatalf("content: %v", err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestReportCreateMultipartWithFile(t *testing.T) {
	_, files, h := setupReportHandler(t)

	body, ct := multipartReport(t,
		map[string]string{"title": "With Attachment", "date": "2024-06-02"},
		[][2]string{{"vitals", "stable"}},
		map[string]string{"photo.jpg": "jpegbytes"})
	req := httptest.NewRequest(http.MethodPost, "/reports", body)
	req.Header.Set("Content-Type", ct)
	req = asDepartment(req, "gajaward", "병동")
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	viewReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/reports/%d", created.ID), nil)
	viewReq.SetPathValue("id", fmt.Sprint(created.ID))
	viewReq = asDepartment(viewReq, "gajaward", "병동")
	viewW := httptest.NewRecorder()
	h.View(viewW, viewReq)
	var report models.Report
	if err := json.Unmarshal(viewW.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(report.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %#v", report.Attachments)
	}
	att := report.Attachments[0]
	if att.OriginalName != "photo.jpg" || att.Department != "병동" {
		t.Fatalf("attachment fields wrong: %#v", att)
	}
	if _, err := files.Resolve("병동", att.Filename); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestListIgnoresDeptSelectorForRegularCaller(t *testing.T) {
	_, _, h := setupReportHandler(t)

	for _, dept := range []string{"병동", "외래"} {
		body := `{"title":"` + dept + `"}`
		req := httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = asDepartment(req, "u", dept)
		w := httptest.NewRecorder()
		h.Create(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("create in %s: %d", dept, w.Code)
		}
	}

	// 병동 caller asks for 외래 explicitly; the selector must be ignored.
	req := httptest.NewRequest(http.MethodGet, "/reports?dept="+url.QueryEscape("외래"), nil)
	req = asDepartment(req, "gajaward", "병동")
	w := httptest.NewRecorder()
	h.List(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d body=%s", w.Code, w.Body.String())
	}
	var list struct {
		Items []struct {
			Report models.Report `json:"report"`
		} `json:"items"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Items[0].Report.Department != "병동" {
		t.Fatalf("selector leaked foreign reports: %#v", list)
	}

	// The privileged caller can use the same selector.
	adminReq := httptest.NewRequest(http.MethodGet, "/reports?dept="+url.QueryEscape("외래"), nil)
	adminReq = asDepartment(adminReq, "gajakjh", models.AdminDepartment)
	adminW := httptest.NewRecorder()
	h.List(adminW, adminReq)
	if err := json.Unmarshal(adminW.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode admin list: %v", err)
	}
	if list.Total != 1 || list.Items[0].Report.Department != "외래" {
		t.Fatalf("admin selector not honored: %#v", list)
	}
}

func TestViewForeignReportIsNotFound(t *testing.T) {
	_, _, h := setupReportHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader(`{"title":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	req = asDepartment(req, "gajaopd", "외래")
	w := httptest.NewRecorder()
	h.Create(w, req)
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	viewReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/reports/%d", created.ID), nil)
	viewReq.SetPathValue("id", fmt.Sprint(created.ID))
	viewReq = asDepartment(viewReq, "gajaward", "병동")
	viewW := httptest.NewRecorder()
	h.View(viewW, viewReq)
	if viewW.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign report, got %d", viewW.Code)
	}

	deleteReq := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/reports/%d/delete", created.ID), nil)
	deleteReq.SetPathValue("id", fmt.Sprint(created.ID))
	deleteReq = asDepartment(deleteReq, "gajaward", "병동")
	deleteW := httptest.NewRecorder()
	h.Delete(deleteW, deleteReq)
	if deleteW.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign delete, got %d", deleteW.Code)
	}
}

func TestDeleteFileEndpoint(t *testing.T) {
	_, _, h := setupReportHandler(t)

	body, ct := multipartReport(t, map[string]string{"title": "t"}, nil,
		map[string]string{"doc.pdf": "pdf"})
	req := httptest.NewRequest(http.MethodPost, "/reports", body)
	req.Header.Set("Content-Type", ct)
	req = asDepartment(req, "gajaopd", "외래")
	w := httptest.NewRecorder()
	h.Create(w, req)
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Unrecorded filename is a 404 before the filesystem is touched.
	missReq := httptest.NewRequest(http.MethodPost, "/x", nil)
	missReq.SetPathValue("id", fmt.Sprint(created.ID))
	missReq.SetPathValue("name", "nope.pdf")
	missReq = asDepartment(missReq, "gajaopd", "외래")
	missW := httptest.NewRecorder()
	h.DeleteFile(missW, missReq)
	if missW.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missW.Code)
	}

	delReq := httptest.NewRequest(http.MethodPost, "/x", nil)
	delReq.SetPathValue("id", fmt.Sprint(created.ID))
	delReq.SetPathValue("name", "doc.pdf")
	delReq = asDepartment(delReq, "gajaopd", "외래")
	delW := httptest.NewRecorder()
	h.DeleteFile(delW, delReq)
	if delW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", delW.Code, delW.Body.String())
	}
}
