package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/filestore"
	"github.com/gajahealth/reportdesk/internal/models"
	"github.com/gajahealth/reportdesk/internal/policy"
)

// DefaultTitle is used when a report is submitted with a blank title.
const DefaultTitle = "일일보고서"

const dateLayout = "2006-01-02"

// SectionInput is one submitted category/content pair. Pairs with blank
// content are dropped, never stored.
type SectionInput struct {
	Category string
	Content  string
}

// Upload is one file to attach, carrying the user's display name verbatim.
type Upload struct {
	Name string
	Data io.Reader
}

// ReportService is the report repository: CRUD over reports and their owned
// sections and attachments. local_id assignment is serialized per department
// so concurrent creates never collide.
type ReportService struct {
	db    *gorm.DB
	files *filestore.Store

	mu        sync.Mutex
	deptLocks map[string]*sync.Mutex
}

func NewReportService(db *gorm.DB, files *filestore.Store) *ReportService {
	return &ReportService{db: db, files: files, deptLocks: make(map[string]*sync.Mutex)}
}

func (s *ReportService) deptLock(dept string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.deptLocks[dept]
	if !ok {
		l = &sync.Mutex{}
		s.deptLocks[dept] = l
	}
	return l
}

func normalizeDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Now().Format(dateLayout), nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("%w: bad date %q", ErrInvalidInput, date)
	}
	return date, nil
}

func normalizeTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return DefaultTitle
}

// Create stores a new report with its sections and attachments and returns
// the new id. local_id is max(local_id for the department)+1, assigned under
// the department lock; a deleted report's local_id is never reused.
func (s *ReportService) Create(ctx context.Context, department, title, date string, sections []SectionInput, uploads []Upload) (uint, error) {
	if !models.ValidDepartment(department) {
		return 0, ErrInvalidDepartment
	}
	reportDate, err := normalizeDate(date)
	if err != nil {
		return 0, err
	}

	lock := s.deptLock(department)
	lock.Lock()
	defer lock.Unlock()

	var saved []string
	report := models.Report{
		Title:      normalizeTitle(title),
		Date:       reportDate,
		Department: department,
		CreatedAt:  time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxLocal uint
		row := tx.Model(&models.Report{}).
			Where("department = ?", department).
			Select("COALESCE(MAX(local_id), 0)").
			Row()
		if err := row.Scan(&maxLocal); err != nil {
			return err
		}
		report.LocalID = maxLocal + 1
		if err := tx.Create(&report).Error; err != nil {
			return err
		}
		if err := insertSections(tx, report.ID, sections); err != nil {
			return err
		}
		var err error
		saved, err = s.saveAttachments(tx, report.ID, department, uploads)
		return err
	})
	if err != nil {
		s.discardFiles(department, saved)
		return 0, err
	}
	return report.ID, nil
}

// Get loads a report with its sections and attachments. Reports outside the
// caller's scope read as not found, indistinguishable from absent ids.
func (s *ReportService) Get(ctx context.Context, id uint, scope []string) (*models.Report, error) {
	var report models.Report
	err := s.db.WithContext(ctx).
		Preload("Sections").
		Preload("Attachments").
		First(&report, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !policy.InScope(scope, report.Department) {
		return nil, ErrNotFound
	}
	return &report, nil
}

// Update replaces title, date, and the full section set, and appends any new
// attachments. A blank date keeps the stored one. The modification timestamp
// is bumped. Everything commits in one transaction so a concurrent reader
// never observes a half-replaced section list.
func (s *ReportService) Update(ctx context.Context, id uint, scope []string, title, date string, sections []SectionInput, uploads []Upload) error {
	report, err := s.Get(ctx, id, scope)
	if err != nil {
		return err
	}
	reportDate := report.Date
	if strings.TrimSpace(date) != "" {
		if reportDate, err = normalizeDate(date); err != nil {
			return err
		}
	}

	var saved []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"title":      normalizeTitle(title),
			"date":       reportDate,
			"created_at": time.Now(),
		}
		if err := tx.Model(&models.Report{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("report_id = ?", id).Delete(&models.ReportSection{}).Error; err != nil {
			return err
		}
		if err := insertSections(tx, id, sections); err != nil {
			return err
		}
		var err error
		saved, err = s.saveAttachments(tx, id, report.Department, uploads)
		return err
	})
	if err != nil {
		s.discardFiles(report.Department, saved)
		return err
	}
	return nil
}

// Delete removes a report, its sections, its attachment rows, and its
// physical files. File removal is best-effort: a missing or stubborn file is
// logged, never a reason to keep the report.
func (s *ReportService) Delete(ctx context.Context, id uint, scope []string) error {
	report, err := s.Get(ctx, id, scope)
	if err != nil {
		return err
	}
	for _, att := range report.Attachments {
		if err := s.files.Delete(att.Department, att.Filename); err != nil {
			slog.Warn("attachment cleanup failed",
				"report_id", id, "file", att.Filename, "error", err)
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("report_id = ?", id).Delete(&models.ReportSection{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Report{}, id).Error
	})
}

// DeleteAttachment removes one attachment row and its physical file. The row
// must be recorded for the report; that check happens before any filesystem
// access, and the file delete itself is idempotent.
func (s *ReportService) DeleteAttachment(ctx context.Context, reportID uint, storedName string, scope []string) error {
	report, err := s.Get(ctx, reportID, scope)
	if err != nil {
		return err
	}
	var att models.Attachment
	err = s.db.WithContext(ctx).
		Where("report_id = ? AND filename = ?", report.ID, storedName).
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := s.files.Delete(att.Department, att.Filename); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&models.Attachment{}, att.ID).Error
}

func insertSections(tx *gorm.DB, reportID uint, sections []SectionInput) error {
	for _, sec := range sections {
		content := strings.TrimSpace(sec.Content)
		if content == "" {
			continue
		}
		row := models.ReportSection{ReportID: reportID, Category: sec.Category, Content: content}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// saveAttachments writes uploads to the filestore and records their rows.
// Returns the stored names so the caller can discard them if the transaction
// rolls back.
func (s *ReportService) saveAttachments(tx *gorm.DB, reportID uint, department string, uploads []Upload) ([]string, error) {
	var saved []string
	for _, up := range uploads {
		if up.Name == "" {
			continue
		}
		stored, err := s.files.Save(department, up.Name, up.Data)
		if err != nil {
			return saved, err
		}
		saved = append(saved, stored)
		row := models.Attachment{
			ReportID:     reportID,
			Department:   department,
			Filename:     stored,
			OriginalName: up.Name,
		}
		if err := tx.Create(&row).Error; err != nil {
			return saved, err
		}
	}
	return saved, nil
}

func (s *ReportService) discardFiles(department string, names []string) {
	for _, name := range names {
		if err := s.files.Delete(department, name); err != nil {
			slog.Warn("rollback file cleanup failed", "file", name, "error", err)
		}
	}
}
