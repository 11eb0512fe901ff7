package models

import "time"

// Report models. Table names keep the legacy schema (reports, report_contents,
// report_files) so databases created by earlier deployments keep working.

type Report struct {
	ID         uint   `gorm:"primaryKey"`
	LocalID    uint   `gorm:"not null;index:idx_reports_dept_local"`
	Title      string `gorm:"not null"`
	Date       string `gorm:"size:10;not null;index"` // YYYY-MM-DD
	Department string `gorm:"not null;index:idx_reports_dept_local"`
	// CreatedAt doubles as the last-modified timestamp: edits bump it.
	CreatedAt time.Time

	Sections    []ReportSection `gorm:"foreignKey:ReportID"`
	Attachments []Attachment    `gorm:"foreignKey:ReportID"`
}

func (Report) TableName() string { return "reports" }

// ReportSection is one category/content pair of a report. Sections are owned
// exclusively by their report and are fully replaced on every edit.
type ReportSection struct {
	ID       uint `gorm:"primaryKey"`
	ReportID uint `gorm:"not null;index"`
	Category string
	Content  string
}

func (ReportSection) TableName() string { return "report_contents" }

// Attachment records one uploaded file. Filename is the collision-free name on
// disk under the department subdirectory; OriginalName is the user-supplied
// display name, preserved verbatim for downloads.
type Attachment struct {
	ID           uint   `gorm:"primaryKey"`
	ReportID     uint   `gorm:"not null;index"`
	Department   string `gorm:"not null"`
	Filename     string `gorm:"not null"`
	OriginalName string
}

func (Attachment) TableName() string { return "report_files" }
