package models

import "time"

// User & auth related models
type User struct {
	ID         uint   `gorm:"primaryKey"`
	Username   string `gorm:"unique;not null;index"`
	Password   string `gorm:"not null"` // bcrypt hash
	Department string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
