package models

import (
	"time"

	"gorm.io/gorm"
)

type Student struct {
	ID            uint   `gorm:"primaryKey"`
	StudentNumber string `gorm:"uniqueIndex;size:32"` // LRN
	FirstName     string
	LastName      string
	Gender        string `gorm:"size:8"`
	QRCode        string `gorm:"uniqueIndex;size:64"`
	Active        bool   `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.LastName + ", " + s.FirstName
}
