package models

import "time"

// Schedule is a weekly slot. StartTime and EndTime are "HH:MM" in the school timezone.
// SubjectIDRef nil means a homeroom slot.
type Schedule struct {
	ID           uint   `gorm:"primaryKey"`
	SectionIDRef uint   `gorm:"index:idx_schedule_slot,priority:1"`
	SubjectIDRef *uint  `gorm:"index"`
	TeacherIDRef uint   `gorm:"index"`
	DayOfWeek    int    `gorm:"index:idx_schedule_slot,priority:2"` // time.Weekday
	StartTime    string `gorm:"size:5"`
	EndTime      string `gorm:"size:5"`
	Active       bool   `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
