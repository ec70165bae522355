package models

import "time"

// Section is a class section. A section has at most one homeroom teacher.
type Section struct {
	ID                   uint   `gorm:"primaryKey"`
	Name                 string `gorm:"uniqueIndex"`
	GradeLevel           string `gorm:"size:32"`
	HomeroomTeacherIDRef *uint  `gorm:"index"`
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SectionStudent is one roster entry: a student enrolled in a section.
type SectionStudent struct {
	ID           uint `gorm:"primaryKey"`
	StudentIDRef uint `gorm:"uniqueIndex:uniq_student_section"`
	SectionIDRef uint `gorm:"uniqueIndex:uniq_student_section;index"`
	Active       bool `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Subject struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
