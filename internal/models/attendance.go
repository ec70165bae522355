package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

const (
	MethodManual = "manual"
	MethodQR     = "qr"
	MethodAuto   = "auto"
)

// AttendanceStatus is the fixed status catalog, referenced by code.
type AttendanceStatus struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;size:16"`
	Name      string
	SortOrder int
}

// AttendanceSession is one version of an attendance-taking occasion.
// All versions of the same occasion share the natural key
// (teacher, section, subject key, date); exactly one of them is current.
// SubjectKey mirrors SubjectIDRef with 0 for homeroom so the key stays NOT NULL.
type AttendanceSession struct {
	ID                string     `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherIDRef      uint       `gorm:"uniqueIndex:uniq_current_session,priority:1,where:is_current_version = true;index:idx_session_key,priority:1" json:"teacher_id"`
	SectionIDRef      uint       `gorm:"uniqueIndex:uniq_current_session,priority:2;index:idx_session_key,priority:2" json:"section_id"`
	SubjectIDRef      *uint      `json:"subject_id"`
	SubjectKey        uint       `gorm:"uniqueIndex:uniq_current_session,priority:3;index:idx_session_key,priority:3" json:"-"`
	SessionDate       string     `gorm:"size:10;uniqueIndex:uniq_current_session,priority:4;index:idx_session_key,priority:4" json:"session_date"`
	SessionType       string     `gorm:"size:16" json:"session_type"`
	StartTime         string     `gorm:"size:5" json:"start_time"`
	EndTime           *string    `gorm:"size:5" json:"end_time,omitempty"`
	ActualEndAt       *time.Time `json:"actual_end_at,omitempty"`
	Status            string     `gorm:"size:16;index" json:"status"`
	Version           int        `gorm:"not null;default:1" json:"version"`
	IsCurrentVersion  bool       `gorm:"index" json:"is_current_version"`
	PreviousVersionID *string    `gorm:"type:uuid" json:"previous_version_id,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ScheduleIDRef     *uint      `gorm:"index" json:"schedule_id,omitempty"`
	AutoAbsenceMarked bool       `gorm:"index" json:"auto_absence_marked"`
	CreatedBy         uint       `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (s *AttendanceSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsEdited reports whether this version came out of an edit.
func (s AttendanceSession) IsEdited() bool { return s.Version > 1 }

// AttendanceRecord is one student's mark within one session version.
type AttendanceRecord struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SessionIDRef     string     `gorm:"type:uuid;uniqueIndex:uniq_current_record,priority:1,where:is_current_version = true;index" json:"session_id"`
	StudentIDRef     uint       `gorm:"uniqueIndex:uniq_current_record,priority:2;index" json:"student_id"`
	StatusIDRef      uint       `gorm:"index" json:"status_id"`
	StatusCode       string     `gorm:"-" json:"status"`
	ArrivedAt        *time.Time `json:"arrived_at,omitempty"`
	MarkedBy         uint       `json:"marked_by"`
	MarkedAt         time.Time  `json:"marked_at"`
	Remarks          *string    `gorm:"type:text" json:"remarks,omitempty"`
	MarkingMethod    string     `gorm:"size:16" json:"marking_method"`
	IsCurrentVersion bool       `gorm:"index" json:"is_current_version"`
	Version          int        `json:"version"`
	DataSource       string     `gorm:"size:32" json:"data_source"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AttendanceEditLog is the append-only audit trail of session edits.
// It carries the natural key so the whole lineage can be read without
// walking version pointers.
type AttendanceEditLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	FromSessionID string         `gorm:"type:uuid;index" json:"from_session_id"`
	ToSessionID   string         `gorm:"type:uuid;uniqueIndex" json:"to_session_id"`
	FromVersion   int            `json:"from_version"`
	ToVersion     int            `json:"to_version"`
	TeacherIDRef  uint           `gorm:"index:idx_edit_key,priority:1" json:"teacher_id"`
	SectionIDRef  uint           `gorm:"index:idx_edit_key,priority:2" json:"section_id"`
	SubjectKey    uint           `gorm:"index:idx_edit_key,priority:3" json:"-"`
	SessionDate   string         `gorm:"size:10;index:idx_edit_key,priority:4" json:"session_date"`
	ActorIDRef    uint           `gorm:"index" json:"actor_id"`
	ActorRole     string         `gorm:"size:16" json:"actor_role"`
	Reason        string         `gorm:"size:32" json:"reason"`
	Notes         string         `gorm:"type:text" json:"notes"`
	Changes       datatypes.JSON `json:"changes"`
	CreatedAt     time.Time      `json:"created_at"`
}
