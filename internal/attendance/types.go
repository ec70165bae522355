package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/lamms/attendance_backend/internal/models"
)

// Actor is whoever is calling into the service.
type Actor struct {
	UserID uint
	Role   string
}

func ActorFromUser(u models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// SessionType is the closed set of roles a teacher can take a session in.
type SessionType string

const (
	Homeroom       SessionType = "homeroom"
	SubjectTeacher SessionType = "subject"
)

func ParseSessionType(raw string) (SessionType, error) {
	switch SessionType(strings.ToLower(strings.TrimSpace(raw))) {
	case Homeroom:
		return Homeroom, nil
	case SubjectTeacher:
		return SubjectTeacher, nil
	}
	return "", fmt.Errorf("%w: unknown session type %q", ErrValidation, raw)
}

type CreateSessionInput struct {
	TeacherID  uint        `json:"teacher_id" validate:"required"`
	SectionID  uint        `json:"section_id" validate:"required"`
	SubjectID  *uint       `json:"subject_id" validate:"omitempty,gt=0"`
	Date       string      `json:"session_date" validate:"required,datetime=2006-01-02"`
	StartTime  string      `json:"start_time" validate:"required,hhmm"`
	EndTime    *string     `json:"end_time" validate:"omitempty,hhmm"`
	Type       SessionType `json:"session_type"`
	ScheduleID *uint       `json:"schedule_id"`
}

// MarkInput is one student's mark in a marking batch.
type MarkInput struct {
	StudentID  uint       `json:"student_id" validate:"required"`
	StatusCode string     `json:"status" validate:"required,oneof=present absent late excused"`
	ArrivedAt  *time.Time `json:"arrival_time"`
	Remarks    *string    `json:"remarks" validate:"omitempty,max=500"`
	Method     string     `json:"method" validate:"omitempty,oneof=manual qr"`
}

// MarkResult is one manifest line of a marking batch.
type MarkResult struct {
	StudentID uint   `json:"student_id"`
	Status    string `json:"status,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

type StatusCounts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
}

func (c *StatusCounts) add(code string) {
	switch code {
	case models.StatusPresent:
		c.Present++
	case models.StatusAbsent:
		c.Absent++
	case models.StatusLate:
		c.Late++
	case models.StatusExcused:
		c.Excused++
	}
}

type Summary struct {
	SessionID string `json:"session_id"`
	Version   int    `json:"version"`
	Status    string `json:"status"`
	StatusCounts
	TotalEnrolled      int    `json:"total_enrolled"`
	Marked             int    `json:"marked"`
	Unmarked           int    `json:"unmarked"`
	UnmarkedStudentIDs []uint `json:"unmarked_student_ids"`
}

// Edit reasons accepted by EditSession.
const (
	ReasonCorrection      = "correction"
	ReasonLateEntry       = "late_entry"
	ReasonDispute         = "dispute"
	ReasonExcuseSubmitted = "excuse_submitted"
	ReasonSystemError     = "system_error"
	ReasonOther           = "other"
)

type EditInput struct {
	Reason string `json:"edit_reason" validate:"required,oneof=correction late_entry dispute excuse_submitted system_error other"`
	Notes  string `json:"edit_notes" validate:"max=2000"`
	// ExpectedVersion, when non-zero, must equal the version being edited.
	ExpectedVersion int           `json:"expected_version" validate:"gte=0"`
	Session         *SessionPatch `json:"session_data"`
	Records         []RecordPatch `json:"attendance_records" validate:"dive"`
}

type SessionPatch struct {
	StartTime *string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime   *string `json:"end_time" validate:"omitempty,hhmm"`
}

func (p *SessionPatch) empty() bool {
	return p == nil || (p.StartTime == nil && p.EndTime == nil)
}

type RecordPatch struct {
	StudentID  uint       `json:"student_id" validate:"required"`
	StatusCode string     `json:"status" validate:"required,oneof=present absent late excused"`
	ArrivedAt  *time.Time `json:"arrival_time"`
	Remarks    *string    `json:"remarks" validate:"omitempty,max=500"`
}

// HistoryEntry is one version of a session with its records at that version.
// Edit is nil for the first version.
type HistoryEntry struct {
	Session models.AttendanceSession  `json:"session"`
	Edit    *models.AttendanceEditLog `json:"edit,omitempty"`
	Records []models.AttendanceRecord `json:"records"`
	Counts  StatusCounts              `json:"counts"`
}

type AutoAbsenceCandidate struct {
	Schedule models.Schedule          `json:"schedule"`
	Session  models.AttendanceSession `json:"session"`
	Deadline time.Time                `json:"deadline"`
}

type AutoAbsenceResult struct {
	SessionID  string `json:"session_id,omitempty"`
	ScheduleID uint   `json:"schedule_id,omitempty"`
	Marked     int    `json:"marked"`
	Completed  bool   `json:"completed"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}
