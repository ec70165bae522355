// Package attendance implements the attendance session lifecycle: sessions,
// per-student marks, completion, versioned edits with an audit trail, and
// the auto-absence batch.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lamms/attendance_backend/internal/models"
)

// Event types published to the Notifier.
const (
	NotifyStarted     = "session_started"
	NotifyMarked      = "attendance_marked"
	NotifyCompleted   = "session_completed"
	NotifyEdited      = "session_edited"
	NotifyAutoAbsence = "auto_absence"
)

type Notification struct {
	Type       string
	Session    models.AttendanceSession
	StudentIDs []uint
}

// Notifier receives session changes after they commit.
type Notifier interface {
	Publish(n Notification)
}

type Options struct {
	Location      *time.Location
	GracePeriod   time.Duration
	LateThreshold time.Duration
	Notifier      Notifier
	Logger        *log.Logger
	Now           func() time.Time
}

type Service struct {
	DB         *gorm.DB
	Enrollment EnrollmentDirectory
	Schedules  ScheduleDirectory
	Statuses   StatusCatalog
	Sections   SectionDirectory
	Students   StudentDirectory

	Notifier      Notifier
	Logger        *log.Logger
	Location      *time.Location
	GracePeriod   time.Duration
	LateThreshold time.Duration
	Now           func() time.Time

	validate *validator.Validate
}

// New wires a Service whose directories all read from db.
func New(db *gorm.DB, opts Options) *Service {
	dir := NewGormDirectory(db)
	s := &Service{
		DB:            db,
		Enrollment:    dir,
		Schedules:     dir,
		Statuses:      dir,
		Sections:      dir,
		Students:      dir,
		Notifier:      opts.Notifier,
		Logger:        opts.Logger,
		Location:      opts.Location,
		GracePeriod:   opts.GracePeriod,
		LateThreshold: opts.LateThreshold,
		Now:           opts.Now,
		validate:      newValidator(),
	}
	if s.Logger == nil {
		s.Logger = log.Default()
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := parseClock(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("attendance: register hhmm validator: %v", err))
	}
	return v
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	return nil
}

func (s *Service) now() time.Time { return s.Now().UTC() }

func (s *Service) publish(n Notification) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Publish(n)
}

// Session returns one session version by id.
func (s *Service) Session(ctx context.Context, id string) (models.AttendanceSession, error) {
	return loadSession(s.DB.WithContext(ctx), id, false)
}

func loadSession(db *gorm.DB, id string, lock bool) (models.AttendanceSession, error) {
	var sess models.AttendanceSession
	if _, err := uuid.Parse(id); err != nil {
		return sess, ErrSessionNotFound
	}
	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sess, ErrSessionNotFound
	}
	return sess, err
}

// records loads the marks belonging to one session version and fills StatusCode.
func (s *Service) records(ctx context.Context, db *gorm.DB, sess models.AttendanceSession) ([]models.AttendanceRecord, error) {
	var recs []models.AttendanceRecord
	if err := db.Where("session_id_ref = ? AND is_current_version = ?", sess.ID, sess.IsCurrentVersion).
		Order("student_id_ref").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	for i := range recs {
		st, err := s.Statuses.StatusByID(ctx, recs[i].StatusIDRef)
		if err != nil {
			return nil, err
		}
		recs[i].StatusCode = st.Code
	}
	return recs, nil
}

// SessionRecords lists the marks of one session version.
func (s *Service) SessionRecords(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	db := s.DB.WithContext(ctx)
	sess, err := loadSession(db, sessionID, false)
	if err != nil {
		return nil, err
	}
	return s.records(ctx, db, sess)
}
