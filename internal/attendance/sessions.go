package attendance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/models"
)

var knownStatuses = []string{models.StatusPresent, models.StatusAbsent, models.StatusLate, models.StatusExcused}

// statusIndex resolves the catalog up front so transactions never go back to the directory.
func (s *Service) statusIndex(ctx context.Context) (map[string]uint, map[uint]string, error) {
	ids := make(map[string]uint, len(knownStatuses))
	codes := make(map[uint]string, len(knownStatuses))
	for _, code := range knownStatuses {
		st, err := s.Statuses.StatusByCode(ctx, code)
		if err != nil {
			return nil, nil, err
		}
		ids[code] = st.ID
		codes[st.ID] = code
	}
	return ids, codes, nil
}

func subjectKey(subjectID *uint) uint {
	if subjectID == nil {
		return 0
	}
	return *subjectID
}

func resolveSessionType(in CreateSessionInput) (SessionType, error) {
	t := in.Type
	if t == "" {
		if in.SubjectID == nil {
			return Homeroom, nil
		}
		return SubjectTeacher, nil
	}
	t, err := ParseSessionType(string(t))
	if err != nil {
		return "", err
	}
	if t == Homeroom && in.SubjectID != nil {
		return "", fmt.Errorf("%w: homeroom sessions have no subject", ErrValidation)
	}
	if t == SubjectTeacher && in.SubjectID == nil {
		return "", fmt.Errorf("%w: subject sessions need a subject_id", ErrValidation)
	}
	return t, nil
}

// currentSession finds the current version for a natural key.
func currentSession(db *gorm.DB, teacherID, sectionID, subjectKey uint, date string) (models.AttendanceSession, bool, error) {
	var sess models.AttendanceSession
	err := db.Where("teacher_id_ref = ? AND section_id_ref = ? AND subject_key = ? AND session_date = ? AND is_current_version = ?",
		teacherID, sectionID, subjectKey, date, true).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sess, false, nil
	}
	if err != nil {
		return sess, false, err
	}
	return sess, true, nil
}

// CreateSession starts an active session at version 1.
//
// When an active session already exists for the same key the existing
// session is returned together with ErrDuplicateActiveSession so the caller
// can resume it. A completed session for the key yields ErrInvalidState;
// it has to be edited instead.
func (s *Service) CreateSession(ctx context.Context, actor Actor, in CreateSessionInput) (models.AttendanceSession, error) {
	if err := s.check(in); err != nil {
		return models.AttendanceSession{}, err
	}
	stype, err := resolveSessionType(in)
	if err != nil {
		return models.AttendanceSession{}, err
	}
	if !actor.IsAdmin() && actor.UserID != in.TeacherID {
		return models.AttendanceSession{}, ErrForbidden
	}
	section, err := s.Sections.Section(ctx, in.SectionID)
	if err != nil {
		if errors.Is(err, ErrSectionNotFound) {
			return models.AttendanceSession{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return models.AttendanceSession{}, err
	}
	if stype == Homeroom && (section.HomeroomTeacherIDRef == nil || *section.HomeroomTeacherIDRef != in.TeacherID) {
		return models.AttendanceSession{}, fmt.Errorf("%w: teacher %d is not the homeroom teacher of section %d", ErrForbidden, in.TeacherID, in.SectionID)
	}

	start, err := normalizeClock(in.StartTime)
	if err != nil {
		return models.AttendanceSession{}, err
	}
	sess := models.AttendanceSession{
		TeacherIDRef:     in.TeacherID,
		SectionIDRef:     in.SectionID,
		SubjectIDRef:     in.SubjectID,
		SubjectKey:       subjectKey(in.SubjectID),
		SessionDate:      in.Date,
		SessionType:      string(stype),
		StartTime:        start,
		Status:           models.SessionActive,
		Version:          1,
		IsCurrentVersion: true,
		CreatedBy:        actor.UserID,
	}
	if in.EndTime != nil {
		end, err := normalizeClock(*in.EndTime)
		if err != nil {
			return models.AttendanceSession{}, err
		}
		sess.EndTime = &end
		if err := checkWindow(start, sess.EndTime); err != nil {
			return models.AttendanceSession{}, err
		}
	}
	if err := s.linkSchedule(ctx, &sess, in.ScheduleID); err != nil {
		return models.AttendanceSession{}, err
	}

	db := s.DB.WithContext(ctx)
	existing, found, err := currentSession(db, sess.TeacherIDRef, sess.SectionIDRef, sess.SubjectKey, sess.SessionDate)
	if err != nil {
		return models.AttendanceSession{}, err
	}
	if found {
		return s.existingSessionError(existing)
	}
	if err := db.Create(&sess).Error; err != nil {
		if IsUniqueViolation(err) {
			// lost the race against a concurrent create
			existing, found, lerr := currentSession(db, sess.TeacherIDRef, sess.SectionIDRef, sess.SubjectKey, sess.SessionDate)
			if lerr == nil && found {
				return s.existingSessionError(existing)
			}
			return models.AttendanceSession{}, ErrDuplicateActiveSession
		}
		return models.AttendanceSession{}, err
	}
	s.publish(Notification{Type: NotifyStarted, Session: sess})
	return sess, nil
}

func (s *Service) existingSessionError(existing models.AttendanceSession) (models.AttendanceSession, error) {
	if existing.Status == models.SessionActive {
		return existing, ErrDuplicateActiveSession
	}
	return existing, fmt.Errorf("%w: attendance for this class and date is already completed; edit it instead", ErrInvalidState)
}

// linkSchedule attaches the schedule slot and fills a missing end time from it.
func (s *Service) linkSchedule(ctx context.Context, sess *models.AttendanceSession, scheduleID *uint) error {
	var (
		sched models.Schedule
		ok    bool
		err   error
	)
	if scheduleID != nil {
		sched, err = s.Schedules.ScheduleByID(ctx, *scheduleID)
		if err != nil {
			return err
		}
		if sched.SectionIDRef != sess.SectionIDRef || subjectKey(sched.SubjectIDRef) != sess.SubjectKey {
			return fmt.Errorf("%w: schedule %d belongs to another class", ErrValidation, sched.ID)
		}
		ok = true
	} else {
		day, perr := time.ParseInLocation(dateLayout, sess.SessionDate, s.Location)
		if perr != nil {
			return fmt.Errorf("%w: invalid session_date", ErrValidation)
		}
		sched, ok, err = s.Schedules.FindSchedule(ctx, ScheduleQuery{
			TeacherID: sess.TeacherIDRef,
			SectionID: sess.SectionIDRef,
			SubjectID: sess.SubjectIDRef,
			Day:       day.Weekday(),
			At:        sess.StartTime,
		})
		if err != nil {
			return err
		}
	}
	if !ok {
		return nil
	}
	id := sched.ID
	sess.ScheduleIDRef = &id
	if sess.EndTime == nil && sched.EndTime != "" {
		end := sched.EndTime
		sess.EndTime = &end
	}
	return nil
}

// ActiveSessionsForTeacher lazily lists the teacher's current active sessions.
func (s *Service) ActiveSessionsForTeacher(ctx context.Context, teacherID uint) iter.Seq2[models.AttendanceSession, error] {
	fetch := func(after string, limit int) ([]models.AttendanceSession, error) {
		var out []models.AttendanceSession
		err := s.DB.WithContext(ctx).
			Where("teacher_id_ref = ? AND status = ? AND is_current_version = ? AND id > ?", teacherID, models.SessionActive, true, after).
			Order("id").
			Limit(limit).
			Find(&out).Error
		return out, err
	}
	return paged(fetch, func(sess models.AttendanceSession) string { return sess.ID })
}

// CompleteSession moves an active session to completed.
func (s *Service) CompleteSession(ctx context.Context, actor Actor, sessionID string) (models.AttendanceSession, error) {
	var done models.AttendanceSession
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := loadSession(tx, sessionID, true)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sess); err != nil {
			return err
		}
		done, err = completeTx(tx, sess, s.now())
		return err
	})
	if err != nil {
		return models.AttendanceSession{}, err
	}
	s.publish(Notification{Type: NotifyCompleted, Session: done})
	return done, nil
}

func completeTx(tx *gorm.DB, sess models.AttendanceSession, now time.Time) (models.AttendanceSession, error) {
	next, err := Transition(sess.Status, EventComplete)
	if err != nil {
		return sess, err
	}
	res := tx.Model(&models.AttendanceSession{}).
		Where("id = ? AND status = ?", sess.ID, models.SessionActive).
		Updates(map[string]any{
			"status":        next,
			"completed_at":  now,
			"actual_end_at": now,
		})
	if res.Error != nil {
		return sess, res.Error
	}
	if res.RowsAffected == 0 {
		return sess, fmt.Errorf("%w: session is already completed", ErrInvalidState)
	}
	sess.Status = next
	sess.CompletedAt = &now
	sess.ActualEndAt = &now
	return sess, nil
}
