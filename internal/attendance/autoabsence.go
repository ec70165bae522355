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

// errCandidateGone means another run already handled the session.
var errCandidateGone = errors.New("session no longer needs auto-absence")

// SchedulesNeedingAutoAbsence lazily yields today's active, current
// sessions whose schedule window (plus the grace period) closed before now
// and that were not auto-marked yet. A session whose schedule lookup fails
// is yielded with the error and the sequence continues.
func (s *Service) SchedulesNeedingAutoAbsence(ctx context.Context, now time.Time) iter.Seq2[AutoAbsenceCandidate, error] {
	local := now.In(s.Location)
	today := local.Format(dateLayout)
	fetch := func(after string, limit int) ([]models.AttendanceSession, error) {
		var out []models.AttendanceSession
		err := s.DB.WithContext(ctx).
			Where("session_date = ? AND status = ? AND is_current_version = ? AND auto_absence_marked = ? AND id > ?",
				today, models.SessionActive, true, false, after).
			Order("id").
			Limit(limit).
			Find(&out).Error
		return out, err
	}
	sessions := paged(fetch, func(sess models.AttendanceSession) string { return sess.ID })

	return func(yield func(AutoAbsenceCandidate, error) bool) {
		for sess, err := range sessions {
			if err != nil {
				yield(AutoAbsenceCandidate{}, err)
				return
			}
			cand := AutoAbsenceCandidate{Session: sess}
			sched, ok, err := s.scheduleFor(ctx, sess, local.Weekday())
			if err != nil {
				if !yield(cand, err) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			end := sched.EndTime
			if sess.EndTime != nil {
				end = laterClock(end, *sess.EndTime)
			}
			closes, err := clockOn(today, end, s.Location)
			if err != nil {
				if !yield(cand, fmt.Errorf("schedule %d: bad end time %q: %w", sched.ID, end, err)) {
					return
				}
				continue
			}
			cand.Schedule = sched
			cand.Deadline = closes.Add(s.GracePeriod)
			if !now.After(cand.Deadline) {
				continue
			}
			if !yield(cand, nil) {
				return
			}
		}
	}
}

func (s *Service) scheduleFor(ctx context.Context, sess models.AttendanceSession, day time.Weekday) (models.Schedule, bool, error) {
	if sess.ScheduleIDRef != nil {
		sched, err := s.Schedules.ScheduleByID(ctx, *sess.ScheduleIDRef)
		if err != nil {
			return sched, false, err
		}
		return sched, true, nil
	}
	return s.Schedules.FindSchedule(ctx, ScheduleQuery{
		TeacherID: sess.TeacherIDRef,
		SectionID: sess.SectionIDRef,
		SubjectID: sess.SubjectIDRef,
		Day:       day,
		At:        sess.StartTime,
	})
}

// ProcessAutoAbsence marks the remaining students absent, completes the
// session and flags it, for every candidate at now. Each candidate commits
// on its own; failures are logged and reported in the manifest without
// stopping the run.
func (s *Service) ProcessAutoAbsence(ctx context.Context, now time.Time) []AutoAbsenceResult {
	results := []AutoAbsenceResult{}
	for cand, err := range s.SchedulesNeedingAutoAbsence(ctx, now) {
		res := AutoAbsenceResult{SessionID: cand.Session.ID, ScheduleID: cand.Schedule.ID}
		if err == nil {
			res.Marked, err = s.processCandidate(ctx, cand, now)
		}
		switch {
		case errors.Is(err, errCandidateGone):
			res.Skipped = true
		case err != nil:
			res.Error = err.Error()
			s.Logger.Printf("[AUTO-ABSENCE] session=%s schedule=%d failed: %v", res.SessionID, res.ScheduleID, err)
		default:
			res.Completed = true
			s.Logger.Printf("[AUTO-ABSENCE] session=%s schedule=%d marked=%d completed", res.SessionID, res.ScheduleID, res.Marked)
		}
		results = append(results, res)
	}
	return results
}

func (s *Service) processCandidate(ctx context.Context, cand AutoAbsenceCandidate, now time.Time) (int, error) {
	_, enrolled, err := collectIDs(s.Enrollment.EnrolledStudents(ctx, cand.Session.SectionIDRef))
	if err != nil {
		return 0, err
	}
	statusIDs, _, err := s.statusIndex(ctx)
	if err != nil {
		return 0, err
	}
	var (
		marked []uint
		done   models.AttendanceSession
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := loadSession(tx, cand.Session.ID, true)
		if err != nil {
			return err
		}
		if sess.Status != models.SessionActive || !sess.IsCurrentVersion || sess.AutoAbsenceMarked {
			return errCandidateGone
		}
		marked, err = autoMarkAbsentTx(tx, sess, enrolled, statusIDs[models.StatusAbsent], now.UTC())
		if err != nil {
			return err
		}
		done, err = completeTx(tx, sess, now.UTC())
		if err != nil {
			return err
		}
		done.AutoAbsenceMarked = true
		return tx.Model(&models.AttendanceSession{}).Where("id = ?", sess.ID).Update("auto_absence_marked", true).Error
	})
	if err != nil {
		return 0, err
	}
	if len(marked) > 0 {
		s.publish(Notification{Type: NotifyAutoAbsence, Session: done, StudentIDs: marked})
	}
	s.publish(Notification{Type: NotifyCompleted, Session: done})
	return len(marked), nil
}
