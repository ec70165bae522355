package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/models"
)

// Data source tags stored on records.
const (
	SourceManual      = "manual_entry"
	SourceQR          = "qr_scanner"
	SourceAutoAbsence = "auto_absence"
	SourceEdit        = "session_edit"
)

// MarkAttendance upserts one current record per student for an active
// session. Repeated students in one batch keep their last value; marking a
// student again later overwrites the same record. Items that fail
// validation or enrollment are reported in the manifest while the rest
// commit together.
func (s *Service) MarkAttendance(ctx context.Context, actor Actor, sessionID string, items []MarkInput) ([]MarkResult, error) {
	return s.mark(ctx, actor, sessionID, items, SourceManual)
}

func (s *Service) mark(ctx context.Context, actor Actor, sessionID string, items []MarkInput, source string) ([]MarkResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no students to mark", ErrValidation)
	}
	db := s.DB.WithContext(ctx)
	sess, err := loadSession(db, sessionID, false)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, sess); err != nil {
		return nil, err
	}
	if _, err := Transition(sess.Status, EventMark); err != nil {
		return nil, err
	}
	enrolled, _, err := collectIDs(s.Enrollment.EnrolledStudents(ctx, sess.SectionIDRef))
	if err != nil {
		return nil, err
	}
	statusIDs, _, err := s.statusIndex(ctx)
	if err != nil {
		return nil, err
	}

	// last value wins, manifest keeps first-seen order
	order := make([]uint, 0, len(items))
	latest := make(map[uint]MarkInput, len(items))
	for _, it := range items {
		if _, seen := latest[it.StudentID]; !seen {
			order = append(order, it.StudentID)
		}
		latest[it.StudentID] = it
	}

	now := s.now()
	results := make([]MarkResult, 0, len(order))
	var pending []models.AttendanceRecord
	for _, id := range order {
		it := latest[id]
		res := MarkResult{StudentID: id, Status: it.StatusCode}
		if err := s.check(it); err != nil {
			res.Err = err
		} else if _, ok := enrolled[id]; !ok {
			res.Err = fmt.Errorf("%w: student %d", ErrStudentNotEnrolled, id)
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
			results = append(results, res)
			continue
		}
		method := it.Method
		if method == "" {
			method = models.MethodManual
		}
		pending = append(pending, models.AttendanceRecord{
			SessionIDRef:     sess.ID,
			StudentIDRef:     id,
			StatusIDRef:      statusIDs[it.StatusCode],
			StatusCode:       it.StatusCode,
			ArrivedAt:        it.ArrivedAt,
			MarkedBy:         actor.UserID,
			MarkedAt:         now,
			Remarks:          it.Remarks,
			MarkingMethod:    method,
			IsCurrentVersion: true,
			Version:          sess.Version,
			DataSource:       source,
		})
		res.OK = true
		results = append(results, res)
	}
	if len(pending) == 0 {
		return results, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := loadSession(tx, sess.ID, true)
		if err != nil {
			return err
		}
		if _, err := Transition(locked.Status, EventMark); err != nil {
			return err
		}
		for _, rec := range pending {
			if err := upsertRecord(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	marked := make([]uint, 0, len(pending))
	for _, rec := range pending {
		marked = append(marked, rec.StudentIDRef)
	}
	s.publish(Notification{Type: NotifyMarked, Session: sess, StudentIDs: marked})
	return results, nil
}

// upsertRecord overwrites the student's current record in place, or inserts one.
func upsertRecord(tx *gorm.DB, rec models.AttendanceRecord) error {
	var existing models.AttendanceRecord
	err := tx.Where("session_id_ref = ? AND student_id_ref = ? AND is_current_version = ?", rec.SessionIDRef, rec.StudentIDRef, true).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&rec).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&existing).Updates(map[string]any{
		"status_id_ref":  rec.StatusIDRef,
		"arrived_at":     rec.ArrivedAt,
		"marked_by":      rec.MarkedBy,
		"marked_at":      rec.MarkedAt,
		"remarks":        rec.Remarks,
		"marking_method": rec.MarkingMethod,
		"data_source":    rec.DataSource,
	}).Error
}

// CheckInByQR marks the student holding qrCode as present, or late when
// they arrive after the session start plus the late threshold.
func (s *Service) CheckInByQR(ctx context.Context, actor Actor, sessionID, qrCode string, at time.Time) (MarkResult, error) {
	student, err := s.Students.StudentByQRCode(ctx, qrCode)
	if err != nil {
		return MarkResult{}, err
	}
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return MarkResult{}, err
	}
	status := models.StatusPresent
	start, err := clockOn(sess.SessionDate, sess.StartTime, s.Location)
	if err == nil && at.After(start.Add(s.LateThreshold)) {
		status = models.StatusLate
	}
	arrived := at.UTC()
	results, err := s.mark(ctx, actor, sessionID, []MarkInput{{
		StudentID:  student.ID,
		StatusCode: status,
		ArrivedAt:  &arrived,
		Method:     models.MethodQR,
	}}, SourceQR)
	if err != nil {
		return MarkResult{}, err
	}
	res := results[0]
	return res, res.Err
}

// SessionSummary counts marks for enrolled students. Students without a
// record are unmarked, not absent.
func (s *Service) SessionSummary(ctx context.Context, sessionID string) (Summary, error) {
	db := s.DB.WithContext(ctx)
	sess, err := loadSession(db, sessionID, false)
	if err != nil {
		return Summary{}, err
	}
	_, enrolled, err := collectIDs(s.Enrollment.EnrolledStudents(ctx, sess.SectionIDRef))
	if err != nil {
		return Summary{}, err
	}
	recs, err := s.records(ctx, db, sess)
	if err != nil {
		return Summary{}, err
	}
	byStudent := make(map[uint]string, len(recs))
	for _, r := range recs {
		byStudent[r.StudentIDRef] = r.StatusCode
	}

	sum := Summary{
		SessionID:          sess.ID,
		Version:            sess.Version,
		Status:             sess.Status,
		TotalEnrolled:      len(enrolled),
		UnmarkedStudentIDs: []uint{},
	}
	for _, id := range enrolled {
		code, ok := byStudent[id]
		if !ok {
			sum.Unmarked++
			sum.UnmarkedStudentIDs = append(sum.UnmarkedStudentIDs, id)
			continue
		}
		sum.Marked++
		sum.add(code)
	}
	return sum, nil
}

// AutoMarkAbsent records Absent (method auto) for every enrolled student
// without a current record. Running it again finds nobody left to mark.
func (s *Service) AutoMarkAbsent(ctx context.Context, sessionID string) (int, error) {
	db := s.DB.WithContext(ctx)
	sess, err := loadSession(db, sessionID, false)
	if err != nil {
		return 0, err
	}
	if _, err := Transition(sess.Status, EventAutoAbsence); err != nil {
		return 0, err
	}
	_, enrolled, err := collectIDs(s.Enrollment.EnrolledStudents(ctx, sess.SectionIDRef))
	if err != nil {
		return 0, err
	}
	statusIDs, _, err := s.statusIndex(ctx)
	if err != nil {
		return 0, err
	}
	var marked []uint
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := loadSession(tx, sess.ID, true)
		if err != nil {
			return err
		}
		if _, err := Transition(locked.Status, EventAutoAbsence); err != nil {
			return err
		}
		marked, err = autoMarkAbsentTx(tx, locked, enrolled, statusIDs[models.StatusAbsent], s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(marked) > 0 {
		s.publish(Notification{Type: NotifyAutoAbsence, Session: sess, StudentIDs: marked})
	}
	return len(marked), nil
}

func autoMarkAbsentTx(tx *gorm.DB, sess models.AttendanceSession, enrolled []uint, absentID uint, now time.Time) ([]uint, error) {
	var markedIDs []uint
	if err := tx.Model(&models.AttendanceRecord{}).
		Where("session_id_ref = ? AND is_current_version = ?", sess.ID, true).
		Pluck("student_id_ref", &markedIDs).Error; err != nil {
		return nil, err
	}
	have := make(map[uint]struct{}, len(markedIDs))
	for _, id := range markedIDs {
		have[id] = struct{}{}
	}
	var recs []models.AttendanceRecord
	for _, id := range enrolled {
		if _, ok := have[id]; ok {
			continue
		}
		recs = append(recs, models.AttendanceRecord{
			SessionIDRef:     sess.ID,
			StudentIDRef:     id,
			StatusIDRef:      absentID,
			MarkedAt:         now,
			MarkingMethod:    models.MethodAuto,
			IsCurrentVersion: true,
			Version:          sess.Version,
			DataSource:       SourceAutoAbsence,
		})
	}
	if len(recs) == 0 {
		return nil, nil
	}
	if err := tx.Create(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]uint, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.StudentIDRef)
	}
	return out, nil
}
