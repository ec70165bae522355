package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/models"
)

type recordChange struct {
	StudentID uint   `json:"student_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
}

type fieldChange struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

type changeSet struct {
	Session map[string]fieldChange `json:"session,omitempty"`
	Records []recordChange         `json:"records,omitempty"`
}

// EditSession applies a correction to a completed session. The current
// version is superseded by a new version holding a copy of every record
// with the patches applied, and one audit entry links the two. The whole
// edit commits or rolls back as a unit. A caller editing a version that is
// no longer current gets ErrVersionConflict and must reload.
func (s *Service) EditSession(ctx context.Context, actor Actor, sessionID string, in EditInput) (models.AttendanceSession, error) {
	if err := s.check(in); err != nil {
		return models.AttendanceSession{}, err
	}
	if in.Session.empty() && len(in.Records) == 0 {
		return models.AttendanceSession{}, fmt.Errorf("%w: edit changes nothing", ErrValidation)
	}
	patches := make(map[uint]RecordPatch, len(in.Records))
	for _, p := range in.Records {
		if _, dup := patches[p.StudentID]; dup {
			return models.AttendanceSession{}, fmt.Errorf("%w: student %d patched twice", ErrValidation, p.StudentID)
		}
		patches[p.StudentID] = p
	}

	db := s.DB.WithContext(ctx)
	old, err := loadSession(db, sessionID, false)
	if err != nil {
		return models.AttendanceSession{}, err
	}
	if err := Authorize(actor, old); err != nil {
		return models.AttendanceSession{}, err
	}
	if _, err := Transition(old.Status, EventEdit); err != nil {
		return models.AttendanceSession{}, err
	}
	if !old.IsCurrentVersion || (in.ExpectedVersion != 0 && in.ExpectedVersion != old.Version) {
		return models.AttendanceSession{}, ErrVersionConflict
	}

	next := old
	next.ID = ""
	next.Version = old.Version + 1
	next.IsCurrentVersion = true
	next.PreviousVersionID = &old.ID
	next.CreatedBy = actor.UserID
	next.CreatedAt, next.UpdatedAt = s.now(), s.now()
	changes := changeSet{}
	if !in.Session.empty() {
		changes.Session = map[string]fieldChange{}
		if in.Session.StartTime != nil {
			v, err := normalizeClock(*in.Session.StartTime)
			if err != nil {
				return models.AttendanceSession{}, err
			}
			prev := next.StartTime
			changes.Session["start_time"] = fieldChange{From: &prev, To: &v}
			next.StartTime = v
		}
		if in.Session.EndTime != nil {
			v, err := normalizeClock(*in.Session.EndTime)
			if err != nil {
				return models.AttendanceSession{}, err
			}
			changes.Session["end_time"] = fieldChange{From: next.EndTime, To: &v}
			next.EndTime = &v
		}
		if err := checkWindow(next.StartTime, next.EndTime); err != nil {
			return models.AttendanceSession{}, err
		}
	}

	statusIDs, statusCodes, err := s.statusIndex(ctx)
	if err != nil {
		return models.AttendanceSession{}, err
	}
	var enrolled map[uint]struct{}
	if len(patches) > 0 {
		enrolled, _, err = collectIDs(s.Enrollment.EnrolledStudents(ctx, old.SectionIDRef))
		if err != nil {
			return models.AttendanceSession{}, err
		}
	}

	now := s.now()
	err = db.Transaction(func(tx *gorm.DB) error {
		// the version guard is the only ordering between concurrent editors
		res := tx.Model(&models.AttendanceSession{}).
			Where("id = ? AND version = ? AND is_current_version = ?", old.ID, old.Version, true).
			Update("is_current_version", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		if err := tx.Create(&next).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrVersionConflict
			}
			return err
		}

		var prior []models.AttendanceRecord
		if err := tx.Where("session_id_ref = ? AND is_current_version = ?", old.ID, true).
			Order("student_id_ref").
			Find(&prior).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.AttendanceRecord{}).
			Where("session_id_ref = ? AND is_current_version = ?", old.ID, true).
			Update("is_current_version", false).Error; err != nil {
			return err
		}

		copied := make([]models.AttendanceRecord, 0, len(prior)+len(patches))
		seen := make(map[uint]struct{}, len(prior))
		for _, rec := range prior {
			seen[rec.StudentIDRef] = struct{}{}
			rec.ID = 0
			rec.SessionIDRef = next.ID
			rec.Version = next.Version
			rec.IsCurrentVersion = true
			rec.CreatedAt, rec.UpdatedAt = now, now
			if p, ok := patches[rec.StudentIDRef]; ok {
				changes.Records = append(changes.Records, recordChange{
					StudentID: rec.StudentIDRef,
					From:      statusCodes[rec.StatusIDRef],
					To:        p.StatusCode,
				})
				applyPatch(&rec, p, statusIDs[p.StatusCode], actor, now)
			}
			copied = append(copied, rec)
		}
		for _, p := range in.Records {
			if _, ok := seen[p.StudentID]; ok {
				continue
			}
			if _, ok := enrolled[p.StudentID]; !ok {
				return fmt.Errorf("%w: student %d", ErrStudentNotEnrolled, p.StudentID)
			}
			rec := models.AttendanceRecord{
				SessionIDRef:     next.ID,
				StudentIDRef:     p.StudentID,
				Version:          next.Version,
				IsCurrentVersion: true,
			}
			applyPatch(&rec, p, statusIDs[p.StatusCode], actor, now)
			changes.Records = append(changes.Records, recordChange{StudentID: p.StudentID, To: p.StatusCode})
			copied = append(copied, rec)
		}
		if len(copied) > 0 {
			if err := tx.Create(&copied).Error; err != nil {
				return err
			}
		}

		raw, err := json.Marshal(changes)
		if err != nil {
			return err
		}
		entry := models.AttendanceEditLog{
			FromSessionID: old.ID,
			ToSessionID:   next.ID,
			FromVersion:   old.Version,
			ToVersion:     next.Version,
			TeacherIDRef:  old.TeacherIDRef,
			SectionIDRef:  old.SectionIDRef,
			SubjectKey:    old.SubjectKey,
			SessionDate:   old.SessionDate,
			ActorIDRef:    actor.UserID,
			ActorRole:     actor.Role,
			Reason:        in.Reason,
			Notes:         in.Notes,
			Changes:       datatypes.JSON(raw),
			CreatedAt:     now,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return models.AttendanceSession{}, err
	}
	s.publish(Notification{Type: NotifyEdited, Session: next})
	return next, nil
}

func applyPatch(rec *models.AttendanceRecord, p RecordPatch, statusID uint, actor Actor, now time.Time) {
	rec.StatusIDRef = statusID
	rec.StatusCode = p.StatusCode
	if p.ArrivedAt != nil {
		rec.ArrivedAt = p.ArrivedAt
	}
	if p.Remarks != nil {
		rec.Remarks = p.Remarks
	}
	rec.MarkedBy = actor.UserID
	rec.MarkedAt = now
	rec.MarkingMethod = models.MethodManual
	rec.DataSource = SourceEdit
}

// SessionHistory lists every version sharing sessionID's natural key,
// oldest first, each with the edit that produced it and its records.
func (s *Service) SessionHistory(ctx context.Context, sessionID string) iter.Seq2[HistoryEntry, error] {
	return func(yield func(HistoryEntry, error) bool) {
		db := s.DB.WithContext(ctx)
		anchor, err := loadSession(db, sessionID, false)
		if err != nil {
			yield(HistoryEntry{}, err)
			return
		}
		fetch := func(after int, limit int) ([]models.AttendanceSession, error) {
			var out []models.AttendanceSession
			err := db.Where("teacher_id_ref = ? AND section_id_ref = ? AND subject_key = ? AND session_date = ? AND version > ?",
				anchor.TeacherIDRef, anchor.SectionIDRef, anchor.SubjectKey, anchor.SessionDate, after).
				Order("version").
				Limit(limit).
				Find(&out).Error
			return out, err
		}
		for version, err := range paged(fetch, func(v models.AttendanceSession) int { return v.Version }) {
			if err != nil {
				yield(HistoryEntry{}, err)
				return
			}
			entry, err := s.historyEntry(ctx, db, version)
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

func (s *Service) historyEntry(ctx context.Context, db *gorm.DB, version models.AttendanceSession) (HistoryEntry, error) {
	entry := HistoryEntry{Session: version}
	recs, err := s.records(ctx, db, version)
	if err != nil {
		return entry, err
	}
	entry.Records = recs
	for _, r := range recs {
		entry.Counts.add(r.StatusCode)
	}
	if version.Version > 1 {
		var edit models.AttendanceEditLog
		if err := db.Where("to_session_id = ?", version.ID).Limit(1).Find(&edit).Error; err != nil {
			return entry, err
		}
		if edit.ID != 0 {
			entry.Edit = &edit
		}
	}
	return entry, nil
}
