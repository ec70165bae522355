package attendance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/models"
)

// EnrollmentDirectory lists the active students currently enrolled in a section.
// The sequence yields ErrSectionNotFound when the section does not exist.
type EnrollmentDirectory interface {
	EnrolledStudents(ctx context.Context, sectionID uint) iter.Seq2[uint, error]
}

type ScheduleQuery struct {
	TeacherID uint
	SectionID uint
	SubjectID *uint
	Day       time.Weekday
	At        string // "HH:MM"
}

type ScheduleDirectory interface {
	ScheduleByID(ctx context.Context, id uint) (models.Schedule, error)
	// FindSchedule returns the slot in progress (or next) at q.At, falling
	// back to the last slot of the day. ok is false when no slot matches.
	FindSchedule(ctx context.Context, q ScheduleQuery) (sched models.Schedule, ok bool, err error)
}

type StatusCatalog interface {
	StatusByCode(ctx context.Context, code string) (models.AttendanceStatus, error)
	StatusByID(ctx context.Context, id uint) (models.AttendanceStatus, error)
}

type SectionDirectory interface {
	Section(ctx context.Context, id uint) (models.Section, error)
}

type StudentDirectory interface {
	StudentByQRCode(ctx context.Context, code string) (models.Student, error)
}

// GormDirectory serves every directory interface from the relational schema.
type GormDirectory struct {
	DB *gorm.DB

	mu     sync.RWMutex
	byCode map[string]models.AttendanceStatus
	byID   map[uint]models.AttendanceStatus
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{DB: db}
}

func (d *GormDirectory) EnrolledStudents(ctx context.Context, sectionID uint) iter.Seq2[uint, error] {
	return func(yield func(uint, error) bool) {
		var count int64
		if err := d.DB.WithContext(ctx).Model(&models.Section{}).Where("id = ?", sectionID).Count(&count).Error; err != nil {
			yield(0, err)
			return
		}
		if count == 0 {
			yield(0, fmt.Errorf("%w: %d", ErrSectionNotFound, sectionID))
			return
		}
		fetch := func(after uint, limit int) ([]uint, error) {
			var ids []uint
			err := d.DB.WithContext(ctx).Table("section_students AS ss").
				Joins("JOIN students s ON s.id = ss.student_id_ref").
				Where("ss.section_id_ref = ? AND ss.active = ?", sectionID, true).
				Where("s.active = ? AND s.deleted_at IS NULL AND s.id > ?", true, after).
				Order("s.id").
				Limit(limit).
				Pluck("s.id", &ids).Error
			return ids, err
		}
		for id, err := range paged(fetch, func(id uint) uint { return id }) {
			if !yield(id, err) {
				return
			}
		}
	}
}

func (d *GormDirectory) ScheduleByID(ctx context.Context, id uint) (models.Schedule, error) {
	var sched models.Schedule
	err := d.DB.WithContext(ctx).Where("id = ?", id).First(&sched).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sched, fmt.Errorf("%w: schedule %d not found", ErrValidation, id)
	}
	return sched, err
}

func (d *GormDirectory) FindSchedule(ctx context.Context, q ScheduleQuery) (models.Schedule, bool, error) {
	var slots []models.Schedule
	tx := d.DB.WithContext(ctx).
		Where("teacher_id_ref = ? AND section_id_ref = ? AND day_of_week = ? AND active = ?", q.TeacherID, q.SectionID, int(q.Day), true)
	if q.SubjectID == nil {
		tx = tx.Where("subject_id_ref IS NULL")
	} else {
		tx = tx.Where("subject_id_ref = ?", *q.SubjectID)
	}
	if err := tx.Find(&slots).Error; err != nil {
		return models.Schedule{}, false, err
	}
	if len(slots) == 0 {
		return models.Schedule{}, false, nil
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime < slots[j].StartTime })
	at, err := parseClock(q.At)
	if err == nil {
		for _, s := range slots {
			end, err := parseClock(s.EndTime)
			if err == nil && end.After(at) {
				return s, true, nil
			}
		}
	}
	return slots[len(slots)-1], true, nil
}

func (d *GormDirectory) loadStatuses(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.byCode != nil
	d.mu.RUnlock()
	if loaded {
		return nil
	}
	var all []models.AttendanceStatus
	if err := d.DB.WithContext(ctx).Find(&all).Error; err != nil {
		return err
	}
	if len(all) == 0 {
		return errors.New("attendance status catalog is empty")
	}
	byCode := make(map[string]models.AttendanceStatus, len(all))
	byID := make(map[uint]models.AttendanceStatus, len(all))
	for _, s := range all {
		byCode[s.Code] = s
		byID[s.ID] = s
	}
	d.mu.Lock()
	d.byCode, d.byID = byCode, byID
	d.mu.Unlock()
	return nil
}

func (d *GormDirectory) StatusByCode(ctx context.Context, code string) (models.AttendanceStatus, error) {
	if err := d.loadStatuses(ctx); err != nil {
		return models.AttendanceStatus{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byCode[code]
	if !ok {
		return s, fmt.Errorf("%w: unknown status %q", ErrValidation, code)
	}
	return s, nil
}

func (d *GormDirectory) StatusByID(ctx context.Context, id uint) (models.AttendanceStatus, error) {
	if err := d.loadStatuses(ctx); err != nil {
		return models.AttendanceStatus{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byID[id]
	if !ok {
		return s, fmt.Errorf("unknown status id %d", id)
	}
	return s, nil
}

func (d *GormDirectory) Section(ctx context.Context, id uint) (models.Section, error) {
	var sec models.Section
	err := d.DB.WithContext(ctx).Where("id = ?", id).First(&sec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sec, fmt.Errorf("%w: %d", ErrSectionNotFound, id)
	}
	return sec, err
}

func (d *GormDirectory) StudentByQRCode(ctx context.Context, code string) (models.Student, error) {
	var st models.Student
	err := d.DB.WithContext(ctx).Where("qr_code = ? AND active = ?", code, true).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return st, fmt.Errorf("%w: unknown QR code", ErrValidation)
	}
	return st, err
}
