package attendance

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lamms/attendance_backend/internal/database"
	"github.com/lamms/attendance_backend/internal/models"
)

var manila = time.FixedZone("PHT", 8*60*60)

// testDate is a Friday.
const testDate = "2025-09-19"

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	svc      *Service
	now      time.Time
	admin    models.User
	teacher  models.User
	other    models.User
	section  models.Section
	subject  models.Subject
	students []models.Student
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.SeedAttendanceStatuses(db); err != nil {
		t.Fatalf("seed statuses: %v", err)
	}
	return db
}

// newFixture builds a section advised by f.teacher with n enrolled students.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{
		t:   t,
		ctx: context.Background(),
		db:  openTestDB(t),
		now: time.Date(2025, 9, 19, 7, 30, 0, 0, manila),
	}
	f.admin = f.user("admin@school.test", models.RoleAdmin)
	f.teacher = f.user("adviser@school.test", models.RoleTeacher)
	f.other = f.user("other@school.test", models.RoleTeacher)

	adviser := f.teacher.ID
	f.section = models.Section{Name: "Grade 7 - Sampaguita", GradeLevel: "7", HomeroomTeacherIDRef: &adviser, Active: true}
	f.mustCreate(&f.section)
	f.subject = models.Subject{Code: "MATH7", Name: "Mathematics 7"}
	f.mustCreate(&f.subject)
	for i := 0; i < n; i++ {
		f.students = append(f.students, f.enroll(f.section.ID, i))
	}

	f.svc = New(f.db, Options{
		Location:      manila,
		GracePeriod:   15 * time.Minute,
		LateThreshold: 15 * time.Minute,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) mustCreate(v any) {
	f.t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		f.t.Fatalf("create %T: %v", v, err)
	}
}

func (f *fixture) user(email, role string) models.User {
	f.t.Helper()
	u := models.User{UserID: email, FullName: email, Email: email, Role: role, Active: true}
	f.mustCreate(&u)
	return u
}

func (f *fixture) enroll(sectionID uint, i int) models.Student {
	f.t.Helper()
	st := models.Student{
		StudentNumber: fmt.Sprintf("1000%02d-%d", i, sectionID),
		FirstName:     fmt.Sprintf("Student%d", i),
		LastName:      "Dela Cruz",
		QRCode:        fmt.Sprintf("LAMMS-QR%02d-%d", i, sectionID),
		Active:        true,
	}
	f.mustCreate(&st)
	f.mustCreate(&models.SectionStudent{StudentIDRef: st.ID, SectionIDRef: sectionID, Active: true})
	return st
}

func (f *fixture) actor() Actor { return ActorFromUser(f.teacher) }

func (f *fixture) homeroom(start string) models.AttendanceSession {
	f.t.Helper()
	sess, err := f.svc.CreateSession(f.ctx, f.actor(), CreateSessionInput{
		TeacherID: f.teacher.ID,
		SectionID: f.section.ID,
		Date:      testDate,
		StartTime: start,
	})
	if err != nil {
		f.t.Fatalf("create session: %v", err)
	}
	return sess
}

func (f *fixture) mark(sessionID string, marks map[int]string) {
	f.t.Helper()
	items := make([]MarkInput, 0, len(marks))
	for i, code := range marks {
		items = append(items, MarkInput{StudentID: f.students[i].ID, StatusCode: code})
	}
	results, err := f.svc.MarkAttendance(f.ctx, f.actor(), sessionID, items)
	if err != nil {
		f.t.Fatalf("mark: %v", err)
	}
	for _, r := range results {
		if !r.OK {
			f.t.Fatalf("mark student %d: %s", r.StudentID, r.Error)
		}
	}
}

func (f *fixture) complete(sessionID string) models.AttendanceSession {
	f.t.Helper()
	done, err := f.svc.CompleteSession(f.ctx, f.actor(), sessionID)
	if err != nil {
		f.t.Fatalf("complete: %v", err)
	}
	return done
}

func (f *fixture) summary(sessionID string) Summary {
	f.t.Helper()
	sum, err := f.svc.SessionSummary(f.ctx, sessionID)
	if err != nil {
		f.t.Fatalf("summary: %v", err)
	}
	return sum
}

func (f *fixture) history(sessionID string) []HistoryEntry {
	f.t.Helper()
	var out []HistoryEntry
	for entry, err := range f.svc.SessionHistory(f.ctx, sessionID) {
		if err != nil {
			f.t.Fatalf("history: %v", err)
		}
		out = append(out, entry)
	}
	return out
}

func (f *fixture) currentCount(sess models.AttendanceSession) int64 {
	f.t.Helper()
	var n int64
	if err := f.db.Model(&models.AttendanceSession{}).
		Where("teacher_id_ref = ? AND section_id_ref = ? AND subject_key = ? AND session_date = ? AND is_current_version = ?",
			sess.TeacherIDRef, sess.SectionIDRef, sess.SubjectKey, sess.SessionDate, true).
		Count(&n).Error; err != nil {
		f.t.Fatalf("count current: %v", err)
	}
	return n
}

func statusOf(recs []models.AttendanceRecord, studentID uint) string {
	for _, r := range recs {
		if r.StudentIDRef == studentID {
			return r.StatusCode
		}
	}
	return ""
}
