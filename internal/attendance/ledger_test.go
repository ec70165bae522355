package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/lamms/attendance_backend/internal/models"
)

func TestMarkAttendanceManifest(t *testing.T) {
	f := newFixture(t, 2)
	sess := f.homeroom("07:30")

	stranger := models.Student{StudentNumber: "999", FirstName: "Walk", LastName: "In", QRCode: "LAMMS-STRANGER", Active: true}
	f.mustCreate(&stranger)

	results, err := f.svc.MarkAttendance(f.ctx, f.actor(), sess.ID, []MarkInput{
		{StudentID: f.students[0].ID, StatusCode: models.StatusAbsent},
		{StudentID: stranger.ID, StatusCode: models.StatusPresent},
		{StudentID: f.students[1].ID, StatusCode: "sleeping"},
		{StudentID: f.students[0].ID, StatusCode: models.StatusPresent},
	})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("manifest has %d lines, want 3: %+v", len(results), results)
	}
	if !results[0].OK || results[0].StudentID != f.students[0].ID || results[0].Status != models.StatusPresent {
		t.Fatalf("results[0] = %+v", results[0])
	}
	if results[1].OK || !errors.Is(results[1].Err, ErrStudentNotEnrolled) {
		t.Fatalf("results[1] = %+v", results[1])
	}
	if results[2].OK || !errors.Is(results[2].Err, ErrValidation) {
		t.Fatalf("results[2] = %+v", results[2])
	}

	f.mark(sess.ID, map[int]string{0: models.StatusLate})
	recs, err := f.svc.SessionRecords(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].StatusCode != models.StatusLate {
		t.Fatalf("records after re-mark = %+v", recs)
	}

	sum := f.summary(sess.ID)
	if sum.Late != 1 || sum.Marked != 1 || sum.Unmarked != 1 || len(sum.UnmarkedStudentIDs) != 1 || sum.UnmarkedStudentIDs[0] != f.students[1].ID {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestMarkAttendanceRules(t *testing.T) {
	f := newFixture(t, 1)
	sess := f.homeroom("07:30")
	items := []MarkInput{{StudentID: f.students[0].ID, StatusCode: models.StatusPresent}}

	if _, err := f.svc.MarkAttendance(f.ctx, f.actor(), sess.ID, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty batch: err = %v", err)
	}
	if _, err := f.svc.MarkAttendance(f.ctx, ActorFromUser(f.other), sess.ID, items); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other teacher: err = %v", err)
	}
	f.complete(sess.ID)
	if _, err := f.svc.MarkAttendance(f.ctx, f.actor(), sess.ID, items); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("mark completed: err = %v, want ErrSessionLocked", err)
	}
	if _, err := f.svc.AutoMarkAbsent(f.ctx, sess.ID); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("auto-absent completed: err = %v, want ErrSessionLocked", err)
	}
}

func TestAutoMarkAbsentIdempotent(t *testing.T) {
	f := newFixture(t, 3)
	sess := f.homeroom("07:30")
	f.mark(sess.ID, map[int]string{0: models.StatusPresent})

	n, err := f.svc.AutoMarkAbsent(f.ctx, sess.ID)
	if err != nil || n != 2 {
		t.Fatalf("first run: n=%d err=%v, want 2", n, err)
	}
	first, err := f.svc.SessionRecords(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	n, err = f.svc.AutoMarkAbsent(f.ctx, sess.ID)
	if err != nil || n != 0 {
		t.Fatalf("second run: n=%d err=%v, want 0", n, err)
	}
	second, err := f.svc.SessionRecords(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || len(second) != len(first) {
		t.Fatalf("records: first=%d second=%d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].StatusCode != second[i].StatusCode {
			t.Fatalf("record %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}

	got, err := f.svc.Session(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SessionActive {
		t.Fatalf("auto-absent completed the session: %+v", got)
	}
}

func TestCheckInByQR(t *testing.T) {
	f := newFixture(t, 2)
	sess := f.homeroom("07:30")

	onTime := time.Date(2025, 9, 19, 7, 40, 0, 0, manila)
	res, err := f.svc.CheckInByQR(f.ctx, f.actor(), sess.ID, f.students[0].QRCode, onTime)
	if err != nil || res.Status != models.StatusPresent {
		t.Fatalf("on time: %+v %v", res, err)
	}
	late := time.Date(2025, 9, 19, 7, 46, 0, 0, manila)
	res, err = f.svc.CheckInByQR(f.ctx, f.actor(), sess.ID, f.students[1].QRCode, late)
	if err != nil || res.Status != models.StatusLate {
		t.Fatalf("late: %+v %v", res, err)
	}
	if _, err := f.svc.CheckInByQR(f.ctx, f.actor(), sess.ID, "LAMMS-NOPE", onTime); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown code: err = %v", err)
	}

	recs, err := f.svc.SessionRecords(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if r.MarkingMethod != models.MethodQR || r.DataSource != SourceQR || r.ArrivedAt == nil {
			t.Fatalf("qr record = %+v", r)
		}
	}
}

func TestUnenrolledStudentsLeaveSummary(t *testing.T) {
	f := newFixture(t, 2)
	sess := f.homeroom("07:30")
	f.mark(sess.ID, map[int]string{0: models.StatusPresent, 1: models.StatusPresent})

	if err := f.db.Model(&models.SectionStudent{}).
		Where("student_id_ref = ?", f.students[1].ID).
		Update("active", false).Error; err != nil {
		t.Fatal(err)
	}
	sum := f.summary(sess.ID)
	if sum.TotalEnrolled != 1 || sum.Present != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}
