package attendance

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lamms/attendance_backend/internal/models"
)

func TestMarkCompleteSummary(t *testing.T) {
	f := newFixture(t, 2)
	sess := f.homeroom("07:30")
	if sess.Status != models.SessionActive || sess.Version != 1 || !sess.IsCurrentVersion {
		t.Fatalf("new session = %+v", sess)
	}
	if sess.SessionType != string(Homeroom) {
		t.Fatalf("session type = %q, want homeroom", sess.SessionType)
	}

	f.mark(sess.ID, map[int]string{0: models.StatusPresent, 1: models.StatusAbsent})
	done := f.complete(sess.ID)
	if done.Status != models.SessionCompleted || done.CompletedAt == nil {
		t.Fatalf("completed session = %+v", done)
	}

	sum := f.summary(sess.ID)
	if sum.Present != 1 || sum.Absent != 1 || sum.TotalEnrolled != 2 || sum.Unmarked != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestEditCreatesNewVersion(t *testing.T) {
	f := newFixture(t, 2)
	sess := f.homeroom("07:30")
	f.mark(sess.ID, map[int]string{0: models.StatusPresent, 1: models.StatusAbsent})
	f.complete(sess.ID)

	f.now = f.now.Add(2 * time.Hour)
	admin := ActorFromUser(f.admin)
	next, err := f.svc.EditSession(f.ctx, admin, sess.ID, EditInput{
		Reason:  ReasonCorrection,
		Records: []RecordPatch{{StudentID: f.students[1].ID, StatusCode: models.StatusLate}},
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if next.Version != 2 || next.PreviousVersionID == nil || *next.PreviousVersionID != sess.ID {
		t.Fatalf("edited session = %+v", next)
	}
	if n := f.currentCount(next); n != 1 {
		t.Fatalf("current versions = %d, want 1", n)
	}

	sum := f.summary(next.ID)
	if sum.Present != 1 || sum.Late != 1 || sum.Absent != 0 {
		t.Fatalf("edited summary = %+v", sum)
	}

	hist := f.history(next.ID)
	if len(hist) != 2 {
		t.Fatalf("history has %d versions, want 2", len(hist))
	}
	for i, h := range hist {
		if h.Session.Version != i+1 {
			t.Fatalf("history[%d].Version = %d", i, h.Session.Version)
		}
	}
	if hist[0].Counts.Absent != 1 || hist[0].Edit != nil {
		t.Fatalf("first version = %+v", hist[0])
	}
	if len(hist[1].Records) != len(hist[0].Records) {
		t.Fatalf("record count changed: %d -> %d", len(hist[0].Records), len(hist[1].Records))
	}
	before := recordOf(t, hist[0].Records, f.students[0].ID)
	kept := recordOf(t, hist[1].Records, f.students[0].ID)
	if kept.MarkedBy != before.MarkedBy || kept.MarkedBy != f.teacher.ID ||
		!kept.MarkedAt.Equal(before.MarkedAt) ||
		kept.MarkingMethod != before.MarkingMethod ||
		kept.DataSource != before.DataSource || kept.DataSource != SourceManual {
		t.Fatalf("unedited record changed: before %+v, after %+v", before, kept)
	}
	patched := recordOf(t, hist[1].Records, f.students[1].ID)
	if patched.DataSource != SourceEdit || patched.MarkedBy != f.admin.ID || !patched.MarkedAt.Equal(f.now) {
		t.Fatalf("patched record = %+v", patched)
	}

	edit := hist[1].Edit
	if edit == nil || edit.Reason != ReasonCorrection || edit.FromSessionID != sess.ID || edit.ToVersion != 2 {
		t.Fatalf("edit log = %+v", edit)
	}
	var changes changeSet
	if err := json.Unmarshal(edit.Changes, &changes); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if len(changes.Records) != 1 || changes.Records[0].From != models.StatusAbsent || changes.Records[0].To != models.StatusLate {
		t.Fatalf("changes = %+v", changes)
	}

	// history reads the same from any version of the chain
	if got := f.history(sess.ID); len(got) != 2 {
		t.Fatalf("history from old id has %d versions", len(got))
	}
}

func TestProcessAutoAbsence(t *testing.T) {
	f := newFixture(t, 2)
	sched := models.Schedule{
		SectionIDRef: f.section.ID,
		TeacherIDRef: f.teacher.ID,
		DayOfWeek:    int(time.Friday),
		StartTime:    "07:00",
		EndTime:      "08:00",
		Active:       true,
	}
	f.mustCreate(&sched)

	sess := f.homeroom("07:05")
	if sess.ScheduleIDRef == nil || *sess.ScheduleIDRef != sched.ID {
		t.Fatalf("session not linked to schedule: %+v", sess)
	}
	f.mark(sess.ID, map[int]string{0: models.StatusPresent})

	early := time.Date(2025, 9, 19, 8, 14, 0, 0, manila)
	for cand, err := range f.svc.SchedulesNeedingAutoAbsence(f.ctx, early) {
		t.Fatalf("unexpected candidate inside grace period: %+v %v", cand, err)
	}

	now := time.Date(2025, 9, 19, 8, 16, 0, 0, manila)
	results := f.svc.ProcessAutoAbsence(f.ctx, now)
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if r := results[0]; !r.Completed || r.Marked != 1 || r.Error != "" || r.SessionID != sess.ID {
		t.Fatalf("result = %+v", r)
	}

	done, err := f.svc.Session(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.SessionCompleted || !done.AutoAbsenceMarked {
		t.Fatalf("session after batch = %+v", done)
	}
	recs, err := f.svc.SessionRecords(f.ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if r.StudentIDRef != f.students[1].ID {
			continue
		}
		if r.StatusCode != models.StatusAbsent || r.MarkingMethod != models.MethodAuto || r.MarkedBy != 0 {
			t.Fatalf("auto record = %+v", r)
		}
	}
	if got := statusOf(recs, f.students[0].ID); got != models.StatusPresent {
		t.Fatalf("marked student changed to %q", got)
	}

	if again := f.svc.ProcessAutoAbsence(f.ctx, now.Add(time.Minute)); len(again) != 0 {
		t.Fatalf("second run = %+v, want no-op", again)
	}
}

func TestConcurrentEditsConflict(t *testing.T) {
	f := newFixture(t, 2)
	sess := f.homeroom("07:30")
	f.mark(sess.ID, map[int]string{0: models.StatusPresent, 1: models.StatusAbsent})
	f.complete(sess.ID)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, code := range []string{models.StatusLate, models.StatusExcused} {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, errs[i] = f.svc.EditSession(f.ctx, f.actor(), sess.ID, EditInput{
				Reason:          ReasonDispute,
				ExpectedVersion: 1,
				Records:         []RecordPatch{{StudentID: f.students[1].ID, StatusCode: code}},
			})
		}(i, code)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and 1", ok, conflicts)
	}
	if n := f.currentCount(sess); n != 1 {
		t.Fatalf("current versions = %d, want 1", n)
	}
	if hist := f.history(sess.ID); len(hist) != 2 {
		t.Fatalf("history has %d versions, want 2", len(hist))
	}
}

func TestEditStaleVersion(t *testing.T) {
	f := newFixture(t, 1)
	sess := f.homeroom("07:30")
	f.mark(sess.ID, map[int]string{0: models.StatusPresent})
	f.complete(sess.ID)

	patch := EditInput{Reason: ReasonCorrection, Records: []RecordPatch{{StudentID: f.students[0].ID, StatusCode: models.StatusLate}}}
	if _, err := f.svc.EditSession(f.ctx, f.actor(), sess.ID, patch); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	if _, err := f.svc.EditSession(f.ctx, f.actor(), sess.ID, patch); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("edit of superseded version: err = %v, want ErrVersionConflict", err)
	}
}

func TestPresentThenAbsentRoundTrip(t *testing.T) {
	f := newFixture(t, 1)
	sess := f.homeroom("07:30")
	f.mark(sess.ID, map[int]string{0: models.StatusPresent})
	f.complete(sess.ID)

	next, err := f.svc.EditSession(f.ctx, f.actor(), sess.ID, EditInput{
		Reason:  ReasonExcuseSubmitted,
		Records: []RecordPatch{{StudentID: f.students[0].ID, StatusCode: models.StatusAbsent}},
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	cur, err := f.svc.SessionRecords(f.ctx, next.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := statusOf(cur, f.students[0].ID); got != models.StatusAbsent {
		t.Fatalf("current status = %q, want absent", got)
	}

	hist := f.history(next.ID)
	prior := hist[0].Records
	if len(prior) != 1 || prior[0].StatusCode != models.StatusPresent || prior[0].IsCurrentVersion {
		t.Fatalf("prior version records = %+v", prior)
	}
}

func recordOf(t *testing.T, recs []models.AttendanceRecord, studentID uint) models.AttendanceRecord {
	t.Helper()
	for _, r := range recs {
		if r.StudentIDRef == studentID {
			return r
		}
	}
	t.Fatalf("no record for student %d", studentID)
	return models.AttendanceRecord{}
}

func TestProcessAutoAbsenceContinuesPastFailure(t *testing.T) {
	f := newFixture(t, 2)
	subjectID := f.subject.ID
	homeroomSlot := models.Schedule{SectionIDRef: f.section.ID, TeacherIDRef: f.teacher.ID, DayOfWeek: int(time.Friday), StartTime: "07:00", EndTime: "08:00", Active: true}
	mathSlot := models.Schedule{SectionIDRef: f.section.ID, SubjectIDRef: &subjectID, TeacherIDRef: f.teacher.ID, DayOfWeek: int(time.Friday), StartTime: "08:00", EndTime: "09:00", Active: true}
	f.mustCreate(&homeroomSlot)
	f.mustCreate(&mathSlot)

	healthy := f.homeroom("07:05")
	broken, err := f.svc.CreateSession(f.ctx, f.actor(), CreateSessionInput{
		TeacherID: f.teacher.ID,
		SectionID: f.section.ID,
		SubjectID: &subjectID,
		Date:      testDate,
		StartTime: "08:05",
	})
	if err != nil {
		t.Fatalf("subject session: %v", err)
	}
	if broken.ScheduleIDRef == nil || *broken.ScheduleIDRef != mathSlot.ID {
		t.Fatalf("subject session not linked to its slot: %+v", broken)
	}
	if err := f.db.Delete(&models.Schedule{}, mathSlot.ID).Error; err != nil {
		t.Fatalf("delete slot: %v", err)
	}

	results := f.svc.ProcessAutoAbsence(f.ctx, time.Date(2025, 9, 19, 9, 30, 0, 0, manila))
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2 entries", results)
	}
	failed := 0
	for _, r := range results {
		switch r.SessionID {
		case healthy.ID:
			if !r.Completed || r.Marked != 2 || r.Error != "" {
				t.Fatalf("healthy result = %+v", r)
			}
		case broken.ID:
			if r.Completed || r.Error == "" {
				t.Fatalf("broken result = %+v", r)
			}
			failed++
		default:
			t.Fatalf("unexpected result %+v", r)
		}
	}
	if failed != 1 {
		t.Fatalf("failed entries = %d, want 1", failed)
	}

	done, err := f.svc.Session(f.ctx, healthy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.SessionCompleted || !done.AutoAbsenceMarked {
		t.Fatalf("healthy session = %+v", done)
	}
	still, err := f.svc.Session(f.ctx, broken.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != models.SessionActive || still.AutoAbsenceMarked {
		t.Fatalf("broken session = %+v", still)
	}
	recs, err := f.svc.SessionRecords(f.ctx, broken.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("broken session got records %+v", recs)
	}
}
