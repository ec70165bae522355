package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lamms/attendance_backend/internal/attendance"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{attendance.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{attendance.ErrDuplicateActiveSession, http.StatusConflict, "duplicate_active_session"},
		{fmt.Errorf("%w: already completed", attendance.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{attendance.ErrVersionConflict, http.StatusConflict, "version_conflict"},
		{attendance.ErrSessionLocked, http.StatusLocked, "session_locked"},
		{fmt.Errorf("%w: student 7", attendance.ErrStudentNotEnrolled), http.StatusUnprocessableEntity, "student_not_enrolled"},
		{fmt.Errorf("%w: bad time", attendance.ErrValidation), http.StatusBadRequest, "validation_error"},
		{attendance.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
		if got := errorCode(tc.err); got != tc.code {
			t.Errorf("errorCode(%v) = %q, want %q", tc.err, got, tc.code)
		}
	}
}

func TestFlexibleString(t *testing.T) {
	for raw, want := range map[string]string{`"  LAMMS-AB12 "`: "LAMMS-AB12", `123456`: "123456", `null`: ""} {
		var fs FlexibleString
		if err := fs.UnmarshalJSON([]byte(raw)); err != nil || fs.String() != want {
			t.Errorf("UnmarshalJSON(%s) = %q, %v; want %q", raw, fs, err, want)
		}
	}
	for _, raw := range []string{`{"a":1}`, `[1]`, `true`, `"unterminated`} {
		var fs FlexibleString
		if err := fs.UnmarshalJSON([]byte(raw)); err == nil {
			t.Errorf("UnmarshalJSON(%s) accepted", raw)
		}
	}
	var missing *FlexibleString
	blank := FlexibleString("")
	set := FlexibleString("2025-0001")
	if !missing.Blank() || !blank.Blank() || set.Blank() {
		t.Error("Blank misreports")
	}
}
