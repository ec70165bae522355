package attendance

import (
	"fmt"

	"github.com/lamms/attendance_backend/internal/models"
)

// Event is something that can happen to a session.
type Event string

const (
	EventMark        Event = "mark"
	EventAutoAbsence Event = "auto_absence"
	EventComplete    Event = "complete"
	EventEdit        Event = "edit"
)

// Transition returns the status a session moves to when ev happens in status.
//
//	active    --mark/auto_absence--> active
//	active    --complete-->          completed
//	active    --edit-->              ErrInvalidState
//	completed --edit-->              completed (new version)
//	completed --complete-->          ErrInvalidState
//	completed --mark/auto_absence--> ErrSessionLocked
func Transition(status string, ev Event) (string, error) {
	switch status {
	case models.SessionActive:
		switch ev {
		case EventMark, EventAutoAbsence:
			return models.SessionActive, nil
		case EventComplete:
			return models.SessionCompleted, nil
		case EventEdit:
			return "", fmt.Errorf("%w: edits only apply to completed sessions", ErrInvalidState)
		}
	case models.SessionCompleted:
		switch ev {
		case EventEdit:
			return models.SessionCompleted, nil
		case EventComplete:
			return "", fmt.Errorf("%w: session is already completed", ErrInvalidState)
		case EventMark, EventAutoAbsence:
			return "", ErrSessionLocked
		}
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidState, status)
	}
	return "", fmt.Errorf("%w: unknown event %q", ErrInvalidState, ev)
}

// Authorize allows the session's own teacher and admins.
func Authorize(actor Actor, sess models.AttendanceSession) error {
	if actor.IsAdmin() || (actor.UserID != 0 && actor.UserID == sess.TeacherIDRef) {
		return nil
	}
	return ErrForbidden
}
