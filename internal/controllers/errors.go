package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lamms/attendance_backend/internal/attendance"
)

// statusFor maps attendance errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrDuplicateActiveSession),
		errors.Is(err, attendance.ErrInvalidState),
		errors.Is(err, attendance.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrSessionLocked):
		return http.StatusLocked
	case errors.Is(err, attendance.ErrStudentNotEnrolled):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, attendance.ErrSectionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// errorCode is the machine readable kind sent next to the message.
func errorCode(err error) string {
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, attendance.ErrDuplicateActiveSession):
		return "duplicate_active_session"
	case errors.Is(err, attendance.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, attendance.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, attendance.ErrSessionLocked):
		return "session_locked"
	case errors.Is(err, attendance.ErrStudentNotEnrolled):
		return "student_not_enrolled"
	case errors.Is(err, attendance.ErrValidation), errors.Is(err, attendance.ErrSectionNotFound):
		return "validation_error"
	case errors.Is(err, attendance.ErrForbidden):
		return "forbidden"
	}
	return "internal_error"
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal server error", "code": errorCode(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errorCode(err)})
}
