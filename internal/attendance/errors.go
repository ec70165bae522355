package attendance

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound        = errors.New("attendance session not found")
	ErrDuplicateActiveSession = errors.New("an active session already exists for this teacher, section, subject and date")
	ErrInvalidState           = errors.New("invalid session state")
	ErrSessionLocked          = errors.New("session is completed and can only be changed through an edit")
	ErrVersionConflict        = errors.New("session version is no longer current")
	ErrStudentNotEnrolled     = errors.New("student is not enrolled in this section")
	ErrValidation             = errors.New("validation failed")
	ErrForbidden              = errors.New("not allowed to act on this session")
	ErrSectionNotFound        = errors.New("section not found")
)

// IsUniqueViolation reports a unique constraint failure from postgres or a
// gorm dialect with error translation enabled.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
