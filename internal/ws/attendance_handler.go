package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/middleware"
	"github.com/lamms/attendance_backend/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; rely on JWT auth.
		return true
	},
}

// TeacherSectionIDs returns the sections a teacher advises or has a schedule slot in.
func TeacherSectionIDs(db *gorm.DB, teacherID uint) (map[uint]struct{}, error) {
	var homeroom, scheduled []uint
	if err := db.Model(&models.Section{}).Where("homeroom_teacher_id_ref = ?", teacherID).Pluck("id", &homeroom).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Schedule{}).Where("teacher_id_ref = ? AND active = ?", teacherID, true).Distinct().Pluck("section_id_ref", &scheduled).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]struct{}, len(homeroom)+len(scheduled))
	for _, id := range append(homeroom, scheduled...) {
		out[id] = struct{}{}
	}
	return out, nil
}

func AttendanceHandler(db *gorm.DB, hubs *Hubs) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hubs == nil || hubs.Attendance == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
			return
		}
		actor, ok := middleware.CurrentActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		allowAll := actor.IsAdmin()
		allowed := map[uint]struct{}{}
		if !allowAll {
			var err error
			allowed, err = TeacherSectionIDs(db, actor.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if len(allowed) == 0 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no sections assigned"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newAttendanceClient(hubs.Attendance, conn, allowed, allowAll)
		hubs.Attendance.register <- client

		go client.writePump()
		client.readPump()
	}
}
