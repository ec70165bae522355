package routes

import (
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/config"
	"github.com/lamms/attendance_backend/internal/controllers"
	"github.com/lamms/attendance_backend/internal/middleware"
	"github.com/lamms/attendance_backend/internal/models"
	"github.com/lamms/attendance_backend/internal/ws"
)

// NewService builds the attendance service from configuration. A nil
// notifier disables live updates.
func NewService(db *gorm.DB, cfg *config.Config, notifier attendance.Notifier) *attendance.Service {
	opts := attendance.Options{
		Location:      cfg.Location(),
		GracePeriod:   cfg.GracePeriod(),
		LateThreshold: cfg.LateThreshold(),
		Logger:        log.Default(),
	}
	if notifier != nil {
		opts.Notifier = notifier
	}
	return attendance.New(db, opts)
}

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, hubs *ws.Hubs) {
	var notifier attendance.Notifier
	if hubs != nil && hubs.Attendance != nil {
		notifier = hubs.Attendance
	}
	svc := NewService(db, cfg, notifier)

	authCtrl := &controllers.AuthController{
		DB:            db,
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshJWTSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	}
	adminCtrl := &controllers.AdminController{DB: db}
	sectionCtrl := &controllers.SectionController{DB: db}
	studentCtrl := &controllers.StudentController{DB: db, QRLength: cfg.QRLength()}
	scheduleCtrl := &controllers.ScheduleController{DB: db}
	attendanceCtrl := &controllers.AttendanceController{Svc: svc}
	autoAbsenceCtrl := &controllers.AutoAbsenceController{Svc: svc}

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
		auth.POST("/refresh", authCtrl.Refresh)
	}

	// Protected
	authMW := middleware.AuthMiddleware(db, middleware.AuthConfig{JWTSecret: cfg.JWTSecret})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		// Teachers (and admin)
		teacher := api.Group("", middleware.RequireRoles(models.RoleTeacher))
		{
			teacher.GET("/sections", sectionCtrl.ListSections)
			teacher.GET("/sections/:id/students", sectionCtrl.ListStudents)
			teacher.GET("/schedules", scheduleCtrl.ListSchedules)
			teacher.GET("/subjects", scheduleCtrl.ListSubjects)

			sessions := teacher.Group("/attendance/sessions")
			{
				sessions.POST("", attendanceCtrl.CreateSession)
				sessions.GET("/active", attendanceCtrl.ListActive)
				sessions.GET("/:id", attendanceCtrl.GetSession)
				sessions.POST("/:id/marks", attendanceCtrl.Mark)
				sessions.POST("/:id/qr-checkin", attendanceCtrl.QRCheckIn)
				sessions.POST("/:id/complete", attendanceCtrl.Complete)
				sessions.GET("/:id/summary", attendanceCtrl.Summary)
				sessions.POST("/:id/auto-absent", attendanceCtrl.AutoAbsent)
				sessions.POST("/:id/edits", attendanceCtrl.Edit)
				sessions.GET("/:id/history", attendanceCtrl.History)
			}

			teacher.GET("/ws/attendance", ws.AttendanceHandler(db, hubs))
		}

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/users", adminCtrl.ListUsers)
			admin.POST("/users", authCtrl.Register)
			admin.GET("/users/:id", adminCtrl.GetUser)
			admin.PUT("/users/:id", adminCtrl.UpdateUser)
			admin.DELETE("/users/:id", adminCtrl.DeleteUser)

			admin.GET("/sections", sectionCtrl.ListSections)
			admin.POST("/sections", sectionCtrl.CreateSection)
			admin.GET("/sections/:id", sectionCtrl.GetSection)
			admin.PUT("/sections/:id", sectionCtrl.UpdateSection)
			admin.DELETE("/sections/:id", sectionCtrl.DeleteSection)
			admin.GET("/sections/:id/students", sectionCtrl.ListStudents)
			admin.POST("/sections/:id/students", sectionCtrl.EnrollStudent)
			admin.DELETE("/sections/:id/students/:student_id", sectionCtrl.UnenrollStudent)

			admin.GET("/students", studentCtrl.ListStudents)
			admin.POST("/students", studentCtrl.CreateStudent)
			admin.POST("/students/import", studentCtrl.ImportStudents)
			admin.GET("/students/:id", studentCtrl.GetStudent)
			admin.PUT("/students/:id", studentCtrl.UpdateStudent)
			admin.DELETE("/students/:id", studentCtrl.DeleteStudent)
			admin.POST("/students/:id/qr", studentCtrl.RegenerateQR)

			admin.GET("/subjects", scheduleCtrl.ListSubjects)
			admin.POST("/subjects", scheduleCtrl.CreateSubject)
			admin.GET("/schedules", scheduleCtrl.ListSchedules)
			admin.POST("/schedules", scheduleCtrl.CreateSchedule)
			admin.PUT("/schedules/:id", scheduleCtrl.UpdateSchedule)
			admin.DELETE("/schedules/:id", scheduleCtrl.DeleteSchedule)

			admin.GET("/attendance/auto-absence/pending", autoAbsenceCtrl.Pending)
			admin.POST("/attendance/auto-absence", autoAbsenceCtrl.Process)
		}
	}
}
