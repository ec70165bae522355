package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/models"
)

// ScheduleController manages subjects and the weekly timetable.
type ScheduleController struct {
	DB *gorm.DB
}

type createSubjectRequest struct {
	Code string `json:"code" binding:"required,max=32"`
	Name string `json:"name" binding:"required"`
}

func (sc *ScheduleController) ListSubjects(c *gin.Context) {
	var subjects []models.Subject
	if err := sc.DB.Order("code ASC").Find(&subjects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subjects, "meta": gin.H{"total": len(subjects)}})
}

func (sc *ScheduleController) CreateSubject(c *gin.Context) {
	var req createSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subject := models.Subject{Code: strings.ToUpper(strings.TrimSpace(req.Code)), Name: strings.TrimSpace(req.Name)}
	if err := sc.DB.Create(&subject).Error; err != nil {
		if attendance.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "subject code already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": subject.ID})
}

type scheduleRequest struct {
	SectionID uint   `json:"section_id" binding:"required"`
	SubjectID *uint  `json:"subject_id"`
	TeacherID uint   `json:"teacher_id" binding:"required"`
	DayOfWeek *int   `json:"day_of_week" binding:"required,min=0,max=6"`
	StartTime string `json:"start_time" binding:"required,datetime=15:04"`
	EndTime   string `json:"end_time" binding:"required,datetime=15:04"`
	Active    *bool  `json:"active"`
}

func (req scheduleRequest) validate(db *gorm.DB) error {
	start, _ := time.Parse("15:04", req.StartTime)
	end, _ := time.Parse("15:04", req.EndTime)
	if !end.After(start) {
		return errors.New("end_time must be after start_time")
	}
	var section models.Section
	if err := db.First(&section, req.SectionID).Error; err != nil {
		return errors.New("section not found")
	}
	var teacher models.User
	if err := db.Where("id = ? AND role = ?", req.TeacherID, models.RoleTeacher).First(&teacher).Error; err != nil {
		return errors.New("teacher not found")
	}
	if req.SubjectID != nil {
		var subject models.Subject
		if err := db.First(&subject, *req.SubjectID).Error; err != nil {
			return errors.New("subject not found")
		}
	}
	return nil
}

// ListSchedules filters by section_id, teacher_id and day_of_week. Teachers only see their own slots.
func (sc *ScheduleController) ListSchedules(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	q := sc.DB.Model(&models.Schedule{})
	if !user.IsAdmin() {
		q = q.Where("teacher_id_ref = ?", user.ID)
	} else if v := strings.TrimSpace(c.Query("teacher_id")); v != "" {
		q = q.Where("teacher_id_ref = ?", v)
	}
	if v := strings.TrimSpace(c.Query("section_id")); v != "" {
		q = q.Where("section_id_ref = ?", v)
	}
	if v := strings.TrimSpace(c.Query("day_of_week")); v != "" {
		q = q.Where("day_of_week = ?", v)
	}
	q, err := filterActive(q, c.Query("active"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var slots []models.Schedule
	if err := q.Order("day_of_week ASC, start_time ASC").Find(&slots).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": slots, "meta": gin.H{"total": len(slots)}})
}

func (sc *ScheduleController) CreateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(sc.DB); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	slot := models.Schedule{
		SectionIDRef: req.SectionID,
		SubjectIDRef: req.SubjectID,
		TeacherIDRef: req.TeacherID,
		DayOfWeek:    *req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Active:       active,
	}
	if err := sc.DB.Create(&slot).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": slot.ID})
}

func (sc *ScheduleController) UpdateSchedule(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var slot models.Schedule
	if err := sc.DB.First(&slot, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(sc.DB); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slot.SectionIDRef = req.SectionID
	slot.SubjectIDRef = req.SubjectID
	slot.TeacherIDRef = req.TeacherID
	slot.DayOfWeek = *req.DayOfWeek
	slot.StartTime = req.StartTime
	slot.EndTime = req.EndTime
	if req.Active != nil {
		slot.Active = *req.Active
	}
	if err := sc.DB.Save(&slot).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (sc *ScheduleController) DeleteSchedule(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	// sessions keep their schedule link, so the slot is only switched off
	if err := sc.DB.Model(&models.Schedule{}).Where("id = ?", id).Update("active", false).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
}
