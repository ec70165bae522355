package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/models"
)

type SectionController struct {
	DB *gorm.DB
}

type createSectionRequest struct {
	Name              string `json:"name" binding:"required"`
	GradeLevel        string `json:"grade_level"`
	HomeroomTeacherID *uint  `json:"homeroom_teacher_id"`
	Active            *bool  `json:"active"`
}

type updateSectionRequest struct {
	Name              *string `json:"name"`
	GradeLevel        *string `json:"grade_level"`
	HomeroomTeacherID *uint   `json:"homeroom_teacher_id"`
	ClearHomeroom     bool    `json:"clear_homeroom"`
	Active            *bool   `json:"active"`
}

func sectionJSON(s models.Section) gin.H {
	return gin.H{
		"id":                  s.ID,
		"name":                s.Name,
		"grade_level":         s.GradeLevel,
		"homeroom_teacher_id": s.HomeroomTeacherIDRef,
		"active":              s.Active,
		"created_at":          s.CreatedAt,
		"updated_at":          s.UpdatedAt,
	}
}

// checkTeacher reports whether id names an active teacher account.
func (sc *SectionController) checkTeacher(id uint) error {
	var user models.User
	if err := sc.DB.Where("id = ? AND active = ?", id, true).First(&user).Error; err != nil {
		return errors.New("homeroom teacher not found")
	}
	if user.Role != models.RoleTeacher {
		return errors.New("homeroom teacher must have the teacher role")
	}
	return nil
}

// ListSections lists sections. Teachers only see the sections they advise or teach.
func (sc *SectionController) ListSections(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	p := parseListParams(c, 20, map[string]string{
		"id":          "id",
		"created_at":  "created_at",
		"name":        "name",
		"grade_level": "grade_level",
		"active":      "active",
	}, "name")

	qText := strings.TrimSpace(c.Query("q"))
	base := sc.DB.Model(&models.Section{})
	if !user.IsAdmin() {
		sched := sc.DB.Model(&models.Schedule{}).Select("section_id_ref").Where("teacher_id_ref = ?", user.ID)
		base = base.Where("homeroom_teacher_id_ref = ? OR id IN (?)", user.ID, sched)
	}
	if qText != "" {
		base = base.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(qText)+"%")
	}
	base, err := filterActive(base, c.Query("active"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var sections []models.Section
	if err := p.apply(base.Session(&gorm.Session{})).Find(&sections).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(sections))
	for _, s := range sections {
		out = append(out, sectionJSON(s))
	}
	meta := p.meta(total)
	if qText != "" {
		meta["q"] = qText
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (sc *SectionController) CreateSection(c *gin.Context) {
	var req createSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.HomeroomTeacherID != nil {
		if err := sc.checkTeacher(*req.HomeroomTeacherID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	section := models.Section{
		Name:                 strings.TrimSpace(req.Name),
		GradeLevel:           strings.TrimSpace(req.GradeLevel),
		HomeroomTeacherIDRef: req.HomeroomTeacherID,
		Active:               active,
	}
	if err := sc.DB.Create(&section).Error; err != nil {
		if attendance.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "section name already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": section.ID})
}

func (sc *SectionController) GetSection(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var section models.Section
	if err := sc.DB.First(&section, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
		return
	}
	c.JSON(http.StatusOK, sectionJSON(section))
}

func (sc *SectionController) UpdateSection(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var section models.Section
	if err := sc.DB.First(&section, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
		return
	}
	var req updateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		section.Name = strings.TrimSpace(*req.Name)
	}
	if req.GradeLevel != nil {
		section.GradeLevel = strings.TrimSpace(*req.GradeLevel)
	}
	if req.ClearHomeroom {
		section.HomeroomTeacherIDRef = nil
	} else if req.HomeroomTeacherID != nil {
		if err := sc.checkTeacher(*req.HomeroomTeacherID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		section.HomeroomTeacherIDRef = req.HomeroomTeacherID
	}
	if req.Active != nil {
		section.Active = *req.Active
	}
	if err := sc.DB.Save(&section).Error; err != nil {
		if attendance.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "section name already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// DeleteSection deactivates a section. Sessions keep pointing at it, so rows are never removed.
func (sc *SectionController) DeleteSection(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := sc.DB.Model(&models.Section{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
}

type enrollRequest struct {
	StudentID uint `json:"student_id" binding:"required"`
}

// EnrollStudent puts a student on a section roster. Any other active
// enrollment of the student is closed first, so a student sits in one section.
func (sc *SectionController) EnrollStudent(c *gin.Context) {
	sectionID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section id"})
		return
	}
	var section models.Section
	if err := sc.DB.First(&section, sectionID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var student models.Student
	if err := sc.DB.First(&student, req.StudentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	if err := enroll(sc.DB, student.ID, section.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enrolled"})
}

func enroll(db *gorm.DB, studentID, sectionID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SectionStudent{}).
			Where("student_id_ref = ? AND section_id_ref <> ? AND active = ?", studentID, sectionID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		rec := models.SectionStudent{StudentIDRef: studentID, SectionIDRef: sectionID}
		if err := tx.Where("student_id_ref = ? AND section_id_ref = ?", studentID, sectionID).
			FirstOrCreate(&rec).Error; err != nil {
			return err
		}
		if rec.Active {
			return nil
		}
		return tx.Model(&rec).Update("active", true).Error
	})
}

// UnenrollStudent closes the roster entry. Past attendance records stay.
func (sc *SectionController) UnenrollStudent(c *gin.Context) {
	sectionID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section id"})
		return
	}
	studentID, ok := parseUintParam(c, "student_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	if err := sc.DB.Model(&models.SectionStudent{}).
		Where("student_id_ref = ? AND section_id_ref = ?", studentID, sectionID).
		Update("active", false).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unenrolled"})
}

// ListStudents returns the section's active roster ordered by name.
func (sc *SectionController) ListStudents(c *gin.Context) {
	sectionID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section id"})
		return
	}
	var students []models.Student
	if err := sc.DB.Table("students").
		Joins("JOIN section_students ss ON ss.student_id_ref = students.id").
		Where("ss.section_id_ref = ? AND ss.active = ? AND students.active = ?", sectionID, true, true).
		Where("students.deleted_at IS NULL").
		Order("students.last_name ASC, students.first_name ASC").
		Find(&students).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(students))
	for _, s := range students {
		out = append(out, studentJSON(s))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"total": len(out)}})
}
