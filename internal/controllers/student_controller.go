package controllers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/models"
	"github.com/lamms/attendance_backend/internal/utils"
)

type StudentController struct {
	DB       *gorm.DB
	QRLength int
}

type createStudentRequest struct {
	StudentNumber FlexibleString `json:"student_number" binding:"required"`
	FirstName     string         `json:"first_name" binding:"required"`
	LastName      string         `json:"last_name"`
	Gender        string         `json:"gender" binding:"omitempty,oneof=M F"`
	SectionID     *uint          `json:"section_id"`
	Active        *bool          `json:"active"`
}

type updateStudentRequest struct {
	StudentNumber *FlexibleString `json:"student_number"`
	FirstName     *string         `json:"first_name"`
	LastName      *string         `json:"last_name"`
	Gender        *string         `json:"gender" binding:"omitempty,oneof=M F"`
	Active        *bool           `json:"active"`
}

type studentImportError struct {
	Row           int    `json:"row"`
	StudentNumber string `json:"student_number,omitempty"`
	Error         string `json:"error"`
}

func studentJSON(s models.Student) gin.H {
	return gin.H{
		"id":             s.ID,
		"student_number": s.StudentNumber,
		"first_name":     s.FirstName,
		"last_name":      s.LastName,
		"full_name":      s.FullName(),
		"gender":         s.Gender,
		"qr_code":        s.QRCode,
		"active":         s.Active,
		"created_at":     s.CreatedAt,
		"updated_at":     s.UpdatedAt,
	}
}

// newStudent fills a fresh QR token; a collision surfaces as a unique violation.
func (sc *StudentController) newStudent(number, first, last, gender string, active bool) (models.Student, error) {
	code, err := utils.StudentQRCode(sc.QRLength)
	if err != nil {
		return models.Student{}, err
	}
	return models.Student{
		StudentNumber: strings.TrimSpace(number),
		FirstName:     strings.TrimSpace(first),
		LastName:      strings.TrimSpace(last),
		Gender:        strings.ToUpper(strings.TrimSpace(gender)),
		QRCode:        code,
		Active:        active,
	}, nil
}

func (sc *StudentController) ListStudents(c *gin.Context) {
	p := parseListParams(c, 50, map[string]string{
		"id":             "id",
		"created_at":     "created_at",
		"last_name":      "last_name",
		"student_number": "student_number",
		"active":         "active",
	}, "last_name")

	qText := strings.TrimSpace(c.Query("q"))
	base := sc.DB.Model(&models.Student{})
	if qText != "" {
		like := "%" + strings.ToLower(qText) + "%"
		base = base.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR student_number LIKE ?", like, like, like)
	}
	if v := strings.TrimSpace(c.Query("section_id")); v != "" {
		sub := sc.DB.Model(&models.SectionStudent{}).Select("student_id_ref").Where("section_id_ref = ? AND active = ?", v, true)
		base = base.Where("id IN (?)", sub)
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
	var students []models.Student
	if err := p.apply(base.Session(&gorm.Session{})).Find(&students).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(students))
	for _, s := range students {
		out = append(out, studentJSON(s))
	}
	meta := p.meta(total)
	if qText != "" {
		meta["q"] = qText
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (sc *StudentController) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	student, err := sc.newStudent(req.StudentNumber.String(), req.FirstName, req.LastName, req.Gender, active)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate qr code"})
		return
	}
	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&student).Error; err != nil {
			return err
		}
		if req.SectionID == nil {
			return nil
		}
		var section models.Section
		if err := tx.First(&section, *req.SectionID).Error; err != nil {
			return fmt.Errorf("section %d not found", *req.SectionID)
		}
		return enroll(tx, student.ID, section.ID)
	})
	if err != nil {
		if attendance.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "student number already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, studentJSON(student))
}

func (sc *StudentController) GetStudent(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var student models.Student
	if err := sc.DB.First(&student, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	c.JSON(http.StatusOK, studentJSON(student))
}

func (sc *StudentController) UpdateStudent(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var student models.Student
	if err := sc.DB.First(&student, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	var req updateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StudentNumber != nil {
		if req.StudentNumber.Blank() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_number cannot be blank"})
			return
		}
		student.StudentNumber = req.StudentNumber.String()
	}
	if req.FirstName != nil {
		student.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		student.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Gender != nil {
		student.Gender = strings.ToUpper(*req.Gender)
	}
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := sc.DB.Save(&student).Error; err != nil {
		if attendance.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "student number already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// RegenerateQR replaces a lost or leaked QR token.
func (sc *StudentController) RegenerateQR(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	code, err := utils.StudentQRCode(sc.QRLength)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate qr code"})
		return
	}
	res := sc.DB.Model(&models.Student{}).Where("id = ?", id).Update("qr_code", code)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "regenerated", "qr_code": code})
}

// DeleteStudent soft deletes the student and closes their enrollments.
func (sc *StudentController) DeleteStudent(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SectionStudent{}).Where("student_id_ref = ?", id).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Student{}, id).Error
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ImportStudents bulk-creates students from a CSV upload.
// Header columns (case-insensitive): student_number, first_name, last_name,
// gender (optional), section_name (optional), active (optional).
func (sc *StudentController) ImportStudents(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
		return
	}
	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if fileHeader == nil || !strings.HasSuffix(strings.ToLower(strings.TrimSpace(fileHeader.Filename)), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are allowed"})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}

	reader := newCSVReader(data)
	header, err := reader.Read()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read header"})
		return
	}
	headerIdx := make(map[string]int, len(header))
	for idx, col := range header {
		key := strings.ToLower(strings.Trim(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")), "\"'"))
		if key != "" {
			headerIdx[key] = idx
		}
	}
	for _, key := range []string{"student_number", "first_name", "last_name"} {
		if _, ok := headerIdx[key]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing header column: %s", key)})
			return
		}
	}
	getVal := func(record []string, key string) string {
		idx, ok := headerIdx[key]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var (
		totalRows   int
		createdRows int
		failures    = []studentImportError{}
	)
	rowNum := 1
	sectionCache := make(map[string]models.Section)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			failures = append(failures, studentImportError{Row: rowNum, Error: fmt.Sprintf("failed to read row: %v", err)})
			continue
		}
		totalRows++

		number := getVal(row, "student_number")
		first := getVal(row, "first_name")
		fail := func(msg string) {
			failures = append(failures, studentImportError{Row: rowNum, StudentNumber: number, Error: msg})
		}
		if number == "" || first == "" {
			fail("student_number and first_name are required")
			continue
		}
		activeStr := getVal(row, "active")
		active, provided := parseBoolDefaultTrue(activeStr)
		if activeStr != "" && !provided {
			fail("invalid active value")
			continue
		}
		student, err := sc.newStudent(number, first, getVal(row, "last_name"), getVal(row, "gender"), active)
		if err != nil {
			fail(fmt.Sprintf("failed to generate qr code: %v", err))
			continue
		}
		sectionName := getVal(row, "section_name")

		err = sc.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&student).Error; err != nil {
				if attendance.IsUniqueViolation(err) {
					return errors.New("student number already exists")
				}
				return err
			}
			if sectionName == "" {
				return nil
			}
			key := strings.ToLower(sectionName)
			section, ok := sectionCache[key]
			if !ok {
				if err := tx.Where("LOWER(name) = ?", key).First(&section).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("section '%s' not found", sectionName)
					}
					return err
				}
				sectionCache[key] = section
			}
			return enroll(tx, student.ID, section.ID)
		})
		if err != nil {
			fail(err.Error())
			continue
		}
		createdRows++
	}
	log.Printf("student import: rows=%d inserted=%d failed=%d", totalRows, createdRows, len(failures))

	c.JSON(http.StatusOK, gin.H{
		"summary": gin.H{
			"total_rows": totalRows,
			"inserted":   createdRows,
			"failed":     len(failures),
		},
		"errors": failures,
	})
}

// newCSVReader accepts CR, LF or CRLF line ends and sniffs a ';' delimiter from the header.
func newCSVReader(data []byte) *csv.Reader {
	data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	if bytes.Contains(firstLine, []byte{';'}) && !bytes.Contains(firstLine, []byte{','}) {
		r.Comma = ';'
	}
	return r
}
