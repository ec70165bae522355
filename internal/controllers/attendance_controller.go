package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/models"
)

type AttendanceController struct {
	Svc *attendance.Service
}

type createSessionRequest struct {
	attendance.CreateSessionInput
	// Resume returns the already running session instead of a conflict.
	Resume bool `json:"resume"`
}

// CreateSession starts taking attendance. Teachers open sessions for
// themselves; admins must name the teacher.
func (ac *AttendanceController) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if req.TeacherID == 0 && !actor.IsAdmin() {
		req.TeacherID = actor.UserID
	}
	sess, err := ac.Svc.CreateSession(c.Request.Context(), actor, req.CreateSessionInput)
	if errors.Is(err, attendance.ErrDuplicateActiveSession) {
		if req.Resume {
			c.JSON(http.StatusOK, gin.H{"session": sess, "resumed": true})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": errorCode(err), "session_id": sess.ID})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess, "resumed": false})
}

// ListActive lists the caller's active sessions. Admins may pass teacher_id.
func (ac *AttendanceController) ListActive(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	teacherID := actor.UserID
	if v := strings.TrimSpace(c.Query("teacher_id")); v != "" && actor.IsAdmin() {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid teacher_id"})
			return
		}
		teacherID = uint(n)
	}
	out := []models.AttendanceSession{}
	for sess, err := range ac.Svc.ActiveSessionsForTeacher(c.Request.Context(), teacherID) {
		if err != nil {
			respondError(c, err)
			return
		}
		out = append(out, sess)
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"total": len(out)}})
}

// session loads the :id session and checks the caller may act on it.
func (ac *AttendanceController) session(c *gin.Context) (models.AttendanceSession, bool) {
	actor, ok := currentActor(c)
	if !ok {
		return models.AttendanceSession{}, false
	}
	sess, err := ac.Svc.Session(c.Request.Context(), c.Param("id"))
	if err == nil {
		err = attendance.Authorize(actor, sess)
	}
	if err != nil {
		respondError(c, err)
		return sess, false
	}
	return sess, true
}

func (ac *AttendanceController) GetSession(c *gin.Context) {
	sess, ok := ac.session(c)
	if !ok {
		return
	}
	recs, err := ac.Svc.SessionRecords(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "records": recs, "is_edited": sess.IsEdited()})
}

type markRequest struct {
	Records []attendance.MarkInput `json:"attendance_records" binding:"required,min=1"`
}

// Mark records a batch of marks and answers with a per-student manifest.
func (ac *AttendanceController) Mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	results, err := ac.Svc.MarkAttendance(c.Request.Context(), actor, c.Param("id"), req.Records)
	if err != nil {
		respondError(c, err)
		return
	}
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"summary": gin.H{"total": len(results), "marked": len(results) - failed, "failed": failed},
	})
}

type qrCheckInRequest struct {
	QRCode    FlexibleString `json:"qr_code" binding:"required"`
	ScannedAt *time.Time     `json:"scanned_at"`
}

func (ac *AttendanceController) QRCheckIn(c *gin.Context) {
	var req qrCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	at := ac.Svc.Now()
	if req.ScannedAt != nil {
		at = *req.ScannedAt
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	res, err := ac.Svc.CheckInByQR(c.Request.Context(), actor, c.Param("id"), req.QRCode.String(), at)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ac *AttendanceController) Complete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	sess, err := ac.Svc.CompleteSession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (ac *AttendanceController) Summary(c *gin.Context) {
	sess, ok := ac.session(c)
	if !ok {
		return
	}
	sum, err := ac.Svc.SessionSummary(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// AutoAbsent marks every unmarked enrolled student absent without completing the session.
func (ac *AttendanceController) AutoAbsent(c *gin.Context) {
	sess, ok := ac.session(c)
	if !ok {
		return
	}
	n, err := ac.Svc.AutoMarkAbsent(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "marked": n})
}

func (ac *AttendanceController) Edit(c *gin.Context) {
	var in attendance.EditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	next, err := ac.Svc.EditSession(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": next, "previous_version_id": next.PreviousVersionID})
}

func (ac *AttendanceController) History(c *gin.Context) {
	sess, ok := ac.session(c)
	if !ok {
		return
	}
	out := []attendance.HistoryEntry{}
	for entry, err := range ac.Svc.SessionHistory(c.Request.Context(), sess.ID) {
		if err != nil {
			respondError(c, err)
			return
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"versions": len(out)}})
}

// AutoAbsenceController exposes the auto-absence batch to admins.
type AutoAbsenceController struct {
	Svc *attendance.Service
}

// Pending lists the sessions the batch would close at ?at= (RFC 3339), default now.
func (ac *AutoAbsenceController) Pending(c *gin.Context) {
	now, ok := batchTime(c, ac.Svc)
	if !ok {
		return
	}
	type failure struct {
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	out := []attendance.AutoAbsenceCandidate{}
	failures := []failure{}
	for cand, err := range ac.Svc.SchedulesNeedingAutoAbsence(c.Request.Context(), now) {
		if err != nil {
			if cand.Session.ID == "" {
				respondError(c, err)
				return
			}
			failures = append(failures, failure{SessionID: cand.Session.ID, Error: err.Error()})
			continue
		}
		out = append(out, cand)
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "errors": failures, "meta": gin.H{"total": len(out), "at": now}})
}

// Process runs the batch once and returns its manifest.
func (ac *AutoAbsenceController) Process(c *gin.Context) {
	now, ok := batchTime(c, ac.Svc)
	if !ok {
		return
	}
	results := ac.Svc.ProcessAutoAbsence(c.Request.Context(), now)
	completed, failed := 0, 0
	for _, r := range results {
		if r.Completed {
			completed++
		}
		if r.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"summary": gin.H{"candidates": len(results), "completed": completed, "failed": failed},
	})
}

func batchTime(c *gin.Context, svc *attendance.Service) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query("at"))
	if raw == "" {
		return svc.Now(), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at, expected RFC 3339"})
		return time.Time{}, false
	}
	return at, true
}
