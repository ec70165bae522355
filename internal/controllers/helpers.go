package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/middleware"
	"github.com/lamms/attendance_backend/internal/models"
)

func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return user, ok
}

func currentActor(c *gin.Context) (attendance.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func parseBoolDefaultTrue(val string) (bool, bool) {
	if val == "" {
		return true, false
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "y", "active":
		return true, true
	case "false", "0", "no", "n", "inactive":
		return false, true
	default:
		return true, false
	}
}

// listParams is the limit/page/all/sort query convention shared by list endpoints.
type listParams struct {
	All     bool
	Limit   int
	Page    int
	SortCol string
	SortDir string
}

func parseListParams(c *gin.Context, defaultLimit int, allowedSorts map[string]string, defaultSort string) listParams {
	p := listParams{
		All:   strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1",
		Limit: defaultLimit,
		Page:  1,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	sortBy := strings.ToLower(c.DefaultQuery("sort_by", defaultSort))
	col, ok := allowedSorts[sortBy]
	if !ok {
		col = allowedSorts[defaultSort]
	}
	p.SortCol = col
	p.SortDir = strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if p.SortDir != "ASC" && p.SortDir != "DESC" {
		p.SortDir = "DESC"
	}
	return p
}

func (p listParams) order() string {
	return fmt.Sprintf("%s %s", p.SortCol, p.SortDir)
}

func (p listParams) apply(q *gorm.DB) *gorm.DB {
	q = q.Order(p.order())
	if !p.All {
		q = q.Offset((p.Page - 1) * p.Limit).Limit(p.Limit)
	}
	return q
}

func (p listParams) meta(total int64) gin.H {
	meta := gin.H{"total": total, "all": p.All}
	if !p.All {
		meta["limit"] = p.Limit
		meta["page"] = p.Page
		meta["sort_by"] = p.SortCol
		meta["sort_dir"] = p.SortDir
	}
	return meta
}

// filterActive narrows q by the ?active= query value.
func filterActive(q *gorm.DB, raw string) (*gorm.DB, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "":
		return q, nil
	case "true", "1":
		return q.Where("active = ?", true), nil
	case "false", "0":
		return q.Where("active = ?", false), nil
	}
	return q, errors.New("invalid active value")
}
