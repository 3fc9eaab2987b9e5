package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-attendance-api/internal/models"
	"github.com/noah-isme/college-attendance-api/internal/service"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
	"github.com/noah-isme/college-attendance-api/pkg/response"
)

type branchService interface {
	List(ctx context.Context) ([]models.Branch, error)
	Create(ctx context.Context, req service.CreateBranchRequest) (*models.Branch, error)
}

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, error)
	Create(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error)
}

// CatalogHandler exposes branch and course administration.
type CatalogHandler struct {
	branches branchService
	courses  courseService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(branches branchService, courses courseService) *CatalogHandler {
	return &CatalogHandler{branches: branches, courses: courses}
}

// ListBranches godoc
// @Summary List branches
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/branches [get]
func (h *CatalogHandler) ListBranches(c *gin.Context) {
	branches, err := h.branches.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branches, nil)
}

// CreateBranch godoc
// @Summary Create branch
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateBranchRequest true "Branch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/branches [post]
func (h *CatalogHandler) CreateBranch(c *gin.Context) {
	var req service.CreateBranchRequest
	if !bindJSON(c, &req, "invalid branch payload") {
		return
	}
	branch, err := h.branches.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, branch)
}

// ListCourses godoc
// @Summary List courses
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param branch_id query string false "Branch filter"
// @Param semester query int false "Semester filter"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	filter := models.CourseFilter{BranchID: strings.TrimSpace(c.Query("branch_id"))}
	if raw := strings.TrimSpace(c.Query("semester")); raw != "" {
		semester, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "semester must be a number"))
			return
		}
		filter.Semester = &semester
	}
	courses, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// CreateCourse godoc
// @Summary Create course
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/courses [post]
func (h *CatalogHandler) CreateCourse(c *gin.Context) {
	var req service.CreateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}
