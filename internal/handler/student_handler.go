package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-attendance-api/internal/models"
	"github.com/noah-isme/college-attendance-api/pkg/response"
)

type studentAttendanceService interface {
	Enrollments(ctx context.Context, actor models.Actor) ([]models.EnrollmentDetail, error)
	Overview(ctx context.Context, actor models.Actor) (*models.AttendanceOverview, error)
	CourseAttendance(ctx context.Context, actor models.Actor, enrollmentID string) (*models.CourseAttendance, error)
}

// StudentHandler serves the student dashboard.
type StudentHandler struct {
	service studentAttendanceService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(svc studentAttendanceService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// Enrollments godoc
// @Summary My enrollments
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /students/enrollments [get]
func (h *StudentHandler) Enrollments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	enrollments, err := h.service.Enrollments(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Overview godoc
// @Summary Attendance overview
// @Description Per-course and overall attendance percentages with status
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /students/attendance-overview [get]
func (h *StudentHandler) Overview(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// CourseAttendance godoc
// @Summary Attendance history for one enrollment
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/attendance/{id} [get]
func (h *StudentHandler) CourseAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	course, err := h.service.CourseAttendance(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
