package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-attendance-api/internal/models"
	"github.com/noah-isme/college-attendance-api/internal/service"
	"github.com/noah-isme/college-attendance-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, req service.EnrollStudentRequest) (*models.Enrollment, error)
	BatchEnroll(ctx context.Context, req service.BatchEnrollRequest) ([]models.Enrollment, error)
}

type teachingAssignmentService interface {
	Create(ctx context.Context, req service.CreateTeachingAssignmentRequest) (*models.TeachingAssignment, error)
	ListForTeacher(ctx context.Context, actor models.Actor) ([]models.TeachingAssignmentDetail, error)
}

// EnrollmentHandler manages enrollments and teaching assignments.
type EnrollmentHandler struct {
	enrollments enrollmentService
	assignments teachingAssignmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(enrollments enrollmentService, assignments teachingAssignmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, assignments: assignments}
}

// Enroll godoc
// @Summary Enroll student
// @Description Create or reactivate one enrollment
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// BatchEnroll godoc
// @Summary Batch enroll
// @Description Enroll every listed student in every listed course
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BatchEnrollRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/enrollments/batch [post]
func (h *EnrollmentHandler) BatchEnroll(c *gin.Context) {
	var req service.BatchEnrollRequest
	if !bindJSON(c, &req, "invalid batch enrollment payload") {
		return
	}
	enrollments, err := h.enrollments.BatchEnroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, enrollments, nil, map[string]interface{}{"count": len(enrollments)})
}

// CreateAssignment godoc
// @Summary Assign teacher
// @Description Hand a course cohort to a teacher, deactivating the previous assignment
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTeachingAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/teaching-assignments [post]
func (h *EnrollmentHandler) CreateAssignment(c *gin.Context) {
	var req service.CreateTeachingAssignmentRequest
	if !bindJSON(c, &req, "invalid teaching assignment payload") {
		return
	}
	assignment, err := h.assignments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// MyAssignments godoc
// @Summary List my assignments
// @Description Active teaching assignments of the calling teacher
// @Tags Teachers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/assignments [get]
func (h *EnrollmentHandler) MyAssignments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	assignments, err := h.assignments.ListForTeacher(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}
